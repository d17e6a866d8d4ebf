// Command sensillum runs the protocol-diagnostic HTTP server.
//
// Usage:
//
//	# Listen on :3030 with defaults
//	sensillum
//
//	# Behind a reverse proxy mounted at /api, identified as node-a
//	sensillum --prefix /api --node node-a
//
//	# Redact cookies and auth headers, hide server identity
//	sensillum -r cookie -r authorization --privacy
//
//	# Print the version
//	sensillum version
//
// Every flag can also be set through a SENSILLUM_* environment variable or a
// YAML file passed with --config.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sensillum/sensillum/server/internal/buildinfo"
	"github.com/sensillum/sensillum/server/internal/config"
)

const flagConfig = "config"

const banner = `
        |            |          /                 /
   _____|_______   __|____ ____/_    __    __  __/_  ___
  / ___// ____/ | / / ___//  _/ /   / /   / / / /  |/  /
  \__ \/ __/ /  |/ /\__ \ / // /   / /   / / / / /|_/ /
 ___/ / /___/ /|  /___/ // // /___/ /___/ /_/ / /  / /
/____/_____/_/ |_//____/___/_____/_____/\____/_/  /_/______________________
`

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sensillum",
		Short: "Protocol-diagnostic HTTP server",
		Long: `Sensillum shows what a reverse proxy, load balancer or WAF does to your
traffic: which headers it strips or rewrites, which byte values it forwards,
how large a header block it tolerates, whether it proxies WebSocket and SSE,
and which backend node answered.`,
		Version:       buildinfo.Full(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath
			if !cmd.Flags().Changed(flagConfig) {
				path = os.Getenv(config.EnvName(flagConfig))
			}

			cfg, err := config.Load(path, cmd.Flags(), os.LookupEnv)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(cfg.Log.Handler(os.Stdout)))

			printBanner(cmd.OutOrStdout(), cfg)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, flagConfig, "", "YAML config file")
	config.RegisterFlags(cmd.Flags())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Sensillum %s\n", buildinfo.Full())
		},
	}
}

func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "%s\nSensillum %s\n%s\n\n", banner, buildinfo.Full(), buildinfo.Repository)
	if cfg.PrivacyMode {
		fmt.Fprintln(w, "Privacy mode enabled: server_addr, hostname, build_time and url_prefix will not be sent to clients.")
	}
}
