package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/http2"

	"github.com/sensillum/sensillum/server/internal/buildinfo"
	"github.com/sensillum/sensillum/server/internal/config"
)

// --- helpers ----------------------------------------------------------------

func testConfig() *config.Config {
	return &config.Config{
		Hostname:           "box-1",
		NodeName:           "node-a",
		URLPrefix:          "/api",
		HeartbeatInterval:  20 * time.Millisecond,
		PeakReportInterval: time.Hour,
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

// startApp serves a on fresh loopback listeners and returns the base URLs.
// The app is stopped and its error checked on cleanup.
func startApp(t *testing.T, a *app) (baseURL, metricsURL string) {
	t.Helper()
	ln, metricsLn := listen(t), listen(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln, metricsLn) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("serve did not return after cancel")
		}
	})
	return "http://" + ln.Addr().String(), "http://" + metricsLn.Addr().String()
}

func get(t *testing.T, client *http.Client, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

// --- tests ------------------------------------------------------------------

func TestApp_Routes(t *testing.T) {
	a, err := newApp(testConfig())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	base, metricsURL := startApp(t, a)

	resp, body := get(t, http.DefaultClient, base+"/healthz")
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("/healthz: %d %q", resp.StatusCode, body)
	}

	resp, body = get(t, http.DefaultClient, base+"/api/echo/x?y=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/echo/x: status %d", resp.StatusCode)
	}
	var echo struct {
		Path       string `json:"path"`
		Query      string `json:"query"`
		ServerAddr string `json:"server_addr"`
		Protocol   string `json:"protocol"`
	}
	if err := json.Unmarshal(body, &echo); err != nil {
		t.Fatalf("echo body: %v", err)
	}
	if echo.Path != "/echo/x" || echo.Query != "y=1" {
		t.Errorf("echo: got path %q query %q", echo.Path, echo.Query)
	}
	if echo.ServerAddr != strings.TrimPrefix(base, "http://") {
		t.Errorf("server_addr: got %q, want %q", echo.ServerAddr, strings.TrimPrefix(base, "http://"))
	}
	if echo.Protocol != "HTTP/1.1" {
		t.Errorf("protocol: got %q", echo.Protocol)
	}

	resp, _ = get(t, http.DefaultClient, base+"/echo")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("/echo without prefix: status %d, want 404", resp.StatusCode)
	}

	resp, body = get(t, http.DefaultClient, metricsURL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics: status %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte(`sensillum_requests_total{code="200",route="/echo/*"} 1`)) {
		t.Errorf("/metrics does not count the echo request:\n%s", body)
	}
}

func TestApp_H2C(t *testing.T) {
	a, err := newApp(testConfig())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	base, _ := startApp(t, a)

	client := &http.Client{Transport: &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
	resp, body := get(t, client, base+"/api/echo")
	if resp.ProtoMajor != 2 {
		t.Fatalf("proto: got %s, want HTTP/2", resp.Proto)
	}
	var echo struct {
		Protocol string `json:"protocol"`
	}
	if err := json.Unmarshal(body, &echo); err != nil {
		t.Fatalf("echo body: %v", err)
	}
	if echo.Protocol != "HTTP/2.0" {
		t.Errorf("protocol: got %q, want HTTP/2.0", echo.Protocol)
	}
}

func TestApp_TracksConnections(t *testing.T) {
	a, err := newApp(testConfig())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	base, _ := startApp(t, a)

	conn, err := net.Dial("tcp", strings.TrimPrefix(base, "http://"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	io.WriteString(conn, "GET /healthz HTTP/1.1\r\nHost: x\r\n\r\n") //nolint:errcheck
	buf := make([]byte, 64)
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := a.tracker.Active(); n != 1 {
		t.Errorf("Active with open connection: got %d, want 1", n)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for a.tracker.Active() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Active after close: got %d, want 0", a.tracker.Active())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if p := a.tracker.Peak(); p != 1 {
		t.Errorf("Peak: got %d, want 1", p)
	}
}

func TestApp_ShutdownEndsSSE(t *testing.T) {
	a, err := newApp(testConfig())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	ln := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln, nil) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/sse")
	if err != nil {
		t.Fatalf("GET /api/sse: %v", err)
	}
	defer resp.Body.Close()
	if _, err := resp.Body.Read(make([]byte, 1)); err != nil {
		t.Fatalf("read stream: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(shutdownTimeout / 2):
		t.Fatal("open SSE stream held up shutdown")
	}
}

func TestNewApp_BadCatalogue(t *testing.T) {
	cfg := testConfig()
	cfg.WAFPayloadsPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := newApp(cfg); err == nil {
		t.Fatal("expected error for missing catalogue")
	}
}

func TestNewApp_CatalogueFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "payloads.yaml")
	if err := os.WriteFile(p, []byte("payloads:\n  - {name: custom, payload: hello}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := testConfig()
	cfg.WAFPayloadsPath = p
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	base, _ := startApp(t, a)

	_, body := get(t, http.DefaultClient, base+"/api/waf?name=custom")
	if string(body) != "hello" {
		t.Errorf("payload: got %q, want hello", body)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if want := "Sensillum " + buildinfo.Full() + "\n"; out.String() != want {
		t.Errorf("output: got %q, want %q", out.String(), want)
	}
}

func TestRootCommand_RejectsBadConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"--prefix", "no-slash"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "must start with /") {
		t.Fatalf("got %v, want prefix validation error", err)
	}
}

func TestPrintBanner_PrivacyNotice(t *testing.T) {
	var out bytes.Buffer
	printBanner(&out, &config.Config{PrivacyMode: true})
	if !strings.Contains(out.String(), "Privacy mode enabled") {
		t.Errorf("banner lacks privacy notice:\n%s", out.String())
	}
	out.Reset()
	printBanner(&out, &config.Config{})
	if strings.Contains(out.String(), "Privacy mode") {
		t.Error("privacy notice printed with privacy mode off")
	}
}
