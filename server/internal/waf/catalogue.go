package waf

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

//go:embed payloads.yaml
var embedded []byte

// Payload is one catalogue entry.
type Payload struct {
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category,omitempty"`
	Payload  string `yaml:"payload" json:"payload"`
}

type file struct {
	Payloads []Payload `yaml:"payloads"`
}

// Catalogue is a concurrency-safe, reloadable set of payloads.
type Catalogue struct {
	path    string
	entries atomic.Pointer[[]Payload]
}

// Default returns the catalogue embedded in the binary.
func Default() *Catalogue {
	entries, err := Parse(embedded)
	if err != nil {
		panic(fmt.Sprintf("waf: embedded catalogue: %v", err))
	}
	return NewCatalogue(entries)
}

// NewCatalogue returns a fixed catalogue of entries.
func NewCatalogue(entries []Payload) *Catalogue {
	c := &Catalogue{}
	c.entries.Store(&entries)
	return c
}

// Load reads the catalogue at path. Watch reloads it from the same path.
func Load(path string) (*Catalogue, error) {
	c := &Catalogue{path: filepath.Clean(path)}
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes a YAML catalogue. Names must be non-empty and unique.
func Parse(data []byte) ([]Payload, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("waf: parse yaml: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Payloads))
	for i, p := range f.Payloads {
		if p.Name == "" {
			return nil, fmt.Errorf("waf: payloads[%d]: name is required", i)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("waf: payloads[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return f.Payloads, nil
}

// List returns the current entries in catalogue order.
func (c *Catalogue) List() []Payload {
	return *c.entries.Load()
}

// Lookup returns the entry called name.
func (c *Catalogue) Lookup(name string) (Payload, bool) {
	for _, p := range c.List() {
		if p.Name == name {
			return p, true
		}
	}
	return Payload{}, false
}

// Watch monitors the catalogue file and swaps in the new entries each time it
// is written or replaced. It runs until ctx is cancelled. An embedded
// catalogue has no file to watch and Watch returns immediately.
//
// The parent directory is watched rather than the file: an editor that saves
// by renaming a temporary file over the catalogue replaces the inode, which
// would silently drop a watch on the file itself.
func (c *Catalogue) Watch(ctx context.Context) error {
	if c.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("waf: watch: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("waf: watch %q: %w", dir, err)
	}

	slog.Info("waf: watching catalogue for changes", "path", c.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != c.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := c.reload(); err != nil {
				slog.Error("waf: reload failed, keeping previous catalogue",
					"path", c.path, "err", err)
				continue
			}
			slog.Info("waf: catalogue reloaded", "path", c.path, "payloads", len(c.List()))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("waf: watcher error", "err", err)
		}
	}
}

func (c *Catalogue) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("waf: read %q: %w", c.path, err)
	}
	entries, err := Parse(data)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("waf: catalogue is empty")
	}
	c.entries.Store(&entries)
	return nil
}
