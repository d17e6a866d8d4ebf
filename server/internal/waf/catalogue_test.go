package waf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCatalogue(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "payloads.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalogue: %v", err)
	}
	return p
}

func TestDefault(t *testing.T) {
	c := Default()
	if len(c.List()) == 0 {
		t.Fatal("embedded catalogue is empty")
	}
	p, ok := c.Lookup("xss-script")
	if !ok {
		t.Fatal("xss-script: missing")
	}
	if p.Payload != "<script>alert(document.cookie)</script>" {
		t.Errorf("xss-script payload: got %q", p.Payload)
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Error("Lookup(nope): want false")
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"missing name": "payloads:\n  - payload: x\n",
		"duplicate":    "payloads:\n  - {name: a, payload: x}\n  - {name: a, payload: y}\n",
		"bad yaml":     "payloads: [",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(in)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_Empty(t *testing.T) {
	p := writeCatalogue(t, t.TempDir(), "payloads: []\n")
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for empty catalogue")
	}
}

func TestWatch_Reloads(t *testing.T) {
	dir := t.TempDir()
	p := writeCatalogue(t, dir, "payloads:\n  - {name: one, payload: first}\n")

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	// An invalid write keeps the previous entries.
	writeCatalogue(t, dir, "payloads: [")
	time.Sleep(100 * time.Millisecond)
	if _, ok := c.Lookup("one"); !ok {
		t.Fatal("previous catalogue lost after invalid reload")
	}

	writeCatalogue(t, dir, "payloads:\n  - {name: two, payload: second}\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := c.Lookup("two"); ok && p.Payload == "second" {
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch: %v", err)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("catalogue not reloaded within deadline")
}

func TestWatch_RenameSave(t *testing.T) {
	dir := t.TempDir()
	p := writeCatalogue(t, dir, "payloads:\n  - {name: one, payload: first}\n")

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)

	// Each save replaces the file's inode; the second only lands if the watch
	// survived the first.
	for _, name := range []string{"two", "three"} {
		renameSave(t, p, "payloads:\n  - {name: "+name+", payload: x}\n")
		waitForEntry(t, c, name)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}

func TestWatch_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	p := writeCatalogue(t, dir, "payloads:\n  - {name: one, payload: first}\n")

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Watch(ctx) //nolint:errcheck

	time.Sleep(100 * time.Millisecond)

	other := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(other, []byte("payloads: ["), 0o600); err != nil {
		t.Fatalf("write sibling: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, ok := c.Lookup("one"); !ok {
		t.Fatal("sibling write changed the catalogue")
	}
}

func TestWatch_EmbeddedReturnsImmediately(t *testing.T) {
	if err := Default().Watch(context.Background()); err != nil {
		t.Errorf("Watch: %v", err)
	}
}

// --- helpers ---

// renameSave replaces path the way editors do: write a temporary file in the
// same directory, then rename it over the original.
func renameSave(t *testing.T, path, content string) {
	t.Helper()
	tmp, err := os.CreateTemp(filepath.Dir(path), ".payloads-*.yaml")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatalf("close temp: %v", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		t.Fatalf("rename: %v", err)
	}
}

func waitForEntry(t *testing.T, c *Catalogue, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.Lookup(name); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("entry %q not loaded within deadline", name)
}
