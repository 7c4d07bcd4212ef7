package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sxhxliang/agentx-proxy/internal/executor"
)

func TestMtimeCacheGetSetInvalidate(t *testing.T) {
	c := newMtimeCache()
	dir := "/tmp/project-x"

	if _, ok := c.get(dir); ok {
		t.Fatal("expected miss on empty cache")
	}

	p := &Project{ID: "project-x"}
	c.set(dir, p)
	got, ok := c.get(dir)
	if !ok || got != p {
		t.Fatalf("get = %v, %v", got, ok)
	}

	c.invalidate(dir)
	if _, ok := c.get(dir); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestNilCacheAlwaysMisses(t *testing.T) {
	var c *mtimeCache
	if _, ok := c.get("/anything"); ok {
		t.Fatal("nil cache must always miss")
	}
	c.set("/anything", &Project{}) // must not panic
}

func TestWatcherInvalidatesOnWrite(t *testing.T) {
	home := t.TempDir()
	projDir := filepath.Join(home, ".claude", "projects", "-home-dev-app")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(projDir, "sess-1.jsonl"), []byte(`{"type":"user"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, cache, err := NewWatcher([]executor.Kind{executor.Claude}, home)
	if err != nil {
		t.Skipf("fsnotify unavailable in this environment: %v", err)
	}
	defer w.Close()

	cache.set(projDir, &Project{ID: "-home-dev-app"})

	if err := os.WriteFile(filepath.Join(projDir, "sess-1.jsonl"), []byte(`{"type":"user"}`+"\n"+`{"type":"user"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := cache.get(projDir); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected cache entry to be invalidated after file write")
}
