package history

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/sxhxliang/agentx-proxy/internal/executor"
	"github.com/sxhxliang/agentx-proxy/internal/logger"
)

// mtimeCache holds the last-scanned Project snapshot per project
// directory so project listings (and the working-directory view built on
// them) can skip a full directory rescan on the common path; per-session
// status is always read fresh. It is invalidated by Watcher on fsnotify
// events and is safe for concurrent use. On a nil cache get always
// misses, so it degrades to always scanning.
type mtimeCache struct {
	mu      sync.RWMutex
	entries map[string]*Project
}

func newMtimeCache() *mtimeCache {
	return &mtimeCache{entries: make(map[string]*Project)}
}

func (c *mtimeCache) get(projectDir string) (*Project, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[projectDir]
	return p, ok
}

func (c *mtimeCache) set(projectDir string, p *Project) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[projectDir] = p
	c.mu.Unlock()
}

func (c *mtimeCache) invalidate(projectDir string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, projectDir)
	c.mu.Unlock()
}

// Watcher watches one or more executor kinds' `projects/` trees and
// invalidates their mtime cache entries on write/create events. It is a
// performance layer only: if fsnotify fails to start (e.g. the inotify
// watch limit is exhausted), NewWatcher returns an error and callers are
// expected to keep using uncached Stores rather than fail startup.
type Watcher struct {
	fsw   *fsnotify.Watcher
	cache *mtimeCache
	done  chan struct{}
}

// NewWatcher starts an fsnotify watch rooted at each kind's projects/
// directory under homeDir, feeding a shared mtimeCache that Stores built
// with the same cache will consult.
func NewWatcher(kinds []executor.Kind, homeDir string) (*Watcher, *mtimeCache, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	cache := newMtimeCache()
	added := 0
	for _, kind := range kinds {
		root := filepath.Join(homeDir, homeSubdir[kind], "projects")
		entries, err := os.ReadDir(root)
		if err != nil {
			continue // kind has no transcript home yet; nothing to watch
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			if err := fsw.Add(dir); err == nil {
				added++
			}
		}
	}
	if added == 0 {
		fsw.Close()
		return nil, nil, errNoWatchableDirs
	}

	w := &Watcher{fsw: fsw, cache: cache, done: make(chan struct{})}
	go w.run()
	return w, cache, nil
}

var errNoWatchableDirs = watchError("history: no project directories to watch")

type watchError string

func (e watchError) Error() string { return string(e) }

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
				w.cache.invalidate(filepath.Dir(event.Name))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("history watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
