// Package client implements the client agent: it dials the rendezvous
// server's control port, registers, and for every RequestNewProxyConn
// either splices a raw TCP backend or dispatches one HTTP request through
// an in-process router exposing the session engine and history store.
// It mirrors the teacher lineage's internal/sandbox.DomainProxy dial/
// hijack/splice idiom, generalized to a control-plane-driven pairing
// protocol instead of HTTP CONNECT.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sxhxliang/agentx-proxy/internal/config"
	"github.com/sxhxliang/agentx-proxy/internal/executor"
	"github.com/sxhxliang/agentx-proxy/internal/history"
	"github.com/sxhxliang/agentx-proxy/internal/logger"
	"github.com/sxhxliang/agentx-proxy/internal/router"
	"github.com/sxhxliang/agentx-proxy/internal/session"
)

// allKinds is iteration order used whenever history endpoints need to try
// every executor kind (e.g. locating a session to delete with no
// `?executor=` hint).
var allKinds = []executor.Kind{executor.Claude, executor.Codex, executor.Gemini}

// Client is one client agent instance: its configuration, the session
// engine it exposes, the per-kind history stores, and its in-process
// HTTP router.
type Client struct {
	cfg       config.ClientConfig
	id        string
	manager   *session.Manager
	histories map[executor.Kind]*history.Store
	router    *router.Router
	watcher   *history.Watcher

	startTime time.Time

	statusMu     sync.Mutex
	controlConn  net.Conn
	lastFrameAt  time.Time
}

// New builds a Client ready to Run. ctx governs the session manager's
// idle sweep and, if enabled, the history change watcher.
func New(ctx context.Context, cfg config.ClientConfig, clientID string) (*Client, error) {
	homeDir, err := homeDirFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("client: resolve home dir: %w", err)
	}

	watcher, sharedCache, err := history.NewWatcher(allKinds, homeDir)
	if err != nil {
		logger.Warn("client: history watcher unavailable, falling back to uncached scans", "error", err)
	}

	histories := make(map[executor.Kind]*history.Store, len(allKinds))
	for _, kind := range allKinds {
		histories[kind] = history.NewStore(kind, homeDir, sharedCache)
	}

	c := &Client{
		cfg:         cfg,
		id:          clientID,
		manager:     session.NewManager(ctx),
		histories:   histories,
		router:      router.New(),
		watcher:     watcher,
		startTime:   time.Now(),
	}
	c.registerRoutes()
	return c, nil
}

// Close releases background resources (the history watcher).
func (c *Client) Close() {
	if c.watcher != nil {
		c.watcher.Close()
	}
}
