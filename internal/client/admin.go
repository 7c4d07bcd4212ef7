package client

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/sxhxliang/agentx-proxy/internal/logger"
)

// ServeAdmin binds a loopback-only HTTP listener exposing the same router
// the tunnel dispatches through, so a local `agentx-client status` process
// (or the TUI) can introspect a running client without a round trip
// through the rendezvous server. A port of 0 disables this listener.
func (c *Client) ServeAdmin(ctx context.Context, port int) error {
	if port == 0 {
		return nil
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("client: admin listener: %w", err)
	}

	srv := &http.Server{Handler: c.router}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	logger.Info("client: admin endpoint listening", "addr", addr)

	select {
	case <-ctx.Done():
		srv.Close()
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("client: admin server: %w", err)
		}
		return nil
	}
}
