package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sxhxliang/agentx-proxy/internal/logger"
	"github.com/sxhxliang/agentx-proxy/internal/protocol"
)

// Run dials the rendezvous server's control port, registers, and serves
// RequestNewProxyConn frames until ctx is cancelled or the control
// connection is lost. A registration failure returns a non-nil error so
// main can exit non-zero (spec.md §6).
func (c *Client) Run(ctx context.Context) error {
	controlAddr := fmt.Sprintf("%s:%d", c.cfg.ServerAddr, c.cfg.ControlPort)
	conn, err := net.Dial("tcp", controlAddr)
	if err != nil {
		return fmt.Errorf("client: dial control port: %w", err)
	}

	if err := protocol.WriteFrame(conn, protocol.Register{ClientID: c.id}); err != nil {
		conn.Close()
		return fmt.Errorf("client: send Register: %w", err)
	}
	msg, err := protocol.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("client: read RegisterResult: %w", err)
	}
	result, ok := msg.(protocol.RegisterResult)
	if !ok || !result.Success {
		conn.Close()
		return fmt.Errorf("client: registration rejected: %s", result.Error)
	}

	c.statusMu.Lock()
	c.controlConn = conn
	c.lastFrameAt = time.Now()
	c.statusMu.Unlock()

	logger.Info("client: registered", "client_id", c.id, "server", controlAddr)

	frames := make(chan protocol.Message)
	errCh := make(chan error, 1)
	go func() {
		for {
			m, err := protocol.ReadFrame(conn)
			if err != nil {
				errCh <- err
				return
			}
			frames <- m
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return ctx.Err()
		case err := <-errCh:
			conn.Close()
			return fmt.Errorf("client: control connection lost: %w", err)
		case m := <-frames:
			c.statusMu.Lock()
			c.lastFrameAt = time.Now()
			c.statusMu.Unlock()

			req, ok := m.(protocol.RequestNewProxyConn)
			if !ok {
				logger.Warn("client: unexpected control frame", "type", fmt.Sprintf("%T", m))
				continue
			}
			go c.handleProxyRequest(ctx, req.ProxyConnID)
		}
	}
}
