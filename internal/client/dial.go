package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/sxhxliang/agentx-proxy/internal/logger"
	"github.com/sxhxliang/agentx-proxy/internal/protocol"
)

// handleProxyRequest dials the proxy port, announces proxyConnID, and
// either splices to the configured local TCP service or parses and
// dispatches one HTTP request through the in-process router, per
// spec.md §4.3.
func (c *Client) handleProxyRequest(ctx context.Context, proxyConnID string) {
	proxyAddr := fmt.Sprintf("%s:%d", c.cfg.ServerAddr, c.cfg.ProxyPort)
	conn, err := net.Dial("tcp", proxyAddr)
	if err != nil {
		logger.Warn("client: dial proxy port failed", "error", err)
		return
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, protocol.NewProxyConn{ProxyConnID: proxyConnID, ClientID: c.id}); err != nil {
		logger.Warn("client: send NewProxyConn failed", "error", err)
		return
	}

	if c.cfg.TCPForward() {
		c.forwardTCP(conn)
		return
	}
	c.dispatchHTTP(ctx, conn)
}

// forwardTCP splices the proxy socket to the configured local service.
func (c *Client) forwardTCP(proxyConn net.Conn) {
	localAddr := fmt.Sprintf("%s:%d", c.cfg.LocalAddr, c.cfg.LocalPort)
	local, err := net.Dial("tcp", localAddr)
	if err != nil {
		logger.Warn("client: dial local service failed", "error", err, "addr", localAddr)
		return
	}
	defer local.Close()
	splice(proxyConn, local)
}

func splice(a, b net.Conn) {
	done := make(chan struct{}, 2)
	go func() { io.Copy(a, b); a.Close(); done <- struct{}{} }()
	go func() { io.Copy(b, a); b.Close(); done <- struct{}{} }()
	<-done
	<-done
}

// dispatchHTTP parses exactly one HTTP request from the proxy socket and
// runs it through the router. The proxy connection is one-shot per
// request by construction (the client dials a fresh proxy socket for
// every RequestNewProxyConn and the server replays one request onto it),
// so the response is written with "Connection: close" unless the handler
// sets a Content-Length.
func (c *Client) dispatchHTTP(ctx context.Context, conn net.Conn) {
	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		if err != io.EOF {
			logger.Warn("client: parse proxied request failed", "error", err)
		}
		return
	}
	req = req.WithContext(ctx)

	w := newConnResponseWriter(conn)
	c.router.ServeHTTP(w, req)
	w.finish()
}
