package client

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/sxhxliang/agentx-proxy/internal/router"
)

// handleTCPProxy implements the dynamic "/proxy/{port}/{*path}" route: it
// forwards the request to a process listening on 127.0.0.1:{port}, the
// same local-loopback reverse-proxy idiom the rendezvous protocol uses to
// reach the command-session engine itself, generalized here to any local
// port the operator wants reachable through the tunnel (e.g. a dev
// server the agent started).
func (c *Client) handleTCPProxy(w http.ResponseWriter, r *http.Request, params router.Params) {
	port, err := strconv.Atoi(params["port"])
	if err != nil || port <= 0 || port > 65535 {
		writeError(w, http.StatusBadRequest, "invalid proxy port")
		return
	}

	target := &url.URL{Scheme: "http", Host: "127.0.0.1:" + strconv.Itoa(port)}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.URL.Path = "/" + params["path"]
		req.URL.RawQuery = r.URL.RawQuery
		req.Host = target.Host
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	proxy.ServeHTTP(w, r.WithContext(ctx))
}
