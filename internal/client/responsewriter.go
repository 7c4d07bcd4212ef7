package client

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// connResponseWriter adapts a raw net.Conn into an http.ResponseWriter
// (and http.Flusher, for the session engine's SSE handler). Responses
// that never set Content-Length are framed as "Connection: close" and
// terminated by closing the socket, matching the one-request-per-proxy-
// socket model: there is no keep-alive to preserve.
type connResponseWriter struct {
	conn        net.Conn
	bw          *bufio.Writer
	header      http.Header
	status      int
	wroteHeader bool
}

func newConnResponseWriter(conn net.Conn) *connResponseWriter {
	return &connResponseWriter{
		conn:   conn,
		bw:     bufio.NewWriter(conn),
		header: make(http.Header),
	}
}

func (w *connResponseWriter) Header() http.Header { return w.header }

func (w *connResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = status

	if w.header.Get("Content-Length") == "" {
		w.header.Set("Connection", "close")
	}
	fmt.Fprintf(w.bw, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	w.header.Write(w.bw)
	w.bw.WriteString("\r\n")
	w.bw.Flush()
}

func (w *connResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.bw.Write(p)
}

// Flush satisfies http.Flusher so SSE handlers can push events as they
// are produced rather than buffering until the handler returns.
func (w *connResponseWriter) Flush() {
	w.bw.Flush()
}

// finish ensures any buffered bytes reach the socket once the handler
// returns.
func (w *connResponseWriter) finish() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.bw.Flush()
}
