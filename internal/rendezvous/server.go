package rendezvous

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sxhxliang/agentx-proxy/internal/logger"
	"github.com/sxhxliang/agentx-proxy/internal/protocol"
)

// poolMaintenanceInterval is how often the server tops up every client's
// idle proxy-socket pool.
const poolMaintenanceInterval = 5 * time.Second

// socketBuffer is the SO_RCVBUF/SO_SNDBUF size set on public and proxy
// sockets (spec.md §4.2).
const socketBuffer = 256 * 1024

// Config carries the three listen addresses and pool target for a Server.
type Config struct {
	ControlAddr string
	ProxyAddr   string
	PublicAddr  string
	PoolTarget  int
}

// Server is the rendezvous fabric: three TCP listeners, a client
// registry, a pending-connection table, and the background pool
// maintenance / pending cleanup loops.
type Server struct {
	cfg Config

	clients    *registry
	pending    *pendingTable
	connIDSeq  uint64
	acceptRate *rate.Limiter

	controlLn net.Listener
	proxyLn   net.Listener
	publicLn  net.Listener
}

// NewServer constructs a Server; call Serve to start accepting.
func NewServer(cfg Config) *Server {
	if cfg.PoolTarget < 0 {
		cfg.PoolTarget = 0
	}
	return &Server{
		cfg:        cfg,
		clients:    newRegistry(),
		pending:    newPendingTable(),
		acceptRate: rate.NewLimiter(rate.Limit(50), 100),
	}
}

// nextConnID returns the next monotonic hex proxy_conn_id.
func (s *Server) nextConnID() string {
	n := atomic.AddUint64(&s.connIDSeq, 1)
	return fmt.Sprintf("%x", n)
}

// Serve binds all three listeners and accepts on them concurrently until
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	var err error
	s.controlLn, err = net.Listen("tcp", s.cfg.ControlAddr)
	if err != nil {
		return fmt.Errorf("rendezvous: control listen: %w", err)
	}
	s.proxyLn, err = net.Listen("tcp", s.cfg.ProxyAddr)
	if err != nil {
		return fmt.Errorf("rendezvous: proxy listen: %w", err)
	}
	s.publicLn, err = net.Listen("tcp", s.cfg.PublicAddr)
	if err != nil {
		return fmt.Errorf("rendezvous: public listen: %w", err)
	}

	go s.acceptLoop(ctx, s.controlLn, s.handleControlConn)
	go s.acceptLoop(ctx, s.proxyLn, s.handleProxyConn)
	go s.acceptLoop(ctx, s.publicLn, s.handlePublicConn)
	go s.poolMaintenanceLoop(ctx)
	go s.pendingCleanupLoop(ctx)

	logger.Info("rendezvous server listening",
		"control", s.cfg.ControlAddr, "proxy", s.cfg.ProxyAddr, "public", s.cfg.PublicAddr)

	<-ctx.Done()
	s.controlLn.Close()
	s.proxyLn.Close()
	s.publicLn.Close()
	return ctx.Err()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, handle func(net.Conn)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("rendezvous: accept error", "error", err)
			continue
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}
		go handle(conn)
	}
}

func setSocketBuffers(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetReadBuffer(socketBuffer)
		tcp.SetWriteBuffer(socketBuffer)
	}
}

// handleControlConn implements spec.md §4.2's control-port semantics:
// the first frame must be Register; thereafter the server only watches
// for disconnection.
func (s *Server) handleControlConn(conn net.Conn) {
	msg, err := protocol.ReadFrame(conn)
	if err != nil {
		logger.Warn("rendezvous: control: bad first frame", "error", err)
		conn.Close()
		return
	}
	reg, ok := msg.(protocol.Register)
	if !ok {
		logger.Warn("rendezvous: control: expected Register", "got", fmt.Sprintf("%T", msg))
		conn.Close()
		return
	}

	clientReg := s.clients.register(reg.ClientID, conn)
	if err := protocol.WriteFrame(conn, protocol.RegisterResult{Success: true}); err != nil {
		s.clients.remove(reg.ClientID, clientReg)
		return
	}
	logger.Info("rendezvous: client registered", "client_id", reg.ClientID)

	// Read a single byte in a loop solely to detect disconnection; no
	// further frames are expected on this half-socket.
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			s.clients.remove(reg.ClientID, clientReg)
			logger.Info("rendezvous: client disconnected", "client_id", reg.ClientID)
			return
		}
	}
}

// handleProxyConn implements spec.md §4.2's proxy-port semantics: the
// first frame must be NewProxyConn, pairing this socket with a pending
// slow-path request or parking it in the named client's idle pool.
func (s *Server) handleProxyConn(conn net.Conn) {
	setSocketBuffers(conn)

	msg, err := protocol.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return
	}
	newConn, ok := msg.(protocol.NewProxyConn)
	if !ok {
		conn.Close()
		return
	}

	if pending, found := s.pending.take(newConn.ProxyConnID); found {
		if pending.request != nil {
			w := bufio.NewWriter(conn)
			if err := pending.request.writeTo(w); err != nil {
				conn.Close()
				pending.publicConn.Close()
				return
			}
		}
		splice(pending.publicConn, conn)
		return
	}

	reg, ok := s.clients.get(newConn.ClientID)
	if !ok {
		conn.Close()
		return
	}
	reg.pushIdle(conn)
}

// handlePublicConn implements spec.md §4.2's public-port routing.
func (s *Server) handlePublicConn(conn net.Conn) {
	setSocketBuffers(conn)

	reader := bufio.NewReader(conn)
	req, err := parseRequest(reader)
	if err != nil {
		conn.Close()
		return
	}

	token := req.token()
	if token == "" {
		writeErrorResponse(conn, 404, "Client Token not found")
		conn.Close()
		return
	}
	if s.clients.count() == 0 {
		writeErrorResponse(conn, 503, "No clients connected")
		conn.Close()
		return
	}
	reg, ok := s.clients.get(token)
	if !ok {
		writeErrorResponse(conn, 404, fmt.Sprintf("Client '%s' not found", token))
		conn.Close()
		return
	}

	// Fast path: an idle proxy socket is ready now.
	if idle := reg.popIdle(); idle != nil {
		w := bufio.NewWriter(idle)
		if err := req.writeTo(w); err != nil {
			idle.Close()
			conn.Close()
			return
		}
		splice(conn, idle)
		return
	}

	// Slow path: park this request and ask the client to dial back.
	connID := s.nextConnID()
	s.pending.insert(connID, &pendingConnection{publicConn: conn, request: req, createdAt: time.Now()})

	control := reg.Control()
	if control == nil {
		s.pending.take(connID)
		conn.Close()
		return
	}
	if err := protocol.WriteFrame(control, protocol.RequestNewProxyConn{ProxyConnID: connID}); err != nil {
		if p, ok := s.pending.take(connID); ok {
			p.publicConn.Close()
		}
		return
	}
	// Pairing happens asynchronously when handleProxyConn sees connID.
}

func writeErrorResponse(w io.Writer, status int, body string) {
	fmt.Fprintf(w, "HTTP/1.1 %d %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, http.StatusText(status), len(body), body)
}

// splice bidirectionally copies between a and b until either half
// closes, then drains both sides before returning.
func splice(a, b net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		io.Copy(a, b)
		a.Close()
		done <- struct{}{}
	}()
	go func() {
		io.Copy(b, a)
		b.Close()
		done <- struct{}{}
	}()
	<-done
	<-done
}

func (s *Server) poolMaintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(poolMaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maintainPools()
		}
	}
}

func (s *Server) maintainPools() {
	for _, reg := range s.clients.snapshot() {
		control := reg.Control()
		if control == nil {
			continue
		}
		deficit := s.cfg.PoolTarget - reg.poolLen()
		for i := 0; i < deficit; i++ {
			if !s.acceptRate.Allow() {
				break
			}
			id := s.nextConnID()
			if err := protocol.WriteFrame(control, protocol.RequestNewProxyConn{ProxyConnID: id}); err != nil {
				break // stop for this tick on repeated send failure
			}
		}
	}
}

func (s *Server) pendingCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(pendingCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range s.pending.sweepExpired(time.Now()) {
				p.publicConn.Close()
			}
		}
	}
}
