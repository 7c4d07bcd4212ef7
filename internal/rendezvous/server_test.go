package rendezvous

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sxhxliang/agentx-proxy/internal/protocol"
)

func startTestServer(t *testing.T) Config {
	t.Helper()
	cfg := Config{
		ControlAddr: "127.0.0.1:0",
		ProxyAddr:   "127.0.0.1:0",
		PublicAddr:  "127.0.0.1:0",
		PoolTarget:  1,
	}
	srv := NewServer(cfg)

	// Bind real ports up front so the test can dial them even though
	// Serve assigns cfg.ControlAddr etc. with ":0" (ephemeral port).
	controlLn, err := net.Listen("tcp", cfg.ControlAddr)
	if err != nil {
		t.Fatal(err)
	}
	proxyLn, err := net.Listen("tcp", cfg.ProxyAddr)
	if err != nil {
		t.Fatal(err)
	}
	publicLn, err := net.Listen("tcp", cfg.PublicAddr)
	if err != nil {
		t.Fatal(err)
	}
	srv.controlLn = controlLn
	srv.proxyLn = proxyLn
	srv.publicLn = publicLn

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go srv.acceptLoop(ctx, srv.controlLn, srv.handleControlConn)
	go srv.acceptLoop(ctx, srv.proxyLn, srv.handleProxyConn)
	go srv.acceptLoop(ctx, srv.publicLn, srv.handlePublicConn)
	go srv.poolMaintenanceLoop(ctx)
	go srv.pendingCleanupLoop(ctx)

	return Config{
		ControlAddr: controlLn.Addr().String(),
		ProxyAddr:   proxyLn.Addr().String(),
		PublicAddr:  publicLn.Addr().String(),
	}
}

func TestSlowPathRoundTrip(t *testing.T) {
	addrs := startTestServer(t)

	control, err := net.Dial("tcp", addrs.ControlAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer control.Close()

	if err := protocol.WriteFrame(control, protocol.Register{ClientID: "tok-1"}); err != nil {
		t.Fatal(err)
	}
	result, err := protocol.ReadFrame(control)
	if err != nil {
		t.Fatal(err)
	}
	rr, ok := result.(protocol.RegisterResult)
	if !ok || !rr.Success {
		t.Fatalf("RegisterResult = %+v", result)
	}

	publicConn, err := net.Dial("tcp", addrs.PublicAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer publicConn.Close()

	go func() {
		io.WriteString(publicConn, "GET /hello?token=tok-1 HTTP/1.1\r\nHost: x\r\n\r\n")
	}()

	frame, err := protocol.ReadFrame(control)
	if err != nil {
		t.Fatalf("expected RequestNewProxyConn on control: %v", err)
	}
	reqNew, ok := frame.(protocol.RequestNewProxyConn)
	if !ok {
		t.Fatalf("got %T, want RequestNewProxyConn", frame)
	}

	proxyConn, err := net.Dial("tcp", addrs.ProxyAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer proxyConn.Close()
	if err := protocol.WriteFrame(proxyConn, protocol.NewProxyConn{ProxyConnID: reqNew.ProxyConnID, ClientID: "tok-1"}); err != nil {
		t.Fatal(err)
	}

	reader := bufio.NewReader(proxyConn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read replayed request line: %v", err)
	}
	if !strings.HasPrefix(line, "GET /hello?token=tok-1") {
		t.Fatalf("replayed request line = %q", line)
	}

	io.WriteString(proxyConn, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
	// The backend closes its side after answering; the splice then closes
	// the public socket, which ends the read below.
	proxyConn.Close()

	publicConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := io.ReadAll(bufio.NewReader(publicConn))
	if err != nil && err != io.EOF {
		t.Fatalf("read response on public conn: %v", err)
	}
	if !strings.Contains(string(resp), "200 OK") {
		t.Fatalf("response = %q", resp)
	}
}

func TestPublicConnMissingTokenReturns404(t *testing.T) {
	addrs := startTestServer(t)

	control, err := net.Dial("tcp", addrs.ControlAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer control.Close()
	protocol.WriteFrame(control, protocol.Register{ClientID: "tok-1"})
	protocol.ReadFrame(control)

	publicConn, err := net.Dial("tcp", addrs.PublicAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer publicConn.Close()
	io.WriteString(publicConn, "GET /hello HTTP/1.1\r\nHost: x\r\n\r\n")

	publicConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, _ := io.ReadAll(publicConn)
	if !strings.Contains(string(resp), "404") {
		t.Fatalf("response = %q, want 404", resp)
	}
	if !strings.Contains(string(resp), "Client Token not found") {
		t.Fatalf("response = %q", resp)
	}
}

func TestPublicConnUnknownTokenReturns404(t *testing.T) {
	addrs := startTestServer(t)

	control, err := net.Dial("tcp", addrs.ControlAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer control.Close()
	protocol.WriteFrame(control, protocol.Register{ClientID: "tok-1"})
	protocol.ReadFrame(control)

	publicConn, err := net.Dial("tcp", addrs.PublicAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer publicConn.Close()
	io.WriteString(publicConn, "GET /hello?token=nope HTTP/1.1\r\nHost: x\r\n\r\n")

	publicConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, _ := io.ReadAll(publicConn)
	if !strings.Contains(string(resp), "Client 'nope' not found") {
		t.Fatalf("response = %q", resp)
	}
}

func TestPublicConnNoClientsReturns503(t *testing.T) {
	addrs := startTestServer(t)

	publicConn, err := net.Dial("tcp", addrs.PublicAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer publicConn.Close()
	io.WriteString(publicConn, "GET /hello?token=whatever HTTP/1.1\r\nHost: x\r\n\r\n")

	publicConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, _ := io.ReadAll(publicConn)
	if !strings.Contains(string(resp), "503") {
		t.Fatalf("response = %q, want 503", resp)
	}
}
