// Package rendezvous implements the three-port TCP fabric that lets a
// public-facing server hand HTTP traffic to client agents that only ever
// dial out. It mirrors the teacher lineage's internal/sandbox.DomainProxy
// and internal/relay request-forwarding idioms (accept, hijack-or-splice,
// bidirectional io.Copy) but replaces the single-process CONNECT proxy
// with a registry of remote clients paired over a control channel.
package rendezvous

import (
	"net"
	"sync"

	"github.com/sxhxliang/agentx-proxy/internal/logger"
)

// ClientRegistration tracks one connected client agent: its exclusive
// control-socket writer and a pool of idle proxy sockets ready for
// immediate request replay.
type ClientRegistration struct {
	ClientID string

	mu      sync.Mutex
	control net.Conn
	pool    []net.Conn
	closed  bool
}

func newClientRegistration(clientID string, control net.Conn) *ClientRegistration {
	return &ClientRegistration{ClientID: clientID, control: control}
}

// Control returns the exclusive control-socket writer, or nil if the
// registration has since been evicted.
func (c *ClientRegistration) Control() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.control
}

// popIdle pops one socket from the pool (LIFO), or returns nil if empty.
func (c *ClientRegistration) popIdle() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.pool)
	if n == 0 {
		return nil
	}
	conn := c.pool[n-1]
	c.pool = c.pool[:n-1]
	return conn
}

// pushIdle appends a freshly-dialed proxy socket to the pool.
func (c *ClientRegistration) pushIdle(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return
	}
	c.pool = append(c.pool, conn)
}

// poolLen reports the current idle pool depth.
func (c *ClientRegistration) poolLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pool)
}

// evict closes the control socket and drains the idle pool. Called on
// duplicate Register or control-socket disconnect.
func (c *ClientRegistration) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.control != nil {
		c.control.Close()
	}
	for _, conn := range c.pool {
		conn.Close()
	}
	c.pool = nil
}

// registry is the concurrent client_id -> ClientRegistration map. A plain
// RWMutex-guarded map is used rather than sync.Map: the access pattern is
// read-heavy but not so hot that sync.Map's lack of a `Len`/range
// consistency guarantee is worth the tradeoff, and the pool-maintenance
// loop needs a stable snapshot every tick.
type registry struct {
	mu      sync.RWMutex
	clients map[string]*ClientRegistration
}

func newRegistry() *registry {
	return &registry{clients: make(map[string]*ClientRegistration)}
}

// register installs a new ClientRegistration, evicting any prior one
// under the same client_id.
func (r *registry) register(clientID string, control net.Conn) *ClientRegistration {
	r.mu.Lock()
	prior, existed := r.clients[clientID]
	reg := newClientRegistration(clientID, control)
	r.clients[clientID] = reg
	r.mu.Unlock()

	if existed {
		logger.Info("rendezvous: evicting duplicate registration", "client_id", clientID)
		prior.evict()
	}
	return reg
}

func (r *registry) get(clientID string) (*ClientRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.clients[clientID]
	return reg, ok
}

func (r *registry) remove(clientID string, reg *ClientRegistration) {
	r.mu.Lock()
	if current, ok := r.clients[clientID]; ok && current == reg {
		delete(r.clients, clientID)
	}
	r.mu.Unlock()
	reg.evict()
}

func (r *registry) snapshot() []*ClientRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ClientRegistration, 0, len(r.clients))
	for _, reg := range r.clients {
		out = append(out, reg)
	}
	return out
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
