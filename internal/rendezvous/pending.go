package rendezvous

import (
	"net"
	"sync"
	"time"
)

// pendingTTL bounds how long a slow-path request waits for the client to
// dial back before the entry is dropped and its public socket closed.
const pendingTTL = 10 * time.Second

// pendingCleanupInterval is how often the expiry sweep runs.
const pendingCleanupInterval = 2 * time.Second

// parsedRequest is the byte-exact material needed to replay an HTTP
// request onto a freshly-paired proxy socket.
type parsedRequest struct {
	Method      string
	Path        string
	Query       string // raw query string, empty if none
	Proto       string
	Header      map[string][]string
	HeaderOrder []string
	Body        []byte
}

// pendingConnection is a public-socket request waiting for its client to
// dial the proxy port with a matching NewProxyConn.
type pendingConnection struct {
	publicConn net.Conn
	request    *parsedRequest // nil if the request failed to parse
	createdAt  time.Time
}

// pendingTable is the concurrent proxy_conn_id -> pendingConnection map.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingConnection
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingConnection)}
}

func (t *pendingTable) insert(id string, p *pendingConnection) {
	t.mu.Lock()
	t.entries[id] = p
	t.mu.Unlock()
}

// take removes and returns the entry for id, if present.
func (t *pendingTable) take(id string) (*pendingConnection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return p, ok
}

// sweepExpired removes and returns every entry older than pendingTTL.
func (t *pendingTable) sweepExpired(now time.Time) []*pendingConnection {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []*pendingConnection
	for id, p := range t.entries {
		if now.Sub(p.createdAt) > pendingTTL {
			expired = append(expired, p)
			delete(t.entries, id)
		}
	}
	return expired
}
