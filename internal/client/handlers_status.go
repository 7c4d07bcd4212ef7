package client

import (
	"net/http"
	"time"

	"github.com/sxhxliang/agentx-proxy/internal/router"
	"github.com/sxhxliang/agentx-proxy/internal/session"
)

type statusResponse struct {
	ClientID          string         `json:"client_id"`
	ConnectedToServer bool           `json:"connected_to_server"`
	LastFrameAt       *time.Time     `json:"last_frame_at,omitempty"`
	UptimeSeconds     float64        `json:"uptime_seconds"`
	SessionCounts     map[string]int `json:"session_counts"`
	TotalSessions     int            `json:"total_sessions"`
}

// handleStatus is the additive GET /api/status endpoint (not part of
// spec.md §4.7's list): a snapshot the TUI and `agentx-client status`
// poll. True pool occupancy is server-side state the client never
// observes directly, so this reports what the client does own: control-
// connection health and in-memory session counts.
func (c *Client) handleStatus(w http.ResponseWriter, r *http.Request, _ router.Params) {
	c.statusMu.Lock()
	connected := c.controlConn != nil
	var lastFrame *time.Time
	if !c.lastFrameAt.IsZero() {
		t := c.lastFrameAt
		lastFrame = &t
	}
	c.statusMu.Unlock()

	counts := map[string]int{
		session.StatusRunning.String():   0,
		session.StatusCompleted.String(): 0,
		session.StatusFailed.String():    0,
		session.StatusCancelled.String(): 0,
	}
	all := c.manager.All()
	for _, sess := range all {
		counts[sess.Status().String()]++
	}

	writeJSON(w, http.StatusOK, statusResponse{
		ClientID:          c.id,
		ConnectedToServer: connected,
		LastFrameAt:       lastFrame,
		UptimeSeconds:     time.Since(c.startTime).Seconds(),
		SessionCounts:     counts,
		TotalSessions:     len(all),
	})
}
