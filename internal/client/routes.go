package client

import (
	"encoding/json"
	"net/http"
)

// registerRoutes wires every route listed under spec.md §4.7, plus the
// additive status endpoint and dynamic TCP proxy route.
func (c *Client) registerRoutes() {
	c.router.Handle(http.MethodPost, "/api/sessions", c.handleCreateSession)
	c.router.Handle(http.MethodGet, "/api/sessions/{id}", c.handleGetSession)
	c.router.Handle(http.MethodDelete, "/api/sessions/{id}", c.handleDeleteSession)
	c.router.Handle(http.MethodPost, "/api/sessions/{id}/cancel", c.handleCancelSession)

	for _, kind := range allKinds {
		prefix := "/api/" + string(kind)
		c.router.Handle(http.MethodGet, prefix+"/projects", c.handleListProjects(kind))
		c.router.Handle(http.MethodGet, prefix+"/projects/working-directories", c.handleWorkingDirectories(kind))
		c.router.Handle(http.MethodGet, prefix+"/projects/{project_id}/sessions", c.handleListProjectSessions(kind))
		c.router.Handle(http.MethodGet, prefix+"/sessions", c.handleListAllSessions(kind))
		c.router.Handle(http.MethodGet, prefix+"/sessions/{id}", c.handleGetHistorySession(kind))
		c.router.Handle(http.MethodDelete, prefix+"/sessions/{id}", c.handleDeleteHistorySession(kind))
	}

	c.router.Handle("", "/proxy/{port}/{*path}", c.handleTCPProxy)

	c.router.Handle(http.MethodGet, "/api/status", c.handleStatus)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"type": "error", "message": message})
}
