package client

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sxhxliang/agentx-proxy/internal/executor"
	"github.com/sxhxliang/agentx-proxy/internal/router"
	"github.com/sxhxliang/agentx-proxy/internal/session"
)

// createSessionRequest is the POST /api/sessions body.
type createSessionRequest struct {
	Prompt      string   `json:"prompt"`
	ProjectPath string   `json:"project_path"`
	Executor    string   `json:"executor"`
	ResumeID    string   `json:"resume_id"`
	Model       string   `json:"model"`

	PermissionMode             string   `json:"permission_mode"`
	DangerouslySkipPermissions bool     `json:"dangerously_skip_permissions"`
	AllowedTools               []string `json:"allowed_tools"`

	ApprovalMode string `json:"approval_mode"`
}

func (c *Client) handleCreateSession(w http.ResponseWriter, r *http.Request, _ router.Params) {
	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Prompt == "" || body.ProjectPath == "" {
		writeError(w, http.StatusBadRequest, "prompt and project_path are required")
		return
	}

	kind, err := executor.ParseKind(body.Executor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := executor.Options{
		Prompt:                     body.Prompt,
		ProjectPath:                body.ProjectPath,
		ResumeID:                   body.ResumeID,
		Model:                      body.Model,
		PermissionMode:             body.PermissionMode,
		DangerouslySkipPermissions: body.DangerouslySkipPermissions,
		AllowedTools:               body.AllowedTools,
		ApprovalMode:               body.ApprovalMode,
	}
	if err := opts.Validate(kind); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := c.manager.Create(r.Context(), kind, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	session.Stream(r.Context(), w, sess, 0, nil)
}

func (c *Client) handleGetSession(w http.ResponseWriter, r *http.Request, params router.Params) {
	id := params["id"]
	fromLine := parseFromLine(r)

	if sess, ok := c.manager.Get(id); ok {
		session.Stream(r.Context(), w, sess, fromLine, nil)
		return
	}

	kinds := kindsToTry(r.URL.Query().Get("executor"))
	for _, kind := range kinds {
		store := c.histories[kind]
		projectID, ok := store.FindProjectForSession(id)
		if !ok {
			continue
		}
		lines, err := store.ReadTranscript(projectID, id)
		if err != nil {
			continue
		}
		serveHistoricalOnly(w, lines, fromLine)
		return
	}

	writeError(w, http.StatusNotFound, "session not found: "+id)
}

func (c *Client) handleDeleteSession(w http.ResponseWriter, r *http.Request, params router.Params) {
	id := params["id"]

	if sess, ok := c.manager.Get(id); ok {
		if sess.Status() == session.StatusRunning {
			if err := sess.Cancel("deleted via API"); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "session_cancelled"})
			return
		}
		c.manager.Delete(id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "session_removed"})
		return
	}

	kinds := kindsToTry(r.URL.Query().Get("executor"))
	for _, kind := range kinds {
		store := c.histories[kind]
		projectID, ok := store.FindProjectForSession(id)
		if !ok {
			continue
		}
		if err := store.DeleteSession(projectID, id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "session_deleted"})
		return
	}

	writeError(w, http.StatusNotFound, "session not found: "+id)
}

func (c *Client) handleCancelSession(w http.ResponseWriter, r *http.Request, params router.Params) {
	id := params["id"]
	sess, ok := c.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	if err := sess.Cancel("cancelled via API"); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "session_cancelled"})
}

func parseFromLine(r *http.Request) int {
	v := r.URL.Query().Get("from_line")
	if v == "" {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// kindsToTry returns [requested] when the caller pinned an executor, or
// every known kind in spec order otherwise.
func kindsToTry(requested string) []executor.Kind {
	if requested == "" {
		return allKinds
	}
	kind, err := executor.ParseKind(requested)
	if err != nil {
		return nil
	}
	return []executor.Kind{kind}
}

// serveHistoricalOnly streams a purely on-disk transcript as SSE: every
// raw JSONL line at or after fromLine, then a single completion event.
// There is no live subprocess backing this session any more, so there is
// nothing to poll for.
func serveHistoricalOnly(w http.ResponseWriter, lines []json.RawMessage, fromLine int) {
	session.WritePreamble(w)
	sent := 0
	for i, line := range lines {
		if i+1 < fromLine {
			continue
		}
		session.WriteDataEvent(w, string(line))
		sent++
	}
	session.WriteDataEvent(w, `{"type":"completion","success":true,"total_lines":`+strconv.Itoa(sent)+`}`)
}
