package client

import (
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sxhxliang/agentx-proxy/internal/executor"
	"github.com/sxhxliang/agentx-proxy/internal/history"
	"github.com/sxhxliang/agentx-proxy/internal/router"
)

// handleListProjects returns GET /api/<kind>/projects: every project this
// kind has a transcript directory for, most recently active first.
func (c *Client) handleListProjects(kind executor.Kind) router.Handler {
	return func(w http.ResponseWriter, r *http.Request, _ router.Params) {
		projects, err := c.histories[kind].ListProjects()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, projects)
	}
}

type workingDirectory struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	LastDate string `json:"last_date"`
}

// handleWorkingDirectories returns GET /api/<kind>/projects/working-directories:
// a display-friendly view over the same project list, named by the last
// two path components and sorted by last activity.
func (c *Client) handleWorkingDirectories(kind executor.Kind) router.Handler {
	return func(w http.ResponseWriter, r *http.Request, _ router.Params) {
		projects, err := c.histories[kind].ListProjects()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		dirs := make([]workingDirectory, 0, len(projects))
		for _, p := range projects {
			dirs = append(dirs, workingDirectory{
				Path:     p.Path,
				Name:     shortName(p.Path),
				LastDate: p.LastActive.UTC().Format("2006-01-02T15:04:05Z"),
			})
		}
		sort.SliceStable(dirs, func(i, j int) bool { return dirs[i].LastDate > dirs[j].LastDate })
		writeJSON(w, http.StatusOK, dirs)
	}
}

// shortName joins the last two path components, e.g. "/home/x/proj/app"
// -> "proj/app". A path shorter than two components is returned as-is.
func shortName(path string) string {
	clean := filepath.ToSlash(strings.TrimRight(path, "/"))
	parts := strings.Split(clean, "/")
	if len(parts) <= 2 {
		return clean
	}
	return strings.Join(parts[len(parts)-2:], "/")
}

func (c *Client) handleListProjectSessions(kind executor.Kind) router.Handler {
	return func(w http.ResponseWriter, r *http.Request, params router.Params) {
		sessions, err := c.histories[kind].ListSessions(params["project_id"])
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

// handleListAllSessions returns GET /api/<kind>/sessions, optionally
// filtered to a single project_path and paginated via offset/limit.
func (c *Client) handleListAllSessions(kind executor.Kind) router.Handler {
	return func(w http.ResponseWriter, r *http.Request, _ router.Params) {
		store := c.histories[kind]
		projects, err := store.ListProjects()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		filterPath := r.URL.Query().Get("projectPath")

		var all []history.Session
		for _, p := range projects {
			if filterPath != "" && p.Path != filterPath {
				continue
			}
			sessions, err := store.ListSessions(p.ID)
			if err != nil {
				continue
			}
			all = append(all, sessions...)
		}
		sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

		offset := queryInt(r, "offset", 0)
		limit := queryInt(r, "limit", -1)
		if offset > len(all) {
			offset = len(all)
		}
		all = all[offset:]
		if limit >= 0 && limit < len(all) {
			all = all[:limit]
		}

		writeJSON(w, http.StatusOK, all)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (c *Client) handleGetHistorySession(kind executor.Kind) router.Handler {
	return func(w http.ResponseWriter, r *http.Request, params router.Params) {
		id := params["id"]
		store := c.histories[kind]
		projectID, ok := store.FindProjectForSession(id)
		if !ok {
			writeError(w, http.StatusNotFound, "session not found: "+id)
			return
		}
		lines, err := store.ReadTranscript(projectID, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, lines)
	}
}

func (c *Client) handleDeleteHistorySession(kind executor.Kind) router.Handler {
	return func(w http.ResponseWriter, r *http.Request, params router.Params) {
		id := params["id"]
		store := c.histories[kind]
		projectID, ok := store.FindProjectForSession(id)
		if !ok {
			writeError(w, http.StatusNotFound, "session not found: "+id)
			return
		}
		if err := store.DeleteSession(projectID, id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "session_deleted"})
	}
}
