package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sxhxliang/agentx-proxy/internal/config"
	"github.com/sxhxliang/agentx-proxy/internal/executor"
	"github.com/sxhxliang/agentx-proxy/internal/history"
	"github.com/sxhxliang/agentx-proxy/internal/router"
	"github.com/sxhxliang/agentx-proxy/internal/session"
)

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	homeDir := t.TempDir()

	histories := make(map[executor.Kind]*history.Store, len(allKinds))
	for _, kind := range allKinds {
		histories[kind] = history.NewStore(kind, homeDir, nil)
	}

	c := &Client{
		cfg:       config.DefaultClientConfig(),
		id:        "test-client",
		manager:   session.NewManager(context.Background()),
		histories: histories,
		router:    router.New(),
		startTime: time.Now(),
	}
	c.registerRoutes()
	return c, homeDir
}

func writeJSONLTranscript(t *testing.T, homeDir, projectID, sessionID string, lines []string) {
	t.Helper()
	dir := filepath.Join(homeDir, ".claude", "projects", projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHandleListProjectsEmpty(t *testing.T) {
	c, _ := newTestClient(t)

	req := httptest.NewRequest(http.MethodGet, "/api/claude/projects", nil)
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var projects []history.Project
	if err := json.Unmarshal(w.Body.Bytes(), &projects); err != nil {
		t.Fatal(err)
	}
	if len(projects) != 0 {
		t.Fatalf("expected no projects, got %d", len(projects))
	}
}

func TestHandleGetSessionNotFound(t *testing.T) {
	c, _ := newTestClient(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil)
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleCreateSessionRejectsMissingFields(t *testing.T) {
	c, _ := newTestClient(t)

	body, _ := json.Marshal(map[string]string{"prompt": ""})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandleCreateSessionRejectsBadExecutor(t *testing.T) {
	c, _ := newTestClient(t)

	body, _ := json.Marshal(map[string]string{
		"prompt":       "hi",
		"project_path": "/tmp",
		"executor":     "not-a-real-cli",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleStatusReportsDisconnected(t *testing.T) {
	c, _ := newTestClient(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ConnectedToServer {
		t.Fatal("expected disconnected status before Run is called")
	}
	if resp.ClientID != "test-client" {
		t.Fatalf("client_id = %q", resp.ClientID)
	}
}

func TestHandleWorkingDirectoriesDerivesShortName(t *testing.T) {
	c, homeDir := newTestClient(t)

	writeJSONLTranscript(t, homeDir, "-home-alice-work-myapp", "sess-1", []string{
		`{"type":"user","cwd":"/home/alice/work/myapp","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"hi"}}`,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/claude/projects/working-directories", nil)
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var dirs []workingDirectory
	if err := json.Unmarshal(w.Body.Bytes(), &dirs); err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 1 {
		t.Fatalf("expected 1 dir, got %d", len(dirs))
	}
	if dirs[0].Name != "work/myapp" {
		t.Fatalf("name = %q", dirs[0].Name)
	}
}

func TestHandleGetHistorySessionReturnsTranscript(t *testing.T) {
	c, homeDir := newTestClient(t)

	writeJSONLTranscript(t, homeDir, "-home-alice-work-myapp", "sess-2", []string{
		`{"type":"user","cwd":"/home/alice/work/myapp","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"hi"}}`,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/claude/sessions/sess-2", nil)
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var lines []json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &lines); err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
}

func TestHandleDeleteHistorySessionRemovesTranscript(t *testing.T) {
	c, homeDir := newTestClient(t)

	writeJSONLTranscript(t, homeDir, "-home-alice-work-myapp", "sess-3", []string{
		`{"type":"user","cwd":"/home/alice/work/myapp","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"hi"}}`,
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/claude/sessions/sess-3", nil)
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	path := filepath.Join(homeDir, ".claude", "projects", "-home-alice-work-myapp", "sess-3.jsonl")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected transcript removed, stat err = %v", err)
	}
}
