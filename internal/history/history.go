// Package history reads, enumerates, and deletes the on-disk transcript
// directories each coding-agent CLI already maintains for itself
// (`~/.claude`, `~/.codex`, `~/.gemini`). It never writes a transcript —
// the CLI subprocess owns that — it only indexes and prunes what is
// already there. This mirrors the teacher lineage's internal/history.Store
// (internal/history/store.go) but trades "one JSON file per session,
// written by us" for "one JSONL transcript per session, written by the
// CLI, read-only from here".
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sxhxliang/agentx-proxy/internal/executor"
)

// staleWindow is how recently a transcript file must have been written to
// for its session to be considered "ongoing" rather than "completed".
const staleWindow = 3 * time.Second

// homeSubdir maps an executor kind to its per-user transcript home.
var homeSubdir = map[executor.Kind]string{
	executor.Claude: ".claude",
	executor.Codex:  ".codex",
	executor.Gemini: ".gemini",
}

// Project is a read-only snapshot of one `projects/<encoded>` directory.
type Project struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	SessionIDs []string  `json:"session_ids"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Session is a read-only snapshot of one `<session_uuid>.jsonl` transcript.
type Session struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"project_id"`
	ProjectPath      string          `json:"project_path"`
	Todo             json.RawMessage `json:"todo,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	FirstUserMessage string          `json:"first_user_message,omitempty"`
	FirstMessageAt   *time.Time      `json:"first_message_at,omitempty"`
	MessageCount     int             `json:"message_count"`
	TotalDuration    *float64        `json:"total_duration_seconds,omitempty"`
	Status           string          `json:"status"`
}

const (
	StatusPending   = "pending"
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
)

// transcriptLine is the subset of a JSONL transcript line we care about.
// The CLIs emit richer records; unknown fields are simply ignored.
type transcriptLine struct {
	Type      string         `json:"type"`
	Cwd       string         `json:"cwd"`
	Timestamp string         `json:"timestamp"`
	IsMeta    bool           `json:"isMeta"`
	Message   *transcriptMsg `json:"message"`
}

type transcriptMsg struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock matches the Anthropic-style `[{"type":"text","text":"..."}]`
// content shape; plain-string content is handled separately.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// extractText flattens a message's content field, which a transcript may
// encode as a bare string or as a list of typed blocks.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var b strings.Builder
		for _, blk := range blocks {
			if blk.Type == "text" {
				b.WriteString(blk.Text)
			}
		}
		return b.String()
	}
	return ""
}

// isCaveat reports whether text is one of the CLI's injected notices
// rather than a real user message (spec: "non-caveat user message").
func isCaveat(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "Caveat:")
}

// Store reads the transcript home for one executor kind. homeDir is the
// user's home directory; tests override it with a temp directory.
type Store struct {
	kind    executor.Kind
	homeDir string
	cache   *mtimeCache
}

// NewStore returns a Store for kind rooted at homeDir (typically
// os.UserHomeDir()). cache may be nil; a nil cache degrades to always
// scanning the filesystem directly.
func NewStore(kind executor.Kind, homeDir string, cache *mtimeCache) *Store {
	return &Store{kind: kind, homeDir: homeDir, cache: cache}
}

func (s *Store) projectsDir() string {
	return filepath.Join(s.homeDir, homeSubdir[s.kind], "projects")
}

func (s *Store) todosDir() string {
	return filepath.Join(s.homeDir, homeSubdir[s.kind], "todos")
}

// ListProjects enumerates every project directory under this kind's
// transcript home.
func (s *Store) ListProjects() ([]Project, error) {
	entries, err := os.ReadDir(s.projectsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	projects := make([]Project, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		proj, err := s.loadProject(entry.Name())
		if err != nil {
			continue // skip unreadable/corrupt project dirs
		}
		projects = append(projects, *proj)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].LastActive.After(projects[j].LastActive) })
	return projects, nil
}

// GetProject loads a single project by its directory id.
func (s *Store) GetProject(id string) (*Project, error) {
	return s.loadProject(id)
}

func (s *Store) loadProject(id string) (*Project, error) {
	dir := filepath.Join(s.projectsDir(), id)

	if cached, ok := s.cache.get(dir); ok {
		return cached, nil
	}

	proj, err := s.scanProject(id, dir)
	if err != nil {
		return nil, err
	}
	s.cache.set(dir, proj)
	return proj, nil
}

func (s *Store) scanProject(id, dir string) (*Project, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	proj := &Project{ID: id, Path: dashesToSlashes(id)}
	var resolvedPath bool
	var minCreated, maxMod time.Time

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		sessionID := strings.TrimSuffix(entry.Name(), ".jsonl")
		proj.SessionIDs = append(proj.SessionIDs, sessionID)

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if maxMod.IsZero() || info.ModTime().After(maxMod) {
			maxMod = info.ModTime()
		}
		if minCreated.IsZero() || info.ModTime().Before(minCreated) {
			minCreated = info.ModTime()
		}

		if !resolvedPath {
			if cwd, ok := readCwd(filepath.Join(dir, entry.Name())); ok {
				proj.Path = cwd
				resolvedPath = true
			}
		}
	}

	proj.CreatedAt = minCreated
	proj.LastActive = maxMod
	return proj, nil
}

// dashesToSlashes is the fallback project-path resolution: the CLIs
// encode a project's absolute path by replacing "/" with "-" in the
// directory name.
func dashesToSlashes(id string) string {
	return strings.ReplaceAll(id, "-", "/")
}

// readCwd reads up to the first 10 non-empty lines of a transcript file
// looking for a `cwd` field.
func readCwd(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	lines, err := readNonEmptyLines(f, 10)
	if err != nil {
		return "", false
	}
	for _, line := range lines {
		var rec transcriptLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Cwd != "" {
			return rec.Cwd, true
		}
	}
	return "", false
}

// ListSessions returns every session under a project, newest first.
func (s *Store) ListSessions(projectID string) ([]Session, error) {
	dir := filepath.Join(s.projectsDir(), projectID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []Session
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		sessionID := strings.TrimSuffix(entry.Name(), ".jsonl")
		sess, err := s.GetSession(projectID, sessionID)
		if err != nil {
			continue
		}
		sessions = append(sessions, *sess)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
	return sessions, nil
}

// GetSession parses one transcript end to end.
func (s *Store) GetSession(projectID, sessionID string) (*Session, error) {
	path := filepath.Join(s.projectsDir(), projectID, sessionID+".jsonl")
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sess := &Session{ID: sessionID, ProjectID: projectID, ProjectPath: dashesToSlashes(projectID)}

	var firstTS, lastTS time.Time
	var haveFirst, haveLast bool

	lines, err := readAllLines(f)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec transcriptLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Cwd != "" {
			sess.ProjectPath = rec.Cwd
		}

		ts, tsOK := time.Parse(time.RFC3339, rec.Timestamp)
		if tsOK == nil {
			if !haveFirst {
				firstTS, haveFirst = ts, true
			}
			lastTS, haveLast = ts, true
		}

		if rec.Message == nil || rec.IsMeta {
			continue
		}
		sess.MessageCount++
		if rec.Message.Role != "user" {
			continue
		}
		text := extractText(rec.Message.Content)
		if sess.FirstUserMessage == "" && !isCaveat(text) {
			sess.FirstUserMessage = text
			if tsOK == nil {
				t := ts
				sess.FirstMessageAt = &t
			}
		}
	}

	if haveFirst {
		sess.CreatedAt = firstTS
	} else {
		sess.CreatedAt = info.ModTime()
	}
	if haveFirst && haveLast && lastTS.After(firstTS) {
		d := lastTS.Sub(firstTS).Seconds()
		sess.TotalDuration = &d
	}

	if todo, ok := s.readTodo(sessionID); ok {
		sess.Todo = todo
	}

	switch {
	case sess.MessageCount == 0:
		sess.Status = StatusPending
	case time.Since(info.ModTime()) <= staleWindow:
		sess.Status = StatusOngoing
	default:
		sess.Status = StatusCompleted
	}

	return sess, nil
}

func (s *Store) readTodo(sessionID string) (json.RawMessage, bool) {
	data, err := os.ReadFile(filepath.Join(s.todosDir(), sessionID+".json"))
	if err != nil {
		return nil, false
	}
	return json.RawMessage(data), true
}

// FindProjectForSession scans every project for one containing sessionID,
// used by endpoints that are only given a session id (no project id).
func (s *Store) FindProjectForSession(sessionID string) (string, bool) {
	projects, err := s.ListProjects()
	if err != nil {
		return "", false
	}
	for _, proj := range projects {
		for _, id := range proj.SessionIDs {
			if id == sessionID {
				return proj.ID, true
			}
		}
	}
	return "", false
}

// ReadTranscript parses a session's JSONL file line by line, skipping
// malformed lines, and returns each as a raw JSON value.
func (s *Store) ReadTranscript(projectID, sessionID string) ([]json.RawMessage, error) {
	path := filepath.Join(s.projectsDir(), projectID, sessionID+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := readAllLines(f)
	if err != nil {
		return nil, err
	}

	out := make([]json.RawMessage, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !json.Valid([]byte(line)) {
			continue
		}
		out = append(out, json.RawMessage(line))
	}
	return out, nil
}

// DeleteSession removes a transcript and its companion todo file, if any.
func (s *Store) DeleteSession(projectID, sessionID string) error {
	path := filepath.Join(s.projectsDir(), projectID, sessionID+".jsonl")
	if err := os.Remove(path); err != nil {
		return err
	}
	os.Remove(filepath.Join(s.todosDir(), sessionID+".json")) // best effort
	return nil
}
