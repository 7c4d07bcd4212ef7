package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sxhxliang/agentx-proxy/internal/executor"
	"github.com/sxhxliang/agentx-proxy/internal/logger"
)

// idleTTL is how long a session (of any status) may go unaccessed before
// the sweep removes it, per spec.md §3/§4.6.
const idleTTL = time.Hour

// sweepInterval is how often the sweep runs.
const sweepInterval = time.Minute

// agentKey indexes the optional (executor_kind, agent_native_id) map
// spec.md §9 calls out as a distinct identifier from the primary
// session_id; see DESIGN.md for how this implementation resolves that
// open question.
type agentKey struct {
	kind executor.Kind
	id   string
}

// Manager is the process-wide session_id -> CommandSession map plus the
// agent-native-id secondary index, and the idle-sweep background task.
type Manager struct {
	mu            sync.RWMutex
	sessions      map[string]*CommandSession
	byAgentNative map[agentKey]string
}

// NewManager starts a Manager whose sweep loop runs until ctx is done.
func NewManager(ctx context.Context) *Manager {
	m := &Manager{
		sessions:      make(map[string]*CommandSession),
		byAgentNative: make(map[agentKey]string),
	}
	go m.sweepLoop(ctx)
	return m
}

// StreamParseError reports that a subprocess's first stdout line wasn't
// parseable JSON or was missing the session_id field.
type StreamParseError struct {
	Line string
	Err  error
}

func (e *StreamParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: first stdout line is not valid session JSON: %v", e.Err)
	}
	return "session: first stdout line has no session_id field"
}

func (e *StreamParseError) Unwrap() error { return e.Err }

type firstLinePayload struct {
	SessionID string `json:"session_id"`
}

// realProcess adapts *exec.Cmd to the Process interface.
type realProcess struct {
	cmd *exec.Cmd
}

func (p *realProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *realProcess) Wait() error { return p.cmd.Wait() }

// Create spawns the agent CLI for kind with opts, blocks until the first
// stdout line yields a session_id, and returns the live CommandSession.
// A spawn error or a first-line that isn't valid session JSON aborts
// session creation entirely — no record is created (spec.md §4.6, §7).
func (m *Manager) Create(ctx context.Context, kind executor.Kind, opts executor.Options) (*CommandSession, error) {
	cmd, err := executor.Build(ctx, kind, opts)
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("session: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("session: start: %w", err)
	}

	reader := bufio.NewScanner(stdout)
	reader.Buffer(make([]byte, 64*1024), 1024*1024)

	var firstLine string
	for reader.Scan() {
		line := strings.TrimRight(reader.Text(), "\r")
		if line == "" {
			continue
		}
		firstLine = line
		break
	}
	if firstLine == "" {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, &StreamParseError{}
	}

	var payload firstLinePayload
	if err := json.Unmarshal([]byte(firstLine), &payload); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, &StreamParseError{Line: firstLine, Err: err}
	}
	if payload.SessionID == "" {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, &StreamParseError{Line: firstLine}
	}

	sess := newCommandSession(payload.SessionID, kind, opts.ProjectPath, &realProcess{cmd: cmd})
	sess.appendLine(firstLine)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	go m.pump(sess, reader, cmd)

	return sess, nil
}

// pump is the single-writer stdout reader for sess: it owns append
// ordering, so line numbers stay contiguous (spec.md §5).
func (m *Manager) pump(sess *CommandSession, reader *bufio.Scanner, cmd *exec.Cmd) {
	for reader.Scan() {
		line := strings.TrimRight(reader.Text(), "\r")
		sess.appendLine(line)
	}

	waitErr := cmd.Wait()
	sess.procMu.Lock()
	sess.proc = nil
	sess.procMu.Unlock()

	switch {
	case sess.Status() != StatusRunning:
		// Already cancelled concurrently; leave the FSM as-is.
	case waitErr == nil:
		sess.complete(0)
	default:
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			sess.complete(exitErr.ExitCode())
		} else {
			sess.fail(waitErr)
		}
	}
}

// Get looks a session up by its primary session_id and touches its
// last-accessed time.
func (m *Manager) Get(id string) (*CommandSession, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		sess.Touch()
	}
	return sess, ok
}

// GetByAgentNative looks a session up by its (kind, agent-native id)
// secondary index, when the CLI's own identifier differs from the
// session_id key (spec.md §9 open question).
func (m *Manager) GetByAgentNative(kind executor.Kind, nativeID string) (*CommandSession, bool) {
	m.mu.RLock()
	id, ok := m.byAgentNative[agentKey{kind: kind, id: nativeID}]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

// SetAgentNativeID records sess's agent-native id in the secondary
// index, once the CLI reports one distinct from session_id.
func (m *Manager) SetAgentNativeID(sess *CommandSession, nativeID string) {
	if nativeID == "" {
		return
	}
	sess.AgentNativeID = nativeID
	m.mu.Lock()
	m.byAgentNative[agentKey{kind: sess.ExecutorKind, id: nativeID}] = sess.ID
	m.mu.Unlock()
}

// All returns every in-memory session, for status reporting. The slice
// is a snapshot; callers must not mutate it.
func (m *Manager) All() []*CommandSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*CommandSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// Delete removes a session from memory unconditionally. Callers enforce
// the "Running sessions must be cancelled first" rule from spec.md §4.7.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if sess.AgentNativeID != "" {
			delete(m.byAgentNative, agentKey{kind: sess.ExecutorKind, id: sess.AgentNativeID})
		}
	}
	m.mu.Unlock()
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-idleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if sess.LastAccessed().Before(cutoff) {
			delete(m.sessions, id)
			if sess.AgentNativeID != "" {
				delete(m.byAgentNative, agentKey{kind: sess.ExecutorKind, id: sess.AgentNativeID})
			}
			logger.Debug("session swept", "session_id", id, "status", sess.Status())
		}
	}
}
