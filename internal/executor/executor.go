// Package executor builds and locates the subprocess commands for the
// three supported coding-agent CLIs. It mirrors the teacher lineage's
// per-kind agent adapters (internal/agent/{claude,codex,gemini}.go) but
// replaces their "one long-lived in-process agent" semantics with the
// spec's "build one exec.Cmd per session, caller owns the lifecycle".
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
)

// Kind identifies which coding-agent CLI to spawn.
type Kind string

const (
	Claude Kind = "claude"
	Codex  Kind = "codex"
	Gemini Kind = "gemini"
)

// ParseKind validates a string against the closed set of supported
// executor kinds. An invalid value is a *ValidationError the HTTP layer
// turns into a 400 before anything is spawned.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Claude, Codex, Gemini:
		return Kind(s), nil
	case "":
		return Claude, nil
	default:
		return "", &ValidationError{Field: "executor", Value: s}
	}
}

// ValidationError reports a bad enum value supplied by an HTTP caller.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q for %s", e.Value, e.Field)
}

// NotFoundError reports that a kind's CLI binary isn't on PATH.
type NotFoundError struct {
	Kind Kind
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: CLI binary not found on PATH", e.Kind)
}

// Options carries the per-session parameters that shape the spawned
// command line. Fields not relevant to a given Kind are ignored.
type Options struct {
	Prompt      string
	ProjectPath string

	ResumeID string // Claude: --resume <id>; Codex: resume --last
	Model    string // Claude, Codex: --model <m>

	// Claude only.
	PermissionMode             string // one of acceptEdits|bypassPermissions|default|plan
	DangerouslySkipPermissions bool
	AllowedTools               []string

	// Gemini only.
	ApprovalMode string // one of default|auto_edit|yolo
}

// Validate checks enum-valued fields before any subprocess is spawned.
func (o Options) Validate(kind Kind) error {
	switch kind {
	case Claude:
		switch o.PermissionMode {
		case "", "acceptEdits", "bypassPermissions", "default", "plan":
		default:
			return &ValidationError{Field: "permission_mode", Value: o.PermissionMode}
		}
	case Gemini:
		switch o.ApprovalMode {
		case "", "default", "auto_edit", "yolo":
		default:
			return &ValidationError{Field: "approval_mode", Value: o.ApprovalMode}
		}
	}
	return nil
}

// binaryNames lists, in lookup order, the executable names tried for
// each kind.
var binaryNames = map[Kind][]string{
	Claude: {"claude", "claude-code"},
	Codex:  {"codex"},
	Gemini: {"gemini"},
}

var (
	lookupMu    sync.Mutex
	lookupCache = map[string]string{} // kind -> resolved path of the first name found
)

// lookupBinary resolves the first candidate name for kind found on PATH,
// trying Windows .cmd/.exe suffixes there. Results are cached for the
// process lifetime since busy servers spawn many sessions of the same
// kind back to back.
func lookupBinary(kind Kind) (string, error) {
	names := binaryNames[kind]
	candidates := names
	if runtime.GOOS == "windows" {
		candidates = make([]string, 0, len(names)*3)
		for _, n := range names {
			candidates = append(candidates, n, n+".cmd", n+".exe")
		}
	}

	lookupMu.Lock()
	defer lookupMu.Unlock()

	cacheKey := string(kind)
	if path, ok := lookupCache[cacheKey]; ok {
		return path, nil
	}

	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			lookupCache[cacheKey] = path
			return path, nil
		}
	}
	return "", &NotFoundError{Kind: kind}
}

// ResetLookupCacheForTest clears the binary-path cache. Exported for
// other packages' tests that swap PATH with a stub CLI.
func ResetLookupCacheForTest() {
	lookupMu.Lock()
	lookupCache = map[string]string{}
	lookupMu.Unlock()
}

// Build resolves the CLI binary for kind and constructs an unstarted
// *exec.Cmd with its working directory set to opts.ProjectPath and
// stderr connected to the parent's stderr. The caller attaches a stdout
// pipe and starts the command.
func Build(ctx context.Context, kind Kind, opts Options) (*exec.Cmd, error) {
	if err := opts.Validate(kind); err != nil {
		return nil, err
	}
	bin, err := lookupBinary(kind)
	if err != nil {
		return nil, err
	}

	var args []string
	switch kind {
	case Claude:
		args = claudeArgs(opts)
	case Codex:
		args = codexArgs(opts)
	case Gemini:
		args = geminiArgs(opts)
	default:
		return nil, &ValidationError{Field: "executor", Value: string(kind)}
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = opts.ProjectPath
	cmd.Stderr = os.Stderr
	return cmd, nil
}
