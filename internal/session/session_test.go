package session

import (
	"errors"
	"testing"

	"github.com/sxhxliang/agentx-proxy/internal/executor"
)

type fakeProcess struct {
	killed   bool
	killErr  error
	waitErr  error
}

func (p *fakeProcess) Kill() error {
	p.killed = true
	return p.killErr
}

func (p *fakeProcess) Wait() error { return p.waitErr }

func newTestSession(proc Process) *CommandSession {
	return newCommandSession("sess-1", executor.Claude, "/tmp/project", proc)
}

func TestCompleteIsOneShot(t *testing.T) {
	s := newTestSession(&fakeProcess{})
	s.complete(0)
	s.complete(7) // no-op, already terminal

	if got := s.Status(); got != StatusCompleted {
		t.Fatalf("status = %v, want Completed", got)
	}
	exitCode, _, _ := s.Result()
	if exitCode == nil || *exitCode != 0 {
		t.Fatalf("exitCode = %v, want 0", exitCode)
	}
}

func TestFailIsOneShot(t *testing.T) {
	s := newTestSession(&fakeProcess{})
	s.fail(errors.New("boom"))
	s.fail(errors.New("second"))

	if got := s.Status(); got != StatusFailed {
		t.Fatalf("status = %v, want Failed", got)
	}
	_, failErr, _ := s.Result()
	if failErr == nil || failErr.Error() != "boom" {
		t.Fatalf("failErr = %v, want boom", failErr)
	}
}

func TestCancelKillsProcessAndTransitions(t *testing.T) {
	proc := &fakeProcess{}
	s := newTestSession(proc)

	if err := s.Cancel("user requested"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !proc.killed {
		t.Fatal("expected process to be killed")
	}
	if got := s.Status(); got != StatusCancelled {
		t.Fatalf("status = %v, want Cancelled", got)
	}
	_, _, reason := s.Result()
	if reason != "user requested" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestCancelAfterTerminalReturnsErrNotRunning(t *testing.T) {
	s := newTestSession(&fakeProcess{})
	s.complete(0)

	if err := s.Cancel("too late"); err != ErrNotRunning {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}

func TestAppendLineIsContiguous(t *testing.T) {
	s := newTestSession(&fakeProcess{})
	s.appendLine("one")
	s.appendLine("two")
	third := s.appendLine("three")

	if third.LineNumber != 3 {
		t.Fatalf("LineNumber = %d, want 3", third.LineNumber)
	}
	if s.TotalLines() != 3 {
		t.Fatalf("TotalLines = %d, want 3", s.TotalLines())
	}
	lines := s.Lines(2)
	if len(lines) != 2 || lines[0].Content != "two" || lines[1].Content != "three" {
		t.Fatalf("Lines(2) = %+v", lines)
	}
}

func TestSubscribePublishesNewLinesOnly(t *testing.T) {
	s := newTestSession(&fakeProcess{})
	s.appendLine("before")

	sub, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.appendLine("after")

	select {
	case line := <-sub:
		if line.Content != "after" {
			t.Fatalf("got %q, want after", line.Content)
		}
	default:
		t.Fatal("expected a published line on the subscriber channel")
	}
}

func TestSubscribeDropsOnFullChannelWithoutBlocking(t *testing.T) {
	s := newTestSession(&fakeProcess{})
	sub, unsubscribe := s.Subscribe()
	defer unsubscribe()

	for i := 0; i < broadcastCapacity+10; i++ {
		s.appendLine("line")
	}

	// publish must never block regardless of how far the subscriber falls
	// behind; the buffer remains the ground truth.
	if s.TotalLines() != broadcastCapacity+10 {
		t.Fatalf("TotalLines = %d", s.TotalLines())
	}
	drained := 0
	for {
		select {
		case <-sub:
			drained++
			continue
		default:
		}
		break
	}
	if drained == 0 || drained > broadcastCapacity {
		t.Fatalf("drained = %d, want 0 < n <= %d", drained, broadcastCapacity)
	}
}
