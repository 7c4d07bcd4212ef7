package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// pollInterval is the fallback poll cadence for catching any line that a
// full broadcast channel dropped (spec.md §4.6 step 3).
const pollInterval = 100 * time.Millisecond

// WritePreamble writes the SSE response headers: 200, text/event-stream,
// no-cache, keep-alive, permissive CORS.
func WritePreamble(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// WriteDataEvent writes one `data: <payload>\n\n` SSE event and flushes.
// Exported so callers without a live CommandSession (e.g. a GET replaying
// a purely on-disk transcript) can reuse the same wire framing.
func WriteDataEvent(w http.ResponseWriter, data string) bool {
	return writeEvent(w, data)
}

func writeEvent(w http.ResponseWriter, data string) bool {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return false
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return true
}

// Stream writes the full SSE contract for sess starting at fromLine:
// historical (on-disk) messages first, then buffered live lines, then a
// 100ms poll loop until the session reaches a terminal status, at which
// point a completion event is emitted and the function returns. A write
// error (the client disconnected) ends the stream silently, per spec.md
// §7 — the returned error is for caller logging only, never surfaced to
// the consumer.
func Stream(ctx context.Context, w http.ResponseWriter, sess *CommandSession, fromLine int, historical []string) error {
	WritePreamble(w)

	for _, h := range historical {
		if !writeEvent(w, h) {
			return nil
		}
	}

	// Subscribe before draining the buffer so no line published between
	// the read and the subscribe is lost.
	sub, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	lastSent := fromLine - 1
	for _, line := range sess.Lines(fromLine) {
		if !writeEvent(w, line.Content) {
			return nil
		}
		lastSent = line.LineNumber
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-sub:
			if !ok {
				return nil
			}
			if line.LineNumber <= lastSent {
				continue
			}
			if !writeEvent(w, line.Content) {
				return nil
			}
			lastSent = line.LineNumber
		case <-ticker.C:
			for _, line := range sess.Lines(lastSent + 1) {
				if !writeEvent(w, line.Content) {
					return nil
				}
				lastSent = line.LineNumber
			}
			if sess.Status().Terminal() {
				return writeCompletion(w, sess)
			}
		}
	}
}

func writeCompletion(w http.ResponseWriter, sess *CommandSession) error {
	exitCode, failErr, cancelReason := sess.Result()
	total := sess.TotalLines()

	var payload map[string]any
	switch sess.Status() {
	case StatusCompleted:
		payload = map[string]any{
			"type":        "completion",
			"success":     true,
			"exit_code":   exitCode,
			"total_lines": total,
		}
	case StatusFailed:
		msg := ""
		if failErr != nil {
			msg = failErr.Error()
		}
		payload = map[string]any{
			"type":        "completion",
			"success":     false,
			"error":       msg,
			"total_lines": total,
		}
	case StatusCancelled:
		payload = map[string]any{
			"type":        "completion",
			"success":     false,
			"cancelled":   true,
			"reason":      cancelReason,
			"total_lines": total,
		}
	default:
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeEvent(w, string(data))
	return nil
}
