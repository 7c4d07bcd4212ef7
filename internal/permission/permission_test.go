package permission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRequestApprovalPollsUntilDecided(t *testing.T) {
	var polls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/requests", func(w http.ResponseWriter, r *http.Request) {
		var req Request
		json.NewDecoder(r.Body).Decode(&req)
		if req.SessionID != "sess-1" {
			t.Errorf("SessionID = %q", req.SessionID)
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/decisions/sess-1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(Decision{Approved: true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := &Client{baseURL: srv.URL, httpClient: srv.Client()}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	decision, err := c.RequestApproval(ctx, Request{SessionID: "sess-1", ToolName: "Bash"})
	if err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}
	if !decision.Approved {
		t.Fatal("expected Approved = true")
	}
}

func TestRequestApprovalContextCancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/requests", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/decisions/sess-2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := &Client{baseURL: srv.URL, httpClient: srv.Client()}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := c.RequestApproval(ctx, Request{SessionID: "sess-2"}); err == nil {
		t.Fatal("expected context deadline error")
	}
}
