package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	logger "github.com/PolarWolf314/kowhai/internal/logging"
)

func newTestGitHub(t *testing.T, handler http.Handler) *GitHub {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gh := NewGitHub("acme", "platform", "main", "kowhai-recover.yml", "token", logger.Logger{})
	gh.SetAPIURL(srv.URL)
	return gh
}

func TestPollJobResolvesRunOnce(t *testing.T) {
	var listCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/platform/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&listCalls, 1)
		fmt.Fprint(w, `{"workflow_runs":[{"id":7}]}`)
	})
	mux.HandleFunc("/repos/acme/platform/actions/runs/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"in_progress","conclusion":""}`)
	})

	gh := newTestGitHub(t, mux)

	// The coordinator re-polls with the same by-value handle; the adapter
	// must remember the resolved run instead of re-listing every time.
	handle := JobHandle{Ref: "recovery/abc"}
	for i := 0; i < 3; i++ {
		status, err := gh.PollJob(context.Background(), handle)
		if err != nil {
			t.Fatalf("PollJob failed: %v", err)
		}
		if status.State != JobRunning {
			t.Fatalf("got state %v, want running", status.State)
		}
	}

	if n := atomic.LoadInt32(&listCalls); n != 1 {
		t.Errorf("run listing queried %d times, want 1", n)
	}
}

func TestPollJobMapsConclusions(t *testing.T) {
	conclusion := "success"
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/platform/actions/runs/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":"completed","conclusion":%q}`, conclusion)
	})

	gh := newTestGitHub(t, mux)
	handle := JobHandle{Ref: "recovery/abc", RunID: 7}

	status, err := gh.PollJob(context.Background(), handle)
	if err != nil {
		t.Fatalf("PollJob failed: %v", err)
	}
	if status.State != JobSucceeded {
		t.Errorf("success conclusion: got state %v, want succeeded", status.State)
	}

	conclusion = "failure"
	status, err = gh.PollJob(context.Background(), handle)
	if err != nil {
		t.Fatalf("PollJob failed: %v", err)
	}
	if status.State != JobFailed {
		t.Errorf("failure conclusion: got state %v, want failed", status.State)
	}
	if status.Diagnostic == "" {
		t.Error("failed run should carry a diagnostic")
	}
}
