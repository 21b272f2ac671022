package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/triggers", func(w http.ResponseWriter, r *http.Request) {
		var req TriggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode trigger: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{"data": RunResponse{
			ID:       "run-1",
			Pipeline: "aceest-fitness",
			BuildID:  req.BuildID,
			ImageTag: "build-" + req.BuildID,
			Source:   req.Source,
			Status:   "PENDING",
		}})
	})
	mux.HandleFunc("GET /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "FAILED" {
			t.Errorf("expected status filter FAILED, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data":  []RunResponse{{ID: "run-1", Pipeline: "aceest-fitness", BuildID: "7", Status: "FAILED", Stage: "Test"}},
			"total": 1,
		})
	})
	mux.HandleFunc("GET /api/v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "run-1" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "NOT_FOUND", "message": "run not found"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": RunResponse{
			ID:      "run-1",
			Status:  "FAILED",
			Outcome: &OutcomeInfo{Kind: "Failure", Reason: "CommandFailed(1)", Stage: "Test", ExitCode: 1},
			Stages:  []StageResponse{{Index: 0, Name: "Build", Status: "SUCCEEDED"}, {Index: 1, Name: "Test", Status: "FAILED"}},
		}})
	})
	mux.HandleFunc("GET /api/v1/runs/{id}/log", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("==> Build\n$ make build\n"))
	})
	mux.HandleFunc("POST /api/v1/runs/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "INVALID_STATE", "message": "run already finished"}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Trigger(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(srv.URL + "/")

	run, err := client.Trigger(context.Background(), TriggerRequest{BuildID: "42", Source: "scm"})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if run.ImageTag != "build-42" || run.Source != "scm" {
		t.Errorf("unexpected run: %+v", run)
	}
}

func TestClient_GetRun(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(srv.URL)

	run, err := client.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.Outcome == nil || run.Outcome.ExitCode != 1 {
		t.Fatalf("expected outcome with exit code 1, got %+v", run.Outcome)
	}
	if len(run.Stages) != 2 {
		t.Errorf("expected 2 stages, got %d", len(run.Stages))
	}
}

func TestClient_APIError(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(srv.URL)

	_, err := client.GetRun(context.Background(), "missing")
	if err == nil || err.Error() != "NOT_FOUND: run not found" {
		t.Fatalf("expected NOT_FOUND error, got %v", err)
	}

	_, err = client.CancelRun(context.Background(), "run-1")
	if err == nil || !strings.HasPrefix(err.Error(), "INVALID_STATE") {
		t.Fatalf("expected INVALID_STATE error, got %v", err)
	}
}

func TestRunsListCmd(t *testing.T) {
	srv := newTestServer(t)

	var stdout, stderr bytes.Buffer
	cmd := NewRunsCmd(
		func() *Client { return NewClient(srv.URL) },
		func() *Output { return NewOutputTo(false, &stdout, &stderr) },
	)
	cmd.SetArgs([]string{"list", "--status", "FAILED"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "PIPELINE") || !strings.Contains(out, "aceest-fitness") {
		t.Errorf("unexpected table:\n%s", out)
	}
}

func TestRunsLogCmd(t *testing.T) {
	srv := newTestServer(t)

	var stdout bytes.Buffer
	cmd := NewRunsCmd(
		func() *Client { return NewClient(srv.URL) },
		func() *Output { return NewOutputTo(false, &stdout, &bytes.Buffer{}) },
	)
	cmd.SetArgs([]string{"log", "run-1"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stdout.String() != "==> Build\n$ make build\n" {
		t.Errorf("unexpected log: %q", stdout.String())
	}
}

func TestTriggerCmd_JSON(t *testing.T) {
	srv := newTestServer(t)

	var stdout, stderr bytes.Buffer
	cmd := NewTriggerCmd(
		func() *Client { return NewClient(srv.URL) },
		func() *Output { return NewOutputTo(true, &stdout, &stderr) },
	)
	cmd.SetArgs([]string{"7", "--revision", "abc123"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var run RunResponse
	if err := json.Unmarshal(stdout.Bytes(), &run); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout.String())
	}
	if run.BuildID != "7" || run.Source != "manual" {
		t.Errorf("unexpected run: %+v", run)
	}
	if !strings.Contains(stderr.String(), "Run started: run-1") {
		t.Errorf("expected success message on stderr, got %q", stderr.String())
	}
}
