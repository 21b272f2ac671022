package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/trigger"
)

type testServer struct {
	*httptest.Server
	service *trigger.Service
	release chan struct{}
}

func newTestServer(t *testing.T, history RunHistory) *testServer {
	t.Helper()

	release := make(chan struct{})
	loader := trigger.LoaderFunc(func() (*pipeline.Pipeline, error) {
		return pipeline.New(pipeline.Definition{
			Name: "aceest",
			Stages: []pipeline.Stage{{
				Name: "Build",
				Actions: []pipeline.Action{pipeline.Func("wait", func(ctx context.Context, _ *pipeline.Runtime) error {
					select {
					case <-ctx.Done():
						return context.Cause(ctx)
					case <-release:
						return nil
					}
				})},
			}},
		})
	})

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	svc := trigger.NewService(trigger.Config{
		Loader: loader,
		Runner: pipeline.NewRunner(pipeline.Config{Executor: &executor.Recorder{}, Metrics: metrics}),
	})

	mux := http.NewServeMux()
	NewHandler(Config{Service: svc, History: history, Gatherer: reg, Registerer: reg}).RegisterRoutes(mux)

	ts := &testServer{Server: httptest.NewServer(mux), service: svc, release: release}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Shutdown(ctx)
		ts.Close()
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func decodeRun(t *testing.T, body []byte) RunResponse {
	t.Helper()
	var resp struct {
		Data RunResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return resp.Data
}

func decodeError(t *testing.T, body []byte) ErrorCode {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return resp.Error.Code
}

func (ts *testServer) wait(t *testing.T, id uuid.UUID) {
	t.Helper()
	exec, ok := ts.service.Get(id)
	if !ok {
		t.Fatalf("run %s not found", id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := exec.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestCreateTrigger_AndGetRun(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.do(t, http.MethodPost, "/api/v1/triggers", `{"build_id":"42","source":"scm","revision":"abc"}`)
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", status, body)
	}
	run := decodeRun(t, body)
	if run.ImageTag != "build-42" || run.Source != "scm" || run.Status != "PENDING" {
		t.Errorf("unexpected run: %+v", run)
	}

	close(ts.release)
	ts.wait(t, run.ID)

	status, body = ts.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	got := decodeRun(t, body)
	if got.Status != "SUCCEEDED" || got.Outcome == nil || got.Outcome.ExitCode != 0 {
		t.Errorf("unexpected run: %+v", got)
	}
	if len(got.Stages) != 1 || got.Stages[0].Status != "SUCCEEDED" {
		t.Errorf("unexpected stages: %+v", got.Stages)
	}

	status, body = ts.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/log", "")
	if status != http.StatusOK || !strings.Contains(string(body), "==> Build") {
		t.Errorf("unexpected log %d: %q", status, body)
	}
}

func TestCreateTrigger_BadRequests(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"build_id":`},
		{"missing build id", `{"source":"manual"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, http.MethodPost, "/api/v1/triggers", tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", status)
			}
			if code := decodeError(t, body); code != ErrCodeBadRequest {
				t.Errorf("expected BAD_REQUEST, got %s", code)
			}
		})
	}
}

func TestCancelRun(t *testing.T) {
	ts := newTestServer(t, nil)

	_, body := ts.do(t, http.MethodPost, "/api/v1/triggers", `{"build_id":"7"}`)
	run := decodeRun(t, body)

	status, _ := ts.do(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/cancel", "")
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
	ts.wait(t, run.ID)

	_, body = ts.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), "")
	got := decodeRun(t, body)
	if got.Status != "ABORTED" || got.Outcome.Reason != "ExternalAbort" || got.Outcome.ExitCode != 2 {
		t.Errorf("unexpected run: %+v outcome %+v", got, got.Outcome)
	}
	if got.Hooks == nil {
		t.Error("finished run should report hooks")
	}

	status, body = ts.do(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/cancel", "")
	if status != http.StatusUnprocessableEntity || decodeError(t, body) != ErrCodeInvalidState {
		t.Errorf("expected 422 INVALID_STATE, got %d %s", status, body)
	}
}

func TestRuns_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	if status, _ := ts.do(t, http.MethodGet, "/api/v1/runs/not-a-uuid", ""); status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
	if status, _ := ts.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), ""); status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
	if status, _ := ts.do(t, http.MethodPost, "/api/v1/runs/"+uuid.NewString()+"/cancel", ""); status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
}

func TestListRuns_FiltersInMemory(t *testing.T) {
	ts := newTestServer(t, nil)

	_, body := ts.do(t, http.MethodPost, "/api/v1/triggers", `{"build_id":"1"}`)
	first := decodeRun(t, body)
	ts.do(t, http.MethodPost, "/api/v1/runs/"+first.ID.String()+"/cancel", "")
	ts.wait(t, first.ID)

	ts.do(t, http.MethodPost, "/api/v1/triggers", `{"build_id":"2"}`)

	_, body = ts.do(t, http.MethodGet, "/api/v1/runs?status=aborted", "")
	var resp struct {
		Data  []RunResponse `json:"data"`
		Total int           `json:"total"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Data[0].ID != first.ID {
		t.Errorf("unexpected list: %+v", resp)
	}
}

type fakeHistory struct {
	run    domain.Run
	stages []domain.StageRecord
}

func (f *fakeHistory) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	if id != f.run.ID {
		return nil, repo.ErrNotFound
	}
	run := f.run
	return &run, nil
}

func (f *fakeHistory) List(context.Context, repo.RunFilter) ([]domain.Run, error) {
	return []domain.Run{f.run}, nil
}

func (f *fakeHistory) ListStages(context.Context, uuid.UUID) ([]domain.StageRecord, error) {
	return f.stages, nil
}

func TestGetRun_FallsBackToHistory(t *testing.T) {
	run := domain.NewRun("aceest", domain.Trigger{BuildID: "3"})
	run.Finish(domain.Failure("Gate", "GateTimedOut", ""))
	history := &fakeHistory{run: *run, stages: []domain.StageRecord{{RunID: run.ID, Index: 0, Name: "Gate", Status: domain.StageStatusFailed}}}
	ts := newTestServer(t, history)

	status, body := ts.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	got := decodeRun(t, body)
	if got.Reason != "GateTimedOut" || len(got.Stages) != 1 {
		t.Errorf("unexpected run: %+v", got)
	}

	if status, _ := ts.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), ""); status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.do(t, http.MethodGet, "/healthz", "")
	if status != http.StatusOK || !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("unexpected health %d: %s", status, body)
	}

	_, body = ts.do(t, http.MethodPost, "/api/v1/triggers", `{"build_id":"5"}`)
	close(ts.release)
	ts.wait(t, decodeRun(t, body).ID)

	status, body = ts.do(t, http.MethodGet, "/metrics", "")
	if status != http.StatusOK || !strings.Contains(string(body), "conveyor_runs_total") {
		t.Errorf("metrics should expose conveyor_runs_total, got %d", status)
	}
	if !strings.Contains(string(body), `conveyor_http_requests_total{route="POST /api/v1/triggers",status="202"} 1`) {
		t.Errorf("metrics should count trigger requests by route:\n%s", body)
	}
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/runs", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}

	resp, err = http.Get(ts.URL + "/api/v1/runs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if _, err := uuid.Parse(resp.Header.Get("X-Request-ID")); err != nil {
		t.Errorf("expected generated uuid request id, got %q", resp.Header.Get("X-Request-ID"))
	}
}
