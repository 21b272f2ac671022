package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// CreateTrigger запускает pipeline.
// POST /api/v1/triggers
func (h *Handler) CreateTrigger(w http.ResponseWriter, r *http.Request) {
	var req CreateTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	run, err := h.service.Submit(r.Context(), req.Trigger(time.Now()))
	if HandleError(w, h.log(r), err, "") {
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: RunFromDomain(run)})
}

// ListRuns возвращает список runs.
// GET /api/v1/runs?pipeline=...&status=...&limit=...&offset=...
//
// С историей в БД список берётся из неё, иначе из памяти процесса.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.RunFilter{
		Pipeline: q.Get("pipeline"),
		Status:   domain.RunStatus(strings.ToUpper(q.Get("status"))),
		Limit:    parseInt(q.Get("limit"), 50),
		Offset:   parseInt(q.Get("offset"), 0),
	}

	var runs []domain.Run
	if h.history != nil {
		var err error
		runs, err = h.history.List(r.Context(), filter)
		if HandleError(w, h.log(r), err, "") {
			return
		}
	} else {
		runs = filterRuns(h.service.List(), filter)
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if exec, ok := h.service.Get(id); ok {
		Success(w, executionResponse(exec))
		return
	}

	if h.history == nil {
		NotFound(w, "run not found")
		return
	}

	run, err := h.history.GetByID(r.Context(), id)
	if HandleError(w, h.log(r), err, "run not found") {
		return
	}
	stages, err := h.history.ListStages(r.Context(), id)
	if HandleError(w, h.log(r), err, "") {
		return
	}

	resp := RunFromDomain(*run)
	resp.Stages = StagesFromDomain(stages)
	Success(w, resp)
}

// GetRunLog возвращает транскрипт run как text/plain.
// GET /api/v1/runs/{id}/log
func (h *Handler) GetRunLog(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	exec, ok := h.service.Get(id)
	if !ok {
		NotFound(w, "run not found")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, line := range exec.Transcript().Lines() {
		w.Write([]byte(line + "\n"))
	}
}

// CancelRun отменяет run.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if HandleError(w, h.log(r), h.service.Cancel(id), "run not found") {
		return
	}

	exec, ok := h.service.Get(id)
	if !ok {
		HandleError(w, h.log(r), trigger.ErrRunNotFound, "run not found")
		return
	}
	JSON(w, http.StatusAccepted, DataResponse{Data: RunFromDomain(exec.Snapshot())})
}

// executionResponse собирает полный ответ по выполнению в памяти.
func executionResponse(exec *pipeline.Execution) RunResponse {
	resp := RunFromDomain(exec.Snapshot())
	resp.Stages = StagesFromDomain(exec.Stages())

	select {
	case <-exec.Done():
		resp.Outcome = OutcomeFromDomain(exec.Outcome())
		resp.Hooks = HooksFromReport(exec.Hooks())
	default:
	}
	return resp
}

// filterRuns применяет фильтр к runs в памяти.
func filterRuns(runs []domain.Run, filter repo.RunFilter) []domain.Run {
	var out []domain.Run
	for _, run := range runs {
		if filter.Pipeline != "" && run.Pipeline != filter.Pipeline {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, run)
	}

	if filter.Offset >= len(out) {
		return nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// parseInt парсит неотрицательное число с дефолтным значением.
func parseInt(s string, defaultVal int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
