package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RunResponse — run из API.
type RunResponse struct {
	ID         string          `json:"id"`
	Pipeline   string          `json:"pipeline"`
	BuildID    string          `json:"build_id"`
	ImageTag   string          `json:"image_tag"`
	Source     string          `json:"source"`
	Revision   string          `json:"revision,omitempty"`
	Status     string          `json:"status"`
	Stage      string          `json:"stage,omitempty"`
	StageIndex int             `json:"stage_index"`
	Reason     string          `json:"reason,omitempty"`
	StartedAt  string          `json:"started_at,omitempty"`
	FinishedAt string          `json:"finished_at,omitempty"`
	CreatedAt  string          `json:"created_at"`
	Outcome    *OutcomeInfo    `json:"outcome,omitempty"`
	Stages     []StageResponse `json:"stages,omitempty"`
}

// OutcomeInfo — финальный результат run.
type OutcomeInfo struct {
	Kind     string `json:"kind"`
	Reason   string `json:"reason,omitempty"`
	Stage    string `json:"stage,omitempty"`
	Detail   string `json:"detail,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// StageResponse — stage run из API.
type StageResponse struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// --- Request types ---

// TriggerRequest — запуск pipeline.
type TriggerRequest struct {
	BuildID  string `json:"build_id"`
	Source   string `json:"source,omitempty"`
	Revision string `json:"revision,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	Pipeline string
	Status   string
	Limit    int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Conveyor API.
type Client struct {
	http *resty.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// Trigger запускает pipeline.
func (c *Client) Trigger(ctx context.Context, req TriggerRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.data(ctx, resty.MethodPost, "/api/v1/triggers", req, &run)
	return &run, err
}

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(ctx context.Context, opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.Pipeline != "" {
		params.Set("pipeline", opts.Pipeline)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunResponse
	err := c.list(ctx, "/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(ctx context.Context, id string) (*RunResponse, error) {
	var run RunResponse
	err := c.data(ctx, resty.MethodGet, "/api/v1/runs/"+url.PathEscape(id), nil, &run)
	return &run, err
}

// CancelRun отменяет run.
func (c *Client) CancelRun(ctx context.Context, id string) (*RunResponse, error) {
	var run RunResponse
	err := c.data(ctx, resty.MethodPost, "/api/v1/runs/"+url.PathEscape(id)+"/cancel", nil, &run)
	return &run, err
}

// RunLog возвращает транскрипт run.
func (c *Client) RunLog(ctx context.Context, id string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/plain").
		Get("/api/v1/runs/" + url.PathEscape(id) + "/log")
	if err != nil {
		return "", err
	}
	if err := checkError(resp); err != nil {
		return "", err
	}
	return resp.String(), nil
}

// --- HTTP helpers ---

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(path)
	if err != nil {
		return err
	}
	if err := checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.Unmarshal(resp.Body(), &lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) data(ctx context.Context, method, path string, body any, result any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if err := checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.Unmarshal(resp.Body(), &dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func checkError(resp *resty.Response) error {
	if resp.StatusCode() < 400 {
		return nil
	}

	var er errorResponse
	if err := json.Unmarshal(resp.Body(), &er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode())
	}
	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
