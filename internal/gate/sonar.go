package gate

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const (
	defaultSonarTimeout = 30 * time.Second

	// projectPrefix — gate id вида "project:<key>" опрашивает статус проекта
	// вместо конкретной задачи анализа.
	projectPrefix = "project:"
)

// SonarConfig — конфигурация SonarSource.
type SonarConfig struct {
	// BaseURL — адрес сервера анализа ("https://sonar.example.com").
	BaseURL string

	// Token — токен доступа (передаётся как basic auth user).
	Token string

	// Timeout — таймаут одного HTTP-запроса (default: 30s).
	Timeout time.Duration
}

// SonarSource — Source поверх SonarQube Web API.
//
// Gate id — это ceTaskId из report-task.txt сканера: сначала опрашивается
// /api/ce/task до завершения фоновой задачи, затем
// /api/qualitygates/project_status по analysisId. Gate id вида
// "project:<key>" опрашивает последний статус проекта.
type SonarSource struct {
	client *resty.Client
}

// NewSonarSource создаёт новый SonarSource.
func NewSonarSource(cfg SonarConfig) *SonarSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSonarTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetBasicAuth(cfg.Token, "")
	}

	return &SonarSource{client: client}
}

// Poll реализует Source.
func (s *SonarSource) Poll(ctx context.Context, gateID string) (Decision, error) {
	if key, ok := strings.CutPrefix(gateID, projectPrefix); ok {
		return s.projectStatus(ctx, "projectKey", key)
	}

	body, err := s.get(ctx, "/api/ce/task", "id", gateID)
	if err != nil {
		return Decision{}, err
	}

	task := gjson.GetBytes(body, "task")
	switch status := task.Get("status").String(); status {
	case "PENDING", "IN_PROGRESS":
		return Decision{State: StatePending}, nil

	case "SUCCESS":
		analysisID := task.Get("analysisId").String()
		if analysisID == "" {
			return Decision{State: StatePending}, nil
		}
		return s.projectStatus(ctx, "analysisId", analysisID)

	case "FAILED", "CANCELED":
		reason := fmt.Sprintf("analysis task %s", strings.ToLower(status))
		if msg := task.Get("errorMessage").String(); msg != "" {
			reason += ": " + msg
		}
		return Decision{State: StateRejected, Reason: reason}, nil

	default:
		return Decision{}, fmt.Errorf("%w: unexpected task status %q", ErrSourceUnavailable, status)
	}
}

// projectStatus запрашивает решение quality gate.
func (s *SonarSource) projectStatus(ctx context.Context, param, value string) (Decision, error) {
	body, err := s.get(ctx, "/api/qualitygates/project_status", param, value)
	if err != nil {
		return Decision{}, err
	}

	status := gjson.GetBytes(body, "projectStatus")
	switch status.Get("status").String() {
	case "OK":
		return Decision{State: StatePassed}, nil

	case "ERROR", "WARN":
		var failed []string
		for _, c := range status.Get(`conditions.#(status=="ERROR")#`).Array() {
			failed = append(failed, c.Get("metricKey").String())
		}
		reason := "quality gate failed"
		if len(failed) > 0 {
			reason += ": " + strings.Join(failed, ", ")
		}
		return Decision{State: StateRejected, Reason: reason}, nil

	default:
		// NONE: gate не вычислен, одобрить нечего
		return Decision{State: StateRejected, Reason: "quality gate not computed"}, nil
	}
}

func (s *SonarSource) get(ctx context.Context, path, param, value string) ([]byte, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam(param, value).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrSourceUnavailable, path, resp.StatusCode())
	}
	return resp.Body(), nil
}

// TaskIDFromReport читает ceTaskId из report-task.txt сканера.
func TaskIDFromReport(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if ok && strings.TrimSpace(key) == "ceTaskId" {
			if id := strings.TrimSpace(value); id != "" {
				return id, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}
	return "", fmt.Errorf("%w: %s has no ceTaskId", ErrReportInvalid, path)
}
