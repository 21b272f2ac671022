package domain

import (
	"strings"
	"time"
)

// TriggerSource — источник запуска pipeline.
type TriggerSource string

const (
	// TriggerSourceSCM — уведомление об изменении в репозитории.
	TriggerSourceSCM TriggerSource = "scm"

	// TriggerSourceManual — ручной запуск (CLI/API).
	TriggerSourceManual TriggerSource = "manual"

	// TriggerSourceSchedule — запуск по расписанию.
	TriggerSourceSchedule TriggerSource = "schedule"
)

// Trigger — внешнее событие, запускающее одно выполнение pipeline.
type Trigger struct {
	// BuildID — идентификатор сборки, из него выводится тег образа.
	BuildID string `json:"build_id"`

	// Source — откуда пришёл запуск.
	Source TriggerSource `json:"source"`

	// Revision — ревизия исходников (commit SHA), если известна.
	Revision string `json:"revision,omitempty"`

	// RequestedAt — время получения события.
	RequestedAt time.Time `json:"requested_at"`
}

// ImageTag возвращает тег образа для сборки: "build-<id>".
func (t Trigger) ImageTag() string {
	return ImageTag(t.BuildID)
}

// ImageTag формирует тег образа из идентификатора сборки.
func ImageTag(buildID string) string {
	return "build-" + strings.TrimSpace(buildID)
}
