package pipeline

import "errors"

// Ошибки построения pipeline.
var (
	// ErrEmptyPipeline — pipeline не содержит stages.
	ErrEmptyPipeline = errors.New("pipeline has no stages")

	// ErrEmptyStageName — stage без имени.
	ErrEmptyStageName = errors.New("stage has empty name")

	// ErrDuplicateStage — несколько stages с одинаковым именем.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrNilAction — stage содержит nil action.
	ErrNilAction = errors.New("stage has nil action")
)

// Ошибки выполнения.
var (
	// ErrExternalAbort — run прерван извне (отмена или бюджет времени).
	ErrExternalAbort = errors.New("external abort")

	// ErrBudgetExhausted — исчерпан бюджет времени run.
	ErrBudgetExhausted = errors.New("time budget exhausted")

	// ErrNoGateWaiter — в Runner не настроен gate waiter.
	ErrNoGateWaiter = errors.New("gate waiter not configured")

	// ErrNoRolloutMonitor — в Runner не настроен rollout monitor.
	ErrNoRolloutMonitor = errors.New("rollout monitor not configured")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")

	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")
)
