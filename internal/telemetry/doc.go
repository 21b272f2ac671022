// Package telemetry — логирование и метрики Conveyor.
//
// Логи пишутся через slog в stderr (stdout занят транскриптом команд
// при локальном запуске). Уровень и формат задаются LOG_LEVEL и
// LOG_FORMAT. Логгер run/stage передаётся через контекст (WithLogger,
// FromContext) и обогащается полями run_id, pipeline, stage.
//
// Metrics реализует pipeline.Metrics поверх Prometheus: runs по исходу,
// длительность stages, ожидание gate и опросы rollout.
package telemetry
