// Package config загружает определение pipeline из YAML.
//
// Определение — фиксированный линейный список stages (domain.PipelineSpec).
// Parse проверяет структуру, Build превращает определение в
// pipeline.Pipeline с реальными actions:
//
//	run      → pipeline.ExecAction
//	gate     → pipeline.GateAction
//	rollout  → pipeline.RolloutAction
//	push     → docker build/tag/login/push/logout (registry.Docker)
//	deploy   → kubectl apply pull secret / set image (cluster.Kubectl)
//	scope    → pipeline.ScopeAction
//
// Pipeline строится заново на каждый trigger: FileLoader перечитывает
// файл при каждом вызове.
package config
