// Package pipeline выполняет упорядоченный список stages.
//
// Pipeline — неизменяемый линейный список Stage с базовым окружением.
// Runner проходит stages строго по порядку:
//
//	Pending → Running(0) → ... → Running(n-1) → Succeeded
//	               ↘ Failed(reason)   (первая ошибка останавливает run)
//	               ↘ Aborted(reason)  (отмена ctx или исчерпан бюджет)
//
// На входе в stage открывается secret scope (кладётся на стек scopes
// выполнения) и вычисляется эффективное окружение:
//
//	база pipeline ⊕ переменные запуска (BUILD_ID, IMAGE_TAG, RUN_ID)
//	⊕ env stage ⊕ окружение scopes
//
// База при этом не меняется. Scope снимается на любом пути выхода.
//
// Action — единица работы внутри stage:
//   - ExecAction — внешняя команда через executor
//   - GateAction — ожидание решения gate
//   - RolloutAction — ожидание сходимости rollout
//   - ScopeAction — вложенный secret scope
//   - FuncAction — произвольная функция
//
// Финальный Outcome фиксируется ровно один раз и передаётся
// hooks.Dispatcher.
package pipeline
