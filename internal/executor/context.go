package executor

import "context"

type ctxKey struct{}

// WithExecutor кладёт Executor в контекст.
//
// Так наблюдатели, опрашивающие кластер от имени stage (rollout),
// запускают команды с окружением и масками этого stage.
func WithExecutor(ctx context.Context, exec Executor) context.Context {
	return context.WithValue(ctx, ctxKey{}, exec)
}

// FromContext возвращает Executor из контекста или fallback.
func FromContext(ctx context.Context, fallback Executor) Executor {
	if exec, ok := ctx.Value(ctxKey{}).(Executor); ok && exec != nil {
		return exec
	}
	return fallback
}
