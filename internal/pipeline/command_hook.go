package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/hooks"
)

// Переменные, которые получают команды hooks.
const (
	EnvOutcome = "CONVEYOR_OUTCOME"
	EnvReason  = "CONVEYOR_REASON"
	EnvStage   = "CONVEYOR_STAGE"
)

// CommandHook возвращает hook, выполняющий команды по порядку.
//
// Команды получают базовое окружение pipeline, переменные запуска
// и CONVEYOR_OUTCOME/CONVEYOR_REASON/CONVEYOR_STAGE. Ошибка одной
// команды не останавливает следующие.
func CommandHook(exec executor.Executor, commands ...[]string) hooks.Hook {
	return func(ctx context.Context, outcome domain.Outcome) error {
		vars := map[string]string{
			EnvOutcome: string(outcome.Kind),
			EnvReason:  outcome.Reason,
			EnvStage:   outcome.Stage,
		}

		env := vars
		data := &TemplateData{Env: env, Stage: outcome.Stage}
		e := ExecutionFromContext(ctx)
		if e != nil {
			env = e.pipeline.env.Overlay(e.buildVars(), vars)
			data = e.templateData(env, outcome.Stage)
		}

		var errs []error
		for _, argv := range commands {
			args, err := RenderArgs(argv, data)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if len(args) == 0 {
				errs = append(errs, executor.ErrEmptyCommand)
				continue
			}

			res, err := exec.Run(ctx, &executor.Command{Args: args, Env: env})
			if e != nil {
				e.record(res)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", args[0], err))
				continue
			}
			if err := res.Err(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
