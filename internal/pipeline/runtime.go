package pipeline

import (
	"context"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/secrets"
)

// Runtime — окружение, в котором actions одного stage выполняются.
//
// Runtime реализует executor.Executor: команды получают эффективное
// окружение stage, маски секретов всех открытых scopes и попадают
// в транскрипт выполнения.
type Runtime struct {
	runner   *Runner
	exec     *Execution
	stage    string
	index    int
	stageEnv map[string]string
	stack    *secrets.Stack
	logger   *slog.Logger
}

// Stage возвращает имя текущего stage.
func (rt *Runtime) Stage() string {
	return rt.stage
}

// Index возвращает индекс текущего stage.
func (rt *Runtime) Index() int {
	return rt.index
}

// Execution возвращает текущее выполнение.
func (rt *Runtime) Execution() *Execution {
	return rt.exec
}

// Logger возвращает логгер stage.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// Environ возвращает эффективное окружение: база ⊕ переменные запуска
// ⊕ env stage ⊕ открытые scopes (внутренний выигрывает).
func (rt *Runtime) Environ() map[string]string {
	return rt.exec.pipeline.env.Overlay(rt.exec.buildVars(), rt.stageEnv, rt.stack.Env())
}

// Lookup возвращает значение переменной эффективного окружения.
func (rt *Runtime) Lookup(name string) (string, bool) {
	v, ok := rt.Environ()[name]
	return v, ok
}

// Masks возвращает значения, маскируемые в выводе.
func (rt *Runtime) Masks() []string {
	return rt.stack.Secrets()
}

// Template возвращает данные для рендеринга шаблонов.
func (rt *Runtime) Template() *TemplateData {
	return rt.exec.templateData(rt.Environ(), rt.stage)
}

// Render рендерит строку против текущего окружения.
func (rt *Runtime) Render(tmpl string) (string, error) {
	return Render(tmpl, rt.Template())
}

// Run реализует executor.Executor.
//
// cmd.Env накладывается поверх эффективного окружения.
func (rt *Runtime) Run(ctx context.Context, cmd *executor.Command) (*executor.Result, error) {
	res, err := rt.runner.executor.Run(ctx, rt.command(cmd))
	rt.exec.record(res)

	if res != nil {
		rt.logger.Info("command finished", "command", res.Command, "exit_code", res.ExitCode)
	}
	return res, err
}

// Probe возвращает Executor для опроса состояния: окружение и маски
// те же, что у stage, но команды не попадают в транскрипт.
func (rt *Runtime) Probe() executor.Executor {
	return probe{rt: rt}
}

type probe struct {
	rt *Runtime
}

func (p probe) Run(ctx context.Context, cmd *executor.Command) (*executor.Result, error) {
	res, err := p.rt.runner.executor.Run(ctx, p.rt.command(cmd))
	if res != nil {
		p.rt.logger.Debug("probe finished", "command", res.Command, "exit_code", res.ExitCode)
	}
	return res, err
}

// command накладывает cmd.Env и маски поверх окружения stage.
func (rt *Runtime) command(cmd *executor.Command) *executor.Command {
	c := *cmd
	env := rt.Environ()
	for k, v := range cmd.Env {
		env[k] = v
	}
	c.Env = env
	c.Mask = append(rt.Masks(), cmd.Mask...)
	return &c
}

// Enter открывает вложенный secret scope поверх стека выполнения.
// Возвращённая функция снимает его.
func (rt *Runtime) Enter(ctx context.Context, reqs ...secrets.Request) (func(), error) {
	scope, err := rt.runner.secrets.Enter(ctx, reqs...)
	if err != nil {
		return nil, err
	}
	rt.stack.Push(scope)

	return func() {
		if err := rt.stack.Pop(); err != nil {
			rt.logger.Error("failed to release secret scope", "error", err)
		}
	}, nil
}
