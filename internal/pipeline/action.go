package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/gate"
	"github.com/shaiso/Conveyor/internal/secrets"
)

// Action — единица работы внутри stage.
//
// Run блокирует до завершения. Любая ошибка останавливает stage
// и весь run.
type Action interface {
	Name() string
	Run(ctx context.Context, rt *Runtime) error
}

// ExecAction запускает внешнюю команду.
//
// Аргументы, env и Dir рендерятся как шаблоны в момент запуска.
type ExecAction struct {
	Label   string
	Command []string
	Env     map[string]string
	Dir     string

	// AllowFailure — ненулевой код не останавливает stage.
	AllowFailure bool
}

// Name реализует Action.
func (a *ExecAction) Name() string {
	if a.Label != "" {
		return a.Label
	}
	if len(a.Command) > 0 {
		return a.Command[0]
	}
	return "exec"
}

// Run реализует Action.
func (a *ExecAction) Run(ctx context.Context, rt *Runtime) error {
	data := rt.Template()

	args, err := RenderArgs(a.Command, data)
	if err != nil {
		return err
	}
	env, err := RenderMap(a.Env, data)
	if err != nil {
		return err
	}
	dir, err := Render(a.Dir, data)
	if err != nil {
		return err
	}

	res, err := rt.Run(ctx, &executor.Command{Args: args, Env: env, Dir: dir})
	if err != nil {
		return err
	}

	if err := res.Err(); err != nil {
		if a.AllowFailure {
			rt.Logger().Warn("command failed, continuing", "command", res.Command, "exit_code", res.ExitCode)
			return nil
		}
		return err
	}
	return nil
}

// GateAction ждёт решения gate.
//
// Если задан Report, id gate читается из отчёта сканера в момент запуска.
type GateAction struct {
	Label   string
	GateID  string
	Report  string
	Timeout time.Duration
}

// Name реализует Action.
func (a *GateAction) Name() string {
	if a.Label != "" {
		return a.Label
	}
	return "gate " + a.GateID
}

// Run реализует Action.
func (a *GateAction) Run(ctx context.Context, rt *Runtime) error {
	waiter := rt.runner.gates
	if waiter == nil {
		return ErrNoGateWaiter
	}

	id, err := rt.Render(a.GateID)
	if err != nil {
		return err
	}
	if a.Report != "" {
		path, err := rt.Render(a.Report)
		if err != nil {
			return err
		}
		if id, err = gate.TaskIDFromReport(path); err != nil {
			return err
		}
	}

	result, err := waiter.Await(ctx, id, a.Timeout)
	if err != nil {
		return err
	}
	rt.runner.metrics.GateWaited(string(result.Status), result.Waited)
	rt.exec.transcript.Append(fmt.Sprintf("gate %s: %s after %d polls", id, result.Status, result.Polls))

	return result.Err()
}

// RolloutAction ждёт, пока rollout ресурса станет stable.
type RolloutAction struct {
	Label    string
	Resource string
}

// Name реализует Action.
func (a *RolloutAction) Name() string {
	if a.Label != "" {
		return a.Label
	}
	return "rollout " + a.Resource
}

// Run реализует Action.
func (a *RolloutAction) Run(ctx context.Context, rt *Runtime) error {
	monitor := rt.runner.rollouts
	if monitor == nil {
		return ErrNoRolloutMonitor
	}

	resource, err := rt.Render(a.Resource)
	if err != nil {
		return err
	}

	result, err := monitor.Watch(executor.WithExecutor(ctx, rt.Probe()), resource)
	if err != nil {
		return err
	}

	status := "stable"
	if !result.Stable {
		status = "failed"
	}
	rt.runner.metrics.RolloutWatched(status, result.Polls)
	rt.exec.transcript.Append(fmt.Sprintf("rollout %s: %s after %d polls", resource, status, result.Polls))

	return result.Err()
}

// ScopeAction выполняет actions во вложенном secret scope.
//
// Scope снимается при любом выходе, в том числе при ошибке
// вложенного action.
type ScopeAction struct {
	Label       string
	Credentials []secrets.Request
	Actions     []Action
}

// Name реализует Action.
func (a *ScopeAction) Name() string {
	if a.Label != "" {
		return a.Label
	}
	return "scope"
}

// Run реализует Action.
func (a *ScopeAction) Run(ctx context.Context, rt *Runtime) error {
	release, err := rt.Enter(ctx, a.Credentials...)
	if err != nil {
		return err
	}
	defer release()

	for _, inner := range a.Actions {
		if err := abortError(ctx); err != nil {
			return err
		}
		if err := inner.Run(ctx, rt); err != nil {
			return err
		}
	}
	return nil
}

// FuncAction выполняет функцию в процессе.
type FuncAction struct {
	Label string
	Fn    func(ctx context.Context, rt *Runtime) error
}

// Name реализует Action.
func (a *FuncAction) Name() string {
	if a.Label != "" {
		return a.Label
	}
	return "func"
}

// Run реализует Action.
func (a *FuncAction) Run(ctx context.Context, rt *Runtime) error {
	return a.Fn(ctx, rt)
}

// Exec создаёт ExecAction для argv.
func Exec(args ...string) *ExecAction {
	return &ExecAction{Command: args}
}

// Gate создаёт GateAction.
func Gate(id string, timeout time.Duration) *GateAction {
	return &GateAction{GateID: id, Timeout: timeout}
}

// Rollout создаёт RolloutAction.
func Rollout(resource string) *RolloutAction {
	return &RolloutAction{Resource: resource}
}

// Func создаёт FuncAction.
func Func(label string, fn func(ctx context.Context, rt *Runtime) error) *FuncAction {
	return &FuncAction{Label: label, Fn: fn}
}
