package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/cluster"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/hooks"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/secrets"
)

// Переменные, в которые push и deploy привязывают учётные данные registry.
const (
	registryUserVar     = "CONVEYOR_REGISTRY_USERNAME"
	registryPasswordVar = "CONVEYOR_REGISTRY_PASSWORD"
)

// BuildOptions — параметры построения Pipeline.
type BuildOptions struct {
	// HookExecutor запускает команды hooks (default: executor.Process).
	HookExecutor executor.Executor

	// Docker, Kubectl — настройки клиентов. Executor подставляется
	// в момент выполнения шага.
	Docker  registry.Config
	Kubectl cluster.Config

	// CleanupTimeout ограничивает время работы hooks.
	CleanupTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// Build превращает проверенное определение в Pipeline.
func Build(spec *domain.PipelineSpec, opts BuildOptions) (*pipeline.Pipeline, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &builder{opts: opts, logger: logger}

	stages := make([]pipeline.Stage, len(spec.Stages))
	for i, st := range spec.Stages {
		reqs, err := requests(st.Credentials)
		if err != nil {
			return nil, err
		}
		actions, err := b.actions(st.Steps)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", st.Name, err)
		}
		stages[i] = pipeline.Stage{
			Name:        st.Name,
			Credentials: reqs,
			Env:         st.Env,
			Actions:     actions,
		}
	}

	return pipeline.New(pipeline.Definition{
		Name:   spec.Name,
		Env:    spec.Env,
		Stages: stages,
		Hooks:  b.hooks(spec.Hooks),
	})
}

// Timeout возвращает бюджет времени run (0 — без ограничения).
func Timeout(spec *domain.PipelineSpec) time.Duration {
	d, _ := parseDuration("", "timeout", spec.Timeout)
	return d
}

// GateTiming возвращает grace delay и интервал опроса gate (0 — по умолчанию).
func GateTiming(spec *domain.PipelineSpec) (grace, poll time.Duration) {
	if spec.Gate == nil {
		return 0, 0
	}
	grace, _ = parseDuration("", "gate.grace_delay", spec.Gate.GraceDelay)
	poll, _ = parseDuration("", "gate.poll_interval", spec.Gate.PollInterval)
	return grace, poll
}

// RolloutInterval возвращает интервал опроса rollout (0 — по умолчанию).
func RolloutInterval(spec *domain.PipelineSpec) time.Duration {
	if spec.Rollout == nil {
		return 0
	}
	d, _ := parseDuration("", "rollout.interval", spec.Rollout.Interval)
	return d
}

func requests(creds []domain.CredentialSpec) ([]secrets.Request, error) {
	reqs := make([]secrets.Request, 0, len(creds))
	for _, c := range creds {
		req, err := request(c)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

type builder struct {
	opts   BuildOptions
	logger *slog.Logger
}

// actions строит actions шагов по порядку.
func (b *builder) actions(steps []domain.StepSpec) ([]pipeline.Action, error) {
	var out []pipeline.Action
	for _, step := range steps {
		built, err := b.step(step)
		if err != nil {
			return nil, err
		}
		out = append(out, built...)
	}
	return out, nil
}

// step строит actions одного шага. deploy с wait даёт два action.
func (b *builder) step(step domain.StepSpec) ([]pipeline.Action, error) {
	switch {
	case len(step.Run) > 0:
		return []pipeline.Action{&pipeline.ExecAction{
			Label:        step.Name,
			Command:      step.Run,
			Env:          step.Env,
			Dir:          step.Dir,
			AllowFailure: step.AllowFailure,
		}}, nil

	case step.Gate != nil:
		timeout, err := parseDuration("", "gate.timeout", step.Gate.Timeout)
		if err != nil {
			return nil, err
		}
		return []pipeline.Action{&pipeline.GateAction{
			Label:   step.Name,
			GateID:  step.Gate.ID,
			Report:  step.Gate.Report,
			Timeout: timeout,
		}}, nil

	case step.Rollout != nil:
		ref := cluster.Ref{Namespace: step.Rollout.Namespace, Name: step.Rollout.Deployment}
		return []pipeline.Action{&pipeline.RolloutAction{Label: step.Name, Resource: ref.String()}}, nil

	case step.Push != nil:
		return []pipeline.Action{b.push(step.Name, *step.Push)}, nil

	case step.Deploy != nil:
		return b.deploy(step.Name, *step.Deploy), nil

	case step.Scope != nil:
		reqs, err := requests(step.Scope.Credentials)
		if err != nil {
			return nil, err
		}
		inner, err := b.actions(step.Scope.Steps)
		if err != nil {
			return nil, err
		}
		return []pipeline.Action{&pipeline.ScopeAction{Label: step.Name, Credentials: reqs, Actions: inner}}, nil
	}

	return nil, ErrEmptyStep
}

// push собирает образ, ставит теги и публикует их.
//
// С credential шаг выполняется во вложенном scope, а logout вызывается
// при любом исходе после успешного login.
func (b *builder) push(label string, spec domain.PushSpec) pipeline.Action {
	if label == "" {
		label = "push"
	}

	fn := func(ctx context.Context, rt *pipeline.Runtime) error {
		cfg := b.opts.Docker
		cfg.Executor = rt
		cfg.Logger = rt.Logger()
		docker := registry.New(cfg)

		image, err := rt.Render(spec.Image)
		if err != nil {
			return err
		}
		contextDir, err := rt.Render(spec.Context)
		if err != nil {
			return err
		}
		dockerfile, err := rt.Render(spec.Dockerfile)
		if err != nil {
			return err
		}

		if err := docker.Build(ctx, image, contextDir, dockerfile); err != nil {
			return err
		}

		images := []string{image}
		for _, tag := range spec.Tags {
			tag, err := rt.Render(tag)
			if err != nil {
				return err
			}
			alias := registry.Reference(registry.Repository(image), tag)
			if err := docker.Tag(ctx, image, alias); err != nil {
				return err
			}
			images = append(images, alias)
		}

		if spec.Credential != "" {
			server := spec.Registry
			if server == "" {
				server = registry.Server(image)
			}
			username, _ := rt.Lookup(registryUserVar)
			password, _ := rt.Lookup(registryPasswordVar)

			if err := docker.Login(ctx, server, username, password); err != nil {
				return err
			}
			defer func() {
				if err := docker.Logout(context.WithoutCancel(ctx), server); err != nil {
					rt.Logger().Warn("docker logout failed", "registry", server, "error", err)
				}
			}()
		}

		for _, img := range images {
			if err := docker.Push(ctx, img); err != nil {
				return err
			}
		}
		return nil
	}

	action := pipeline.Func(label, fn)
	if spec.Credential == "" {
		return action
	}
	return &pipeline.ScopeAction{
		Label:       label,
		Credentials: []secrets.Request{registryRequest(spec.Credential)},
		Actions:     []pipeline.Action{action},
	}
}

// deploy обновляет образ deployment и, если нужно, ждёт rollout.
func (b *builder) deploy(label string, spec domain.DeploySpec) []pipeline.Action {
	if label == "" {
		label = "deploy"
	}
	ref := cluster.Ref{Namespace: spec.Namespace, Name: spec.Deployment}
	container := spec.Container
	if container == "" {
		container = spec.Deployment
	}

	kubectl := func(rt *pipeline.Runtime) *cluster.Kubectl {
		cfg := b.opts.Kubectl
		cfg.Executor = rt
		cfg.Logger = rt.Logger()
		return cluster.New(cfg)
	}

	var actions []pipeline.Action

	if ps := spec.PullSecret; ps != nil {
		apply := pipeline.Func(label+" pull secret", func(ctx context.Context, rt *pipeline.Runtime) error {
			server, err := rt.Render(ps.Server)
			if err != nil {
				return err
			}
			username, _ := rt.Lookup(registryUserVar)
			password, _ := rt.Lookup(registryPasswordVar)
			return kubectl(rt).ApplyPullSecret(ctx, ref.Namespace, ps.Name, server, username, password)
		})
		actions = append(actions, &pipeline.ScopeAction{
			Label:       label + " pull secret",
			Credentials: []secrets.Request{registryRequest(ps.Credential)},
			Actions:     []pipeline.Action{apply},
		})
	}

	actions = append(actions, pipeline.Func(label, func(ctx context.Context, rt *pipeline.Runtime) error {
		image, err := rt.Render(spec.Image)
		if err != nil {
			return err
		}
		return kubectl(rt).SetImage(ctx, ref, container, image)
	}))

	if spec.Wait {
		actions = append(actions, &pipeline.RolloutAction{Label: label + " rollout", Resource: ref.String()})
	}
	return actions
}

// hooks строит dispatcher из команд hooks.
func (b *builder) hooks(spec *domain.HooksSpec) *hooks.Dispatcher {
	d := &hooks.Dispatcher{
		CleanupTimeout: b.opts.CleanupTimeout,
		Logger:         b.logger,
	}
	if spec == nil {
		return d
	}

	exec := b.opts.HookExecutor
	if exec == nil {
		exec = executor.New(executor.Config{InheritEnv: true, Logger: b.logger})
	}

	hook := func(cmds [][]string) hooks.Hook {
		if len(cmds) == 0 {
			return nil
		}
		return pipeline.CommandHook(exec, cmds...)
	}

	d.OnSuccess = hook(spec.OnSuccess)
	d.OnFailure = hook(spec.OnFailure)
	d.OnAborted = hook(spec.OnAborted)
	d.OnAlways = hook(spec.Always)
	return d
}

func registryRequest(id string) secrets.Request {
	return secrets.Request{
		ID:          id,
		Kind:        secrets.KindUsernamePassword,
		UsernameVar: registryUserVar,
		PasswordVar: registryPasswordVar,
	}
}

// FileLoader строит Pipeline из файла, перечитывая его при каждом вызове.
type FileLoader struct {
	Path    string
	Options BuildOptions
}

// Load читает файл и строит новый Pipeline.
func (l *FileLoader) Load() (*pipeline.Pipeline, error) {
	spec, err := Load(l.Path)
	if err != nil {
		return nil, err
	}
	return Build(spec, l.Options)
}
