package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/Conveyor/internal/archive"
	"github.com/shaiso/Conveyor/internal/cluster"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/gate"
	"github.com/shaiso/Conveyor/internal/hooks"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/rollout"
	"github.com/shaiso/Conveyor/internal/secrets"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// addStackFlags регистрирует флаги, общие для run и serve.
func addStackFlags(cmd *cobra.Command, v *viper.Viper) {
	v.SetDefault("docker", "docker")
	v.SetDefault("kubectl", "kubectl")
	v.SetDefault("archive_bucket", "conveyor-logs")

	flags := cmd.Flags()
	flags.StringP("file", "f", v.GetString("file"), "Pipeline definition file")
	flags.String("credentials", v.GetString("credentials"), "YAML credentials file (default: CONVEYOR_CRED_* environment)")
	flags.String("sonar-url", v.GetString("sonar_url"), "Quality gate server URL")
	flags.String("sonar-token", v.GetString("sonar_token"), "Quality gate server token")
	flags.String("docker", v.GetString("docker"), "docker CLI binary")
	flags.String("kubectl", v.GetString("kubectl"), "kubectl binary")
	flags.String("kube-context", v.GetString("kube_context"), "kube context (default: current)")
	flags.String("archive-endpoint", v.GetString("archive_endpoint"), "S3 endpoint for run transcripts (empty disables upload)")
	flags.String("archive-bucket", v.GetString("archive_bucket"), "S3 bucket for run transcripts")
}

// stack — собранные зависимости Runner для одного pipeline файла.
type stack struct {
	v        *viper.Viper
	spec     *domain.PipelineSpec
	executor executor.Executor
	dryRun   bool
	logger   *slog.Logger

	// store заменяет хранилище по умолчанию, если файл credentials не задан.
	store secrets.Store
}

func newStack(v *viper.Viper, exec executor.Executor, dryRun bool, logger *slog.Logger) (*stack, error) {
	spec, err := config.Load(v.GetString("file"))
	if err != nil {
		return nil, err
	}
	return &stack{v: v, spec: spec, executor: exec, dryRun: dryRun, logger: logger}, nil
}

// buildOptions — параметры построения Pipeline.
func (s *stack) buildOptions() config.BuildOptions {
	return config.BuildOptions{
		HookExecutor: s.executor,
		Docker:       registry.Config{Binary: s.v.GetString("docker")},
		Kubectl:      cluster.Config{Binary: s.v.GetString("kubectl"), Context: s.v.GetString("kube_context")},
		Logger:       s.logger,
	}
}

// credentials — хранилище из файла, заданное хранилище или окружение процесса.
func (s *stack) credentials() (secrets.Store, error) {
	if path := s.v.GetString("credentials"); path != "" {
		return secrets.LoadFile(path)
	}
	if s.store != nil {
		return s.store, nil
	}
	return &secrets.EnvStore{}, nil
}

// gates — Waiter поверх сервера анализа; nil, если сервер не задан.
func (s *stack) gates() *gate.Waiter {
	grace, poll := config.GateTiming(s.spec)

	var source gate.Source
	switch {
	case s.dryRun:
		source = gate.SourceFunc(func(context.Context, string) (gate.Decision, error) {
			return gate.Decision{State: gate.StatePassed}, nil
		})
		grace = -1
	case s.v.GetString("sonar_url") != "":
		source = gate.NewSonarSource(gate.SonarConfig{
			BaseURL: s.v.GetString("sonar_url"),
			Token:   s.v.GetString("sonar_token"),
		})
	default:
		return nil
	}

	return gate.NewWaiter(gate.Config{
		Source:       source,
		GraceDelay:   grace,
		PollInterval: poll,
		Logger:       s.logger,
	})
}

// rollouts — Monitor поверх kubectl.
func (s *stack) rollouts() *rollout.Monitor {
	var source rollout.Source = cluster.New(cluster.Config{
		Executor: s.executor,
		Binary:   s.v.GetString("kubectl"),
		Context:  s.v.GetString("kube_context"),
		Logger:   s.logger,
	})
	if s.dryRun {
		source = rollout.SourceFunc(func(context.Context, string) (rollout.Status, error) {
			return rollout.Status{State: rollout.StateStable}, nil
		})
	}

	return rollout.NewMonitor(rollout.Config{
		Source:   source,
		Interval: config.RolloutInterval(s.spec),
		Logger:   s.logger,
	})
}

// archive — Uploader транскриптов; nil, если endpoint не задан.
func (s *stack) archive(ctx context.Context) (*archive.Uploader, error) {
	endpoint := s.v.GetString("archive_endpoint")
	if endpoint == "" || s.dryRun {
		return nil, nil
	}

	uploader, err := archive.New(archive.Config{
		Endpoint:  endpoint,
		AccessKey: s.v.GetString("archive_access_key"),
		SecretKey: s.v.GetString("archive_secret_key"),
		Region:    s.v.GetString("archive_region"),
		UseSSL:    s.v.GetBool("archive_ssl"),
		Bucket:    s.v.GetString("archive_bucket"),
		Logger:    s.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return uploader, nil
}

// observers — необязательные наблюдатели выполнения.
type observers struct {
	store   pipeline.RunStore
	events  pipeline.EventPublisher
	metrics prometheus.Registerer
}

// runner собирает Runner для pipeline файла.
func (s *stack) runner(ctx context.Context, obs observers) (*pipeline.Runner, error) {
	store, err := s.credentials()
	if err != nil {
		return nil, err
	}

	uploader, err := s.archive(ctx)
	if err != nil {
		return nil, err
	}
	var always hooks.Hook
	if uploader != nil {
		always = uploader.Hook()
	}

	var metrics pipeline.Metrics
	if obs.metrics != nil {
		metrics = telemetry.NewMetrics(obs.metrics)
	}

	return pipeline.NewRunner(pipeline.Config{
		Executor: s.executor,
		Secrets:  secrets.NewManager(secrets.ManagerConfig{Store: store, Logger: s.logger}),
		Gates:    s.gates(),
		Rollouts: s.rollouts(),
		Always:   always,
		Budget:   config.Timeout(s.spec),
		Store:    obs.store,
		Events:   obs.events,
		Metrics:  metrics,
		Logger:   s.logger,
	}), nil
}

// loader перечитывает pipeline файл на каждый trigger.
func (s *stack) loader() *config.FileLoader {
	return &config.FileLoader{Path: s.v.GetString("file"), Options: s.buildOptions()}
}
