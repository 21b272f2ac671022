package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline locally for one build",
		Long: `Run executes every stage of the pipeline in order and exits with
0 when the run succeeded, 1 when a stage failed and 2 when the run was
aborted (SIGINT/SIGTERM or the pipeline timeout).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.SetupLogger()

			buildID := strings.TrimSpace(v.GetString("build_id"))
			if buildID == "" {
				return errors.New("--build-id is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dryRun := v.GetBool("dry_run")
			var exec executor.Executor = executor.New(executor.Config{InheritEnv: true, Logger: logger})
			if dryRun {
				exec = &executor.Recorder{}
			}

			st, err := newStack(v, exec, dryRun, logger)
			if err != nil {
				return err
			}
			p, err := config.Build(st.spec, st.buildOptions())
			if err != nil {
				return err
			}
			runner, err := st.runner(ctx, observers{})
			if err != nil {
				return err
			}

			e := runner.Run(ctx, p, domain.Trigger{
				BuildID:     buildID,
				Source:      domain.TriggerSourceManual,
				Revision:    v.GetString("revision"),
				RequestedAt: time.Now(),
			})

			out := cmd.OutOrStdout()
			for _, line := range e.Transcript().Lines() {
				fmt.Fprintln(out, line)
			}

			outcome := e.Outcome()
			if outcome.Kind == domain.OutcomeSuccess {
				logger.Info("run finished", "run_id", e.ID(), "outcome", outcome.String())
			} else {
				logger.Error("run finished", "run_id", e.ID(), "outcome", outcome.String())
			}

			if code := outcome.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	addStackFlags(cmd, v)
	cmd.Flags().String("build-id", v.GetString("build_id"), "Build identifier (image tag build-<id>)")
	cmd.Flags().String("revision", v.GetString("revision"), "Source revision (commit SHA)")
	cmd.Flags().Bool("dry-run", v.GetBool("dry_run"), "Record commands instead of running them")

	return cmd
}
