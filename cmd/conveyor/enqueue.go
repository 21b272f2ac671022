package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func newEnqueueCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue BUILD_ID",
		Short: "Queue a pipeline trigger on RabbitMQ (RABBITMQ_URL)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buildID := strings.TrimSpace(args[0])
			if buildID == "" {
				return errors.New("build id is required")
			}

			logger := telemetry.SetupLogger()
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			conn, err := mq.NewConnection(mq.URLFromEnv(), logger)
			if err != nil {
				return fmt.Errorf("connect to rabbitmq: %w", err)
			}
			defer conn.Close()

			if err := mq.SetupTopology(ctx, conn); err != nil {
				return err
			}

			payload := mq.TriggerPayload{
				BuildID:  buildID,
				Source:   domain.TriggerSource(v.GetString("source")),
				Revision: v.GetString("revision"),
			}
			if err := mq.NewPublisher(conn, logger).PublishTrigger(ctx, payload); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Trigger queued: build %s\n", buildID)
			return nil
		},
	}

	cmd.Flags().String("source", "scm", "Trigger source (manual, scm, schedule)")
	cmd.Flags().String("revision", "", "Source revision (commit SHA)")

	return cmd
}
