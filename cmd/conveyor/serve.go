package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/trigger"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	v.SetDefault("addr", ":8080")
	v.SetDefault("max_concurrent", 4)
	v.SetDefault("history", 100)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("shutdown_timeout", 30*time.Second)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trigger API, the AMQP trigger queue and pipeline schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.SetupLogger()
			logger.Info("starting conveyor", "version", version)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			exec := executor.New(executor.Config{InheritEnv: true, Logger: logger})
			st, err := newStack(v, exec, false, logger)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			obs := observers{metrics: reg}

			// PostgreSQL: история runs и хранилище credentials
			var history api.RunHistory
			var leader scheduler.Leader
			if v.GetBool("database") {
				pool, err := repo.NewPool(ctx)
				if err != nil {
					return fmt.Errorf("connect to database: %w", err)
				}
				defer pool.Close()
				if err := repo.Migrate(ctx, pool); err != nil {
					return err
				}
				logger.Info("connected to database")

				runs := repo.NewRunRepo(pool)
				obs.store = runs
				history = runs
				st.store = repo.NewCredentialRepo(pool)

				lock := repo.NewAdvisoryLock(pool, repo.SchedulerLockKey)
				defer lock.Release(context.Background())
				leader = lock
			}

			// RabbitMQ: очередь triggers и события runs
			var conn *mq.Connection
			if v.GetBool("amqp") {
				conn, err = mq.NewConnection(mq.URLFromEnv(), logger)
				if err != nil {
					return fmt.Errorf("connect to rabbitmq: %w", err)
				}
				defer conn.Close()
				if err := mq.SetupTopology(ctx, conn); err != nil {
					return err
				}
				obs.events = mq.NewPublisher(conn, logger)
			}

			runner, err := st.runner(ctx, obs)
			if err != nil {
				return err
			}

			svc := trigger.NewService(trigger.Config{
				Loader:        st.loader(),
				Runner:        runner,
				MaxConcurrent: v.GetInt("max_concurrent"),
				History:       v.GetInt("history"),
				Logger:        logger,
			})

			var wg sync.WaitGroup

			if conn != nil {
				consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
					Queue:    mq.QueueTriggersPending,
					Handler:  trigger.AMQPHandler(svc),
					Prefetch: v.GetInt("max_concurrent"),
				})
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("consumer stopped", "error", err)
					}
				}()
			}

			if len(st.spec.Schedule) > 0 {
				loc, err := time.LoadLocation(v.GetString("timezone"))
				if err != nil {
					return fmt.Errorf("timezone: %w", err)
				}
				sched, err := scheduler.New(scheduler.Config{
					Schedules: st.spec.Schedule,
					Submitter: svc,
					Leader:    leader,
					Location:  loc,
					Logger:    logger,
				})
				if err != nil {
					return err
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := sched.Run(ctx); err != nil {
						logger.Error("scheduler stopped", "error", err)
					}
				}()
			}

			handler := api.NewHandler(api.Config{
				Service:    svc,
				History:    history,
				Gatherer:   reg,
				Registerer: reg,
				Logger:     logger,
			})
			mux := http.NewServeMux()
			handler.RegisterRoutes(mux)

			server := &http.Server{
				Addr:              v.GetString("addr"),
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-serveErr:
				stop()
				wg.Wait()
				return fmt.Errorf("http server: %w", err)
			}
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), v.GetDuration("shutdown_timeout"))
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("http shutdown error", "error", err)
			}
			if err := svc.Shutdown(shutdownCtx); err != nil {
				logger.Error("runs did not finish before shutdown timeout", "error", err, "active", svc.Active())
			}
			wg.Wait()

			logger.Info("stopped")
			return nil
		},
	}

	addStackFlags(cmd, v)
	flags := cmd.Flags()
	flags.String("addr", v.GetString("addr"), "HTTP listen address")
	flags.Int("max-concurrent", v.GetInt("max_concurrent"), "Maximum concurrently executing runs")
	flags.Int("history", v.GetInt("history"), "Finished runs kept in memory")
	flags.Bool("database", v.GetBool("database"), "Persist runs and read credentials from PostgreSQL (DB_URL)")
	flags.Bool("amqp", v.GetBool("amqp"), "Consume triggers and publish run events via RabbitMQ (RABBITMQ_URL)")
	flags.String("timezone", v.GetString("timezone"), "Timezone of pipeline schedules")
	flags.Duration("shutdown-timeout", v.GetDuration("shutdown_timeout"), "Time to wait for running pipelines on shutdown")

	return cmd
}
