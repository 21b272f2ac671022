package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunsCmd создаёт группу команд для просмотра и отмены runs.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and cancel runs on a Conveyor server",
	}

	cmd.AddCommand(
		newRunsListCmd(clientFn, outputFn),
		newRunsShowCmd(clientFn, outputFn),
		newRunsLogCmd(clientFn, outputFn),
		newRunsCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pipeline string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(cmd.Context(), ListRunsOpts{
				Pipeline: pipeline,
				Status:   status,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "PIPELINE", "BUILD", "STATUS", "STAGE", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.Pipeline, r.BuildID, r.Status, r.Stage, r.CreatedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Filter by pipeline name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, SUCCEEDED, FAILED, ABORTED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details and stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(run)
				return nil
			}

			reason := run.Reason
			if run.Outcome != nil && run.Outcome.Detail != "" {
				reason = run.Outcome.Detail
			}
			out.Table(
				[]string{"ID", "PIPELINE", "BUILD", "STATUS", "REASON"},
				[][]string{{run.ID, run.Pipeline, run.BuildID, run.Status, reason}},
			)

			if len(run.Stages) > 0 {
				rows := make([][]string, len(run.Stages))
				for i, s := range run.Stages {
					rows[i] = []string{strconv.Itoa(s.Index), s.Name, s.Status, s.Error}
				}
				out.Newline()
				out.Table([]string{"#", "STAGE", "STATUS", "ERROR"}, rows)
			}
			return nil
		},
	}
}

func newRunsLogCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "log ID",
		Short: "Print the command transcript of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			log, err := client.RunLog(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Raw(log)
			return nil
		},
	}
}

func newRunsCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.CancelRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run cancelled: %s", run.ID))
			return nil
		},
	}
}

// NewTriggerCmd создаёт команду запуска pipeline на сервере.
func NewTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var source string
	var revision string

	cmd := &cobra.Command{
		Use:   "trigger BUILD_ID",
		Short: "Start a pipeline run on a Conveyor server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.Trigger(cmd.Context(), TriggerRequest{
				BuildID:  args[0],
				Source:   source,
				Revision: revision,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run started: %s", run.ID))
			out.Print(
				[]string{"ID", "PIPELINE", "BUILD", "IMAGE_TAG", "STATUS"},
				[][]string{{run.ID, run.Pipeline, run.BuildID, run.ImageTag, run.Status}},
				run,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "manual", "Trigger source (manual, scm, schedule)")
	cmd.Flags().StringVar(&revision, "revision", "", "Source revision (commit SHA)")

	return cmd
}
