package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"atelier/internal/services"
	"atelier/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Manage pipeline runs",
	}

	runCmd.AddCommand(newRunStartCommand(ctx))
	runCmd.AddCommand(newRunStatusCommand(ctx))
	runCmd.AddCommand(newRunListCommand(ctx))
	runCmd.AddCommand(newRunCancelCommand(ctx))

	return runCmd
}

func newRunStartCommand(cliCtx *commandContext) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "start <account-handle>",
		Short: "Queue a pipeline run for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				ctx := cmd.Context()
				account, err := st.GetAccountByHandle(ctx, args[0])
				if err != nil {
					return err
				}
				if !account.Active {
					return fmt.Errorf("account %s is disabled; enable it first", account.Handle)
				}
				run, err := st.CreateRun(ctx, account.ID, store.TriggerManual)
				if err != nil {
					if errors.Is(err, services.ErrConflict) {
						return fmt.Errorf("account %s already has a pending or running run", account.Handle)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued run %d for %s\n", run.ID, account.Handle)
				if !follow {
					return nil
				}
				return followRun(ctx, cmd, st, run.ID)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Wait for the run to finish, printing step transitions")
	return cmd
}

// followRun polls the run until it reaches a terminal status. The daemon does
// the actual work; this just watches the database.
func followRun(ctx context.Context, cmd *cobra.Command, st *store.Store, runID int64) error {
	out := cmd.OutOrStdout()
	var lastStep store.StepName

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}

		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.CurrentStep != lastStep && run.CurrentStep != "" {
			fmt.Fprintf(out, "  %s...\n", titleLabel(string(run.CurrentStep)))
			lastStep = run.CurrentStep
		}
		if !run.Status.Terminal() {
			continue
		}

		switch run.Status {
		case store.RunCompleted:
			fmt.Fprintf(out, "Run %d completed: %d scraped, %d validated, %d generated, %d scheduled\n",
				run.ID, run.ItemsScraped, run.ItemsValidated, run.ItemsGenerated, run.PostsScheduled)
		case store.RunFailed:
			fmt.Fprintf(out, "Run %d failed at %s: %s\n", run.ID, run.ErrorStep, run.ErrorMessage)
		case store.RunCancelled:
			fmt.Fprintf(out, "Run %d cancelled\n", run.ID)
		}
		return nil
	}
}

func newRunStatusCommand(cliCtx *commandContext) *cobra.Command {
	var accountHandle string

	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show a run and its steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				ctx := cmd.Context()

				var run *store.Run
				switch {
				case len(args) == 1:
					id, err := parseID(args[0])
					if err != nil {
						return err
					}
					run, err = st.GetRun(ctx, id)
					if err != nil {
						return err
					}
				case accountHandle != "":
					account, err := st.GetAccountByHandle(ctx, accountHandle)
					if err != nil {
						return err
					}
					run, err = st.LatestRun(ctx, account.ID)
					if err != nil {
						return err
					}
					if run == nil {
						return fmt.Errorf("account %s has no runs", account.Handle)
					}
				default:
					return errors.New("provide a run id or --account")
				}

				steps, err := st.RunSteps(ctx, run.ID)
				if err != nil {
					return err
				}
				printRun(cmd, run, steps)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&accountHandle, "account", "a", "", "Show the latest run for this account")
	return cmd
}

func printRun(cmd *cobra.Command, run *store.Run, steps []*store.RunStep) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %d (%s, %s trigger)\n", run.ID, run.Status, run.Trigger)
	fmt.Fprintf(out, "  Started:   %s\n", formatTime(run.StartedAt))
	fmt.Fprintf(out, "  Completed: %s\n", formatTime(run.CompletedAt))
	fmt.Fprintf(out, "  Counters:  %d scraped / %d validated / %d generated / %d scheduled\n",
		run.ItemsScraped, run.ItemsValidated, run.ItemsGenerated, run.PostsScheduled)
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:     %s: %s\n", run.ErrorStep, run.ErrorMessage)
	}

	rows := make([][]string, 0, len(steps))
	for _, step := range steps {
		detail := step.ErrorMessage
		if detail == "" {
			detail = step.OutputJSON
		}
		rows = append(rows, []string{
			titleLabel(string(step.Name)),
			string(step.Status),
			formatDuration(step.StartedAt, step.CompletedAt),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]tableColumn{
			{title: "Step"},
			{title: "Status"},
			{title: "Duration", right: true},
			{title: "Detail", maxWidth: 60},
		},
		rows,
	))
}

func newRunListCommand(cliCtx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <account-handle>",
		Short: "List recent runs for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				ctx := cmd.Context()
				account, err := st.GetAccountByHandle(ctx, args[0])
				if err != nil {
					return err
				}
				runs, err := st.ListRuns(ctx, account.ID, limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No runs for %s\n", account.Handle)
					return nil
				}

				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						strconv.FormatInt(run.ID, 10),
						string(run.Status),
						string(run.Trigger),
						formatTime(run.StartedAt),
						formatDuration(run.StartedAt, run.CompletedAt),
						strconv.Itoa(run.PostsScheduled),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]tableColumn{
						{title: "ID", right: true},
						{title: "Status"},
						{title: "Trigger"},
						{title: "Started"},
						{title: "Duration", right: true},
						{title: "Scheduled", right: true},
					},
					rows,
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	return cmd
}

func newRunCancelCommand(cliCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a pending or running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := st.CancelRun(cmd.Context(), id); err != nil {
					if errors.Is(err, services.ErrInvalidState) {
						return fmt.Errorf("run %d is already finished", id)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled run %d\n", id)
				return nil
			})
		},
	}
}
