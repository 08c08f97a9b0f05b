package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"atelier/internal/preflight"
	"atelier/internal/store"
)

func newStatusCommand(cliCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show environment checks and account activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cliCtx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Environment", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			fmt.Fprintln(out)

			return cliCtx.withStore(func(st *store.Store) error {
				accounts, err := st.ListAccounts(cmd.Context())
				if err != nil {
					return err
				}

				for _, line := range renderSectionHeader("Accounts", colorize) {
					fmt.Fprintln(out, line)
				}
				if len(accounts) == 0 {
					fmt.Fprintln(out, statusIndent+"No accounts configured")
					return nil
				}

				rows := make([][]string, 0, len(accounts))
				for _, account := range accounts {
					lastStatus := "-"
					if run, err := st.LatestRun(cmd.Context(), account.ID); err == nil && run != nil {
						lastStatus = fmt.Sprintf("%s (run %d)", run.Status, run.ID)
					}
					rows = append(rows, []string{
						strconv.FormatInt(account.ID, 10),
						account.Handle,
						yesNo(account.Active),
						formatTime(account.LastRunAt),
						lastStatus,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]tableColumn{
						{title: "ID", right: true},
						{title: "Handle"},
						{title: "Active"},
						{title: "Last Run"},
						{title: "Latest Status"},
					},
					rows,
				))
				return nil
			})
		},
	}
}
