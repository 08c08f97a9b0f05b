package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"atelier/internal/services"
	"atelier/internal/store"
)

func newAccountCommand(ctx *commandContext) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage posting accounts",
	}

	accountCmd.AddCommand(newAccountAddCommand(ctx))
	accountCmd.AddCommand(newAccountListCommand(ctx))
	accountCmd.AddCommand(newAccountSetActiveCommand(ctx, "enable", true))
	accountCmd.AddCommand(newAccountSetActiveCommand(ctx, "disable", false))

	return accountCmd
}

func newAccountAddCommand(cliCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <handle>",
		Short: "Register a posting account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				account, err := st.CreateAccount(cmd.Context(), args[0])
				if err != nil {
					if errors.Is(err, services.ErrConflict) {
						return fmt.Errorf("account %s already exists", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added account %s (id %d)\n", account.Handle, account.ID)
				return nil
			})
		},
	}
}

func newAccountListCommand(cliCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List posting accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				accounts, err := st.ListAccounts(cmd.Context())
				if err != nil {
					return err
				}
				if len(accounts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No accounts configured")
					return nil
				}

				rows := make([][]string, 0, len(accounts))
				for _, account := range accounts {
					rows = append(rows, []string{
						strconv.FormatInt(account.ID, 10),
						account.Handle,
						yesNo(account.Active),
						formatTime(account.LastRunAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]tableColumn{
						{title: "ID", right: true},
						{title: "Handle"},
						{title: "Active"},
						{title: "Last Run"},
					},
					rows,
				))
				return nil
			})
		},
	}
}

func newAccountSetActiveCommand(cliCtx *commandContext, verb string, active bool) *cobra.Command {
	short := "Enable an account for runs"
	if !active {
		short = "Disable an account; queued runs are unaffected"
	}
	return &cobra.Command{
		Use:   verb + " <handle>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				account, err := st.GetAccountByHandle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := st.SetAccountActive(cmd.Context(), account.ID, active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account %s %sd\n", account.Handle, verb)
				return nil
			})
		},
	}
}

func newSourceCommand(ctx *commandContext) *cobra.Command {
	sourceCmd := &cobra.Command{
		Use:   "source",
		Short: "Manage scrape sources",
	}

	sourceCmd.AddCommand(newSourceAddCommand(ctx))
	sourceCmd.AddCommand(newSourceListCommand(ctx))

	return sourceCmd
}

func newSourceAddCommand(cliCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <account-handle> <source-handle>",
		Short: "Attach a scrape source to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				account, err := st.GetAccountByHandle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				source, err := st.AddSource(cmd.Context(), account.ID, args[1])
				if err != nil {
					if errors.Is(err, services.ErrConflict) {
						return fmt.Errorf("source %s already attached to %s", args[1], account.Handle)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added source %s to %s (id %d)\n",
					source.Handle, account.Handle, source.ID)
				return nil
			})
		},
	}
}

func newSourceListCommand(cliCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <account-handle>",
		Short: "List active scrape sources for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				account, err := st.GetAccountByHandle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				sources, err := st.ActiveSources(cmd.Context(), account.ID)
				if err != nil {
					return err
				}
				if len(sources) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No active sources for %s\n", account.Handle)
					return nil
				}

				rows := make([][]string, 0, len(sources))
				for _, source := range sources {
					rows = append(rows, []string{
						strconv.FormatInt(source.ID, 10),
						source.Handle,
						formatTime(&source.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]tableColumn{
						{title: "ID", right: true},
						{title: "Handle"},
						{title: "Added"},
					},
					rows,
				))
				return nil
			})
		},
	}
}
