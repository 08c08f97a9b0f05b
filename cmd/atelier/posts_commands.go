package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"atelier/internal/services"
	"atelier/internal/store"
)

func newPostsCommand(ctx *commandContext) *cobra.Command {
	postsCmd := &cobra.Command{
		Use:   "posts",
		Short: "Inspect the publish queue",
	}

	postsCmd.AddCommand(newPostsListCommand(ctx))
	postsCmd.AddCommand(newPostsCancelCommand(ctx))

	return postsCmd
}

func newPostsListCommand(cliCtx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <account-handle>",
		Short: "List upcoming scheduled posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				ctx := cmd.Context()
				account, err := st.GetAccountByHandle(ctx, args[0])
				if err != nil {
					return err
				}
				posts, err := st.UpcomingPosts(ctx, account.ID, limit)
				if err != nil {
					return err
				}
				if len(posts) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No queued posts for %s\n", account.Handle)
					return nil
				}

				rows := make([][]string, 0, len(posts))
				for _, post := range posts {
					scheduled := post.ScheduledFor
					rows = append(rows, []string{
						strconv.FormatInt(post.ID, 10),
						formatTime(&scheduled),
						string(post.Status),
						post.Caption,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]tableColumn{
						{title: "ID", right: true},
						{title: "Scheduled For"},
						{title: "Status"},
						{title: "Caption", maxWidth: 40},
					},
					rows,
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum posts to list")
	return cmd
}

func newPostsCancelCommand(cliCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <post-id>",
		Short: "Cancel a queued post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				post, err := st.GetScheduledPost(cmd.Context(), id)
				if err != nil {
					if errors.Is(err, services.ErrNotFound) {
						return fmt.Errorf("post %d not found", id)
					}
					return err
				}
				if post.Status != store.PostQueued {
					return fmt.Errorf("post %d is %s, only queued posts can be cancelled", id, post.Status)
				}
				if err := st.SetPostStatus(cmd.Context(), id, store.PostCancelled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled post %d\n", id)
				return nil
			})
		},
	}
}
