package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"atelier/internal/store"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage per-account pipeline settings",
	}

	settingsCmd.AddCommand(newSettingsShowCommand(ctx))
	settingsCmd.AddCommand(newSettingsSetCommand(ctx))

	return settingsCmd
}

func newSettingsShowCommand(cliCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <account-handle>",
		Short: "Show the settings a run reads at start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				account, err := st.GetAccountByHandle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				settings, err := st.AccountSettings(cmd.Context(), account.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Settings for %s\n", account.Handle)
				fmt.Fprintf(out, "  Vet threshold:    %.2f\n", settings.VetThreshold)
				fmt.Fprintf(out, "  Provider:         %s\n", orDash(settings.GenerationProvider))
				fmt.Fprintf(out, "  Reference image:  %s\n", orDash(settings.ReferenceImagePath))
				fmt.Fprintf(out, "  Aspect ratio:     %s\n", orDash(settings.AspectRatio))
				fmt.Fprintf(out, "  Image size:       %s\n", orDash(settings.ImageSize))
				fmt.Fprintf(out, "  Caption style:    %s\n", orDash(settings.CaptionStyle))
				fmt.Fprintf(out, "  Post times:       %s\n", orDash(strings.Join(settings.PostTimes, ", ")))
				return nil
			})
		},
	}
}

func newSettingsSetCommand(cliCtx *commandContext) *cobra.Command {
	var (
		threshold float64
		provider  string
		reference string
		aspect    string
		size      string
		style     string
		postTimes []string
	)

	cmd := &cobra.Command{
		Use:   "set <account-handle>",
		Short: "Update settings; only provided flags change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCtx.withStore(func(st *store.Store) error {
				ctx := cmd.Context()
				account, err := st.GetAccountByHandle(ctx, args[0])
				if err != nil {
					return err
				}
				settings, err := st.AccountSettings(ctx, account.ID)
				if err != nil {
					return err
				}

				if cmd.Flags().Changed("threshold") {
					if threshold < 0 || threshold > 1 {
						return fmt.Errorf("threshold must be between 0 and 1, got %.2f", threshold)
					}
					settings.VetThreshold = threshold
				}
				if cmd.Flags().Changed("provider") {
					settings.GenerationProvider = strings.TrimSpace(provider)
				}
				if cmd.Flags().Changed("reference") {
					settings.ReferenceImagePath = strings.TrimSpace(reference)
				}
				if cmd.Flags().Changed("aspect") {
					settings.AspectRatio = strings.TrimSpace(aspect)
				}
				if cmd.Flags().Changed("size") {
					settings.ImageSize = strings.TrimSpace(size)
				}
				if cmd.Flags().Changed("style") {
					settings.CaptionStyle = strings.TrimSpace(style)
				}
				if cmd.Flags().Changed("post-times") {
					cleaned := make([]string, 0, len(postTimes))
					for _, t := range postTimes {
						t = strings.TrimSpace(t)
						if t != "" {
							cleaned = append(cleaned, t)
						}
					}
					settings.PostTimes = cleaned
				}

				if err := st.SaveAccountSettings(ctx, settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated settings for %s\n", account.Handle)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Vet score threshold (0-1)")
	cmd.Flags().StringVar(&provider, "provider", "", "Image generation provider override")
	cmd.Flags().StringVar(&reference, "reference", "", "Reference image path for generation")
	cmd.Flags().StringVar(&aspect, "aspect", "", "Generated image aspect ratio")
	cmd.Flags().StringVar(&size, "size", "", "Generated image size")
	cmd.Flags().StringVar(&style, "style", "", "Caption style prompt")
	cmd.Flags().StringSliceVar(&postTimes, "post-times", nil, "Publish slot times (HH:MM, comma separated)")
	return cmd
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
