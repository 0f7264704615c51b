package main

import (
	"errors"

	"github.com/spf13/cobra"

	"fydai/services/journal"
)

func newActionsCmd(opts *options) *cobra.Command {
	var filter journal.Filter
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List journaled actions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer services.Close()

			if services.Journal == nil {
				return errors.New("journal.dsn is not configured")
			}
			entries, err := services.Journal.Recent(ctx, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&filter.Account, "account", "", "only actions by this account")
	cmd.Flags().StringVar(&filter.Verb, "verb", "", "only actions of this verb")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum entries")
	return cmd
}
