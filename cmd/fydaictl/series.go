package main

import (
	"github.com/spf13/cobra"

	"fydai/services/series"
)

func newSeriesCmd(opts *options) *cobra.Command {
	var maturities []int64
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "series",
		Short: "Refresh and print the series snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer services.Close()

			if err := services.Aggregator.Refresh(ctx, maturities...); err != nil {
				return err
			}
			if activeOnly {
				active, ok := services.Aggregator.Active()
				if !ok {
					return series.ErrUnknownSeries
				}
				return printJSON(cmd.OutOrStdout(), active)
			}
			return printJSON(cmd.OutOrStdout(), services.Aggregator.List())
		},
	}
	cmd.Flags().Int64SliceVar(&maturities, "maturity", nil, "limit the refresh to these maturities")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "print only the active series")
	return cmd
}

func newRefreshCmd(opts *options) *cobra.Command {
	var maturities []int64
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the snapshot cache and print its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer services.Close()

			if err := services.Aggregator.Refresh(ctx, maturities...); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"state":   services.Aggregator.State().String(),
				"tracked": len(services.Aggregator.List()),
			})
		},
	}
	cmd.Flags().Int64SliceVar(&maturities, "maturity", nil, "limit the refresh to these maturities")
	return cmd
}
