package main

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fydai/services/execution"
)

var verbHelp = map[execution.Verb]string{
	execution.VerbPost:            "Post ETH collateral",
	execution.VerbWithdraw:        "Withdraw ETH collateral",
	execution.VerbBorrow:          "Borrow Dai against collateral at a fixed rate",
	execution.VerbRepay:           "Repay Dai debt in a series",
	execution.VerbAddLiquidity:    "Add Dai liquidity to a series pool",
	execution.VerbRemoveLiquidity: "Remove liquidity tokens from a series pool",
	execution.VerbSell:            "Lend: sell Dai for fyDai",
	execution.VerbBuy:             "Close a loan: buy Dai with fyDai",
	execution.VerbSellBond:        "Sell fyDai for Dai",
	execution.VerbBuyBond:         "Buy fyDai with Dai",
	execution.VerbRedeem:          "Redeem matured fyDai for Dai",
	execution.VerbOnboard:         "Authorize the proxy for Dai and the controller once",
}

func needsMaturity(verb execution.Verb) bool {
	switch verb {
	case execution.VerbPost, execution.VerbWithdraw, execution.VerbOnboard:
		return false
	}
	return true
}

func needsAmount(verb execution.Verb) bool {
	return verb != execution.VerbOnboard
}

func newVerbCmds(opts *options) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(execution.Verbs))
	for _, verb := range execution.Verbs {
		cmds = append(cmds, newVerbCmd(opts, verb))
	}
	return cmds
}

func newVerbCmd(opts *options, verb execution.Verb) *cobra.Command {
	var maturity int64
	var dryRun bool
	use, nargs := strings.ReplaceAll(string(verb), "_", "-"), cobra.NoArgs
	if needsAmount(verb) {
		use, nargs = use+" AMOUNT", cobra.ExactArgs(1)
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: verbHelp[verb],
		Args:  nargs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if needsMaturity(verb) && maturity <= 0 {
				return errors.New("--maturity is required")
			}
			var amount string
			if needsAmount(verb) {
				amount = args[0]
				if _, err := execution.ParseAmount(amount); err != nil {
					return err
				}
			}
			services, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer services.Close()

			if dryRun {
				bounds, err := services.Pipeline.Preview(ctx, verb, maturity, amount)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"verb":      verb,
					"maturity":  maturity,
					"tolerance": services.Pipeline.Tolerance(),
					"bounds":    bounds,
				})
			}
			out, err := services.Pipeline.Run(ctx, verb, maturity, amount)
			if out.Action.ID != uuid.Nil {
				if perr := printJSON(cmd.OutOrStdout(), out); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
	if needsMaturity(verb) {
		cmd.Flags().Int64Var(&maturity, "maturity", 0, "series maturity as a unix timestamp")
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the slippage-bounded preview without signing")
	return cmd
}
