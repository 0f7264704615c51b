package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"fydai/cmd/internal/app"
	"fydai/config"
	"fydai/observability/logging"
	"fydai/services/authz"
)

type options struct {
	configPath string
	strategy   string
	timeout    time.Duration
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "fydaictl",
		Short:         "Inspect fyDai series and submit lending actions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "fydai.yaml", "path to the config file (yaml or toml)")
	flags.StringVar(&opts.strategy, "strategy", "", "override the authorization strategy (sign or approve)")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall deadline for the command")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(newSeriesCmd(opts), newRefreshCmd(opts), newActionsCmd(opts))
	for _, cmd := range newVerbCmds(opts) {
		root.AddCommand(cmd)
	}
	return root
}

// open loads the configuration and builds the services for one command.
func (o *options) open(cmd *cobra.Command) (*app.App, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if o.strategy != "" {
		if _, err := authz.ParseStrategy(o.strategy); err != nil {
			return nil, nil, nil, err
		}
		cfg.Execution.Strategy = o.strategy
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if o.verbose {
		logger = logging.Setup("fydaictl", cfg.Environment, logging.WithLevel("debug"), logging.WithWriter(cmd.ErrOrStderr()))
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	services, err := app.Build(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return services, ctx, cancel, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
