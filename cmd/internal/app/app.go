// Package app assembles the fydai services from a loaded configuration. It
// is shared by the daemon and the command line client.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	bolt "go.etcd.io/bbolt"

	"fydai/chain"
	"fydai/chain/evm"
	"fydai/cmd/internal/passphrase"
	"fydai/config"
	"fydai/observability"
	"fydai/services/authz"
	"fydai/services/execution"
	"fydai/services/journal"
	"fydai/services/series"
)

// App holds the wired services.
type App struct {
	Config     config.Config
	Session    chain.Session
	Aggregator *series.Aggregator
	Authz      *authz.Orchestrator
	Pipeline   *execution.Pipeline
	// Journal is nil unless journal.dsn is configured.
	Journal *journal.Journal

	client *ethclient.Client
	store  *series.Store
}

// Build dials the RPC endpoint and wires every service. The session is
// read-only unless the configuration names a signer key.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := evm.Dial(dialCtx, cfg.Chain.RPCURL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	session := chain.Session{
		ChainID:   cfg.ChainID(),
		Reader:    client,
		Quoter:    evm.NewQuoter(client),
		Account:   cfg.Account(),
		Contracts: cfg.Deployment(),
	}
	if cfg.HasSigner() {
		key, err := cfg.SignerKey(passphrase.NewSource(cfg.Chain.KeystorePassEnv).Get)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("load signer key: %w", err)
		}
		writer, err := evm.NewWriter(client, key, session.ChainID, evm.WithPollInterval(cfg.Chain.PollInterval.Duration))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("build writer: %w", err)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		session.Writer = writer
		session.Signer = evm.NewKeySigner(key)
		session.Account = &addr
	}
	a, err := Assemble(cfg, session, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	a.client = client
	return a, nil
}

// Assemble wires the services over an existing session.
func Assemble(cfg config.Config, session chain.Session, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Session: session}
	aggOpts := []series.Option{
		series.WithLogger(logger.With("component", "series")),
		series.WithMetrics(observability.Series()),
		series.WithCollateral(cfg.Refresh.Collateral),
		series.WithParallelism(cfg.Refresh.Parallelism),
	}
	if cfg.Store.Path != "" {
		store, err := series.OpenStore(cfg.Store.Path, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		a.store = store
		aggOpts = append(aggOpts, series.WithStore(store))
	}
	agg, err := series.NewAggregator(session, cfg.Catalog(), aggOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build aggregator: %w", err)
	}
	a.Aggregator = agg
	if cfg.Journal.DSN != "" {
		j, err := journal.Open(cfg.Journal.DSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.Journal = j
	}
	a.Authz = authz.NewOrchestrator(cfg.Strategy(),
		authz.WithLogger(logger.With("component", "authz")),
		authz.WithMetrics(observability.Authz()),
	)
	pipeOpts := []execution.Option{
		execution.WithSlippage(cfg.Slippage()),
		execution.WithCollateralType(cfg.Refresh.Collateral),
		execution.WithLogger(logger.With("component", "execution")),
		execution.WithMetrics(observability.Execution()),
	}
	if a.Journal != nil {
		pipeOpts = append(pipeOpts, execution.WithRecorder(a.Journal))
	}
	pipeline, err := execution.New(session, agg, a.Authz, pipeOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	a.Pipeline = pipeline
	return a, nil
}

// Close releases the store, the journal and the RPC connection.
func (a *App) Close() error {
	var errs []error
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
		a.Journal = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		a.store = nil
	}
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
	return errors.Join(errs...)
}
