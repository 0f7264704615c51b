package app

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"fydai/chain"
	"fydai/chain/chaintest"
	"fydai/config"
	"fydai/services/authz"
	"fydai/services/execution"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Chain: config.ChainConfig{ChainID: 1, Account: "0x00000000000000000000000000000000000a11ce"},
		Contracts: config.ContractsConfig{
			Controller: "0x0000000000000000000000000000000000000c01",
			Treasury:   "0x0000000000000000000000000000000000000c02",
			Dai:        "0x0000000000000000000000000000000000000da1",
			Proxy:      "0x0000000000000000000000000000000000000b0b",
		},
		Series: []config.SeriesConfig{{
			Maturity: 1609459199,
			Pool:     "0x0000000000000000000000000000000000000b01",
			FYDai:    "0x0000000000000000000000000000000000000f01",
		}},
		Refresh:   config.RefreshConfig{Collateral: "ETH-A", Parallelism: 2},
		Execution: config.ExecutionConfig{Slippage: "0.02", Strategy: "approve"},
		Store:     config.StoreConfig{Path: filepath.Join(t.TempDir(), "snapshot.db")},
	}
}

func TestAssembleWiresServices(t *testing.T) {
	cfg := testConfig(t)
	session := chain.Session{
		ChainID:   big.NewInt(1),
		Reader:    chaintest.NewReader(),
		Quoter:    &chaintest.Quoter{},
		Account:   cfg.Account(),
		Contracts: cfg.Deployment(),
	}
	a, err := Assemble(cfg, session, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	defer a.Close()

	if a.Authz.Strategy() != authz.ApprovalOnly {
		t.Fatalf("unexpected strategy %s", a.Authz.Strategy())
	}
	if got := a.Pipeline.Tolerance().String(); got != "0.02" {
		t.Fatalf("unexpected tolerance %s", got)
	}
	d, ok := a.Aggregator.Descriptor(1609459199)
	if !ok || d.Pool != common.HexToAddress("0x0000000000000000000000000000000000000b01") {
		t.Fatalf("catalog not loaded: %+v", d)
	}
	_, err = a.Pipeline.Post(context.Background(), "1")
	if !errors.Is(err, execution.ErrReadOnly) {
		t.Fatalf("expected read-only pipeline, got %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestAssembleRejectsMissingProxy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = ""
	session := chain.Session{ChainID: big.NewInt(1), Reader: chaintest.NewReader(), Quoter: &chaintest.Quoter{}}
	if _, err := Assemble(cfg, session, nil); err == nil {
		t.Fatalf("expected missing proxy to fail")
	}
}

func TestAssembleJournalsActions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = ""
	cfg.Journal.DSN = filepath.Join(t.TempDir(), "journal.db")
	session := chain.Session{
		ChainID:   big.NewInt(1),
		Reader:    chaintest.NewReader(),
		Quoter:    &chaintest.Quoter{},
		Account:   cfg.Account(),
		Contracts: cfg.Deployment(),
	}
	a, err := Assemble(cfg, session, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	defer a.Close()
	if a.Journal == nil {
		t.Fatalf("expected journal to be opened")
	}
}
