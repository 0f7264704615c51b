package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fydai/chain"
)

const defaultPollInterval = 2 * time.Second

// Writer signs transactions with a local key and broadcasts them.
type Writer struct {
	client       Client
	key          *ecdsa.PrivateKey
	from         common.Address
	signer       gethtypes.Signer
	pollInterval time.Duration

	// mu serialises nonce assignment through broadcast.
	mu        sync.Mutex
	nextNonce uint64
	haveNonce bool
}

var _ chain.Writer = (*Writer)(nil)

// WriterOption customises the writer.
type WriterOption func(*Writer)

// WithPollInterval overrides how often receipts are polled while waiting.
func WithPollInterval(interval time.Duration) WriterOption {
	return func(w *Writer) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// NewWriter constructs a writer bound to chainID.
func NewWriter(client Client, key *ecdsa.PrivateKey, chainID *big.Int, opts ...WriterOption) (*Writer, error) {
	if client == nil {
		return nil, fmt.Errorf("evm client required")
	}
	if key == nil {
		return nil, fmt.Errorf("signing key required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id required")
	}
	w := &Writer{
		client:       client,
		key:          key,
		from:         gethcrypto.PubkeyToAddress(key.PublicKey),
		signer:       gethtypes.LatestSignerForChainID(chainID),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// From returns the sending account.
func (w *Writer) From() common.Address { return w.from }

// Send signs and broadcasts req. Gas is estimated when the request leaves it unset.
// Concurrent sends receive distinct, increasing nonces.
func (w *Writer) Send(ctx context.Context, req chain.TxRequest) (chain.TxHandle, error) {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	nonce, err := w.client.PendingNonceAt(ctx, w.from)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	// The node may not yet count a transaction this writer just sent.
	if w.haveNonce && w.nextNonce > nonce {
		nonce = w.nextNonce
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		to := req.To
		gasLimit, err = w.client.EstimateGas(ctx, ethereum.CallMsg{From: w.from, To: &to, Value: value, Data: req.Data})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
	}
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	signed, err := gethtypes.SignTx(tx, w.signer, w.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	w.nextNonce, w.haveNonce = nonce+1, true
	return &txHandle{client: w.client, hash: signed.Hash(), interval: w.pollInterval}, nil
}

type txHandle struct {
	client   Client
	hash     common.Hash
	interval time.Duration
}

func (h *txHandle) Hash() common.Hash { return h.hash }

// Wait polls for the receipt until it is mined or ctx ends. A mined receipt is
// returned regardless of status; callers inspect Status.
func (h *txHandle) Wait(ctx context.Context) (*gethtypes.Receipt, error) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		receipt, err := h.client.TransactionReceipt(ctx, h.hash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("fetch receipt %s: %w", h.hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
