// Package chaintest provides in-memory fakes of the chain collaborators.
package chaintest

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"fydai/chain"
	"fydai/chain/contracts"
)

// Handler answers a decoded view call.
type Handler func(args []interface{}) ([]interface{}, error)

type route struct {
	to     common.Address
	method string
}

type mount struct {
	to      common.Address
	binding *contracts.Binding
}

// Reader routes view calls by address and selector to registered handlers.
type Reader struct {
	mu     sync.Mutex
	mounts []mount
	routes map[route]Handler
	calls  map[string]int
}

var _ chain.Reader = (*Reader)(nil)

// NewReader returns an empty router.
func NewReader() *Reader {
	return &Reader{routes: make(map[route]Handler), calls: make(map[string]int)}
}

// Handle registers h for method on the contract at to.
func (r *Reader) Handle(binding *contracts.Binding, to common.Address, method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	known := false
	for _, m := range r.mounts {
		if m.to == to && m.binding == binding {
			known = true
			break
		}
	}
	if !known {
		r.mounts = append(r.mounts, mount{to: to, binding: binding})
	}
	r.routes[route{to: to, method: method}] = h
}

// Return registers a constant answer.
func (r *Reader) Return(binding *contracts.Binding, to common.Address, method string, values ...interface{}) {
	r.Handle(binding, to, method, func([]interface{}) ([]interface{}, error) { return values, nil })
}

// Fail registers a failing answer.
func (r *Reader) Fail(binding *contracts.Binding, to common.Address, method string, err error) {
	r.Handle(binding, to, method, func([]interface{}) ([]interface{}, error) { return nil, err })
}

// Calls reports how often method was called across all contracts.
func (r *Reader) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// CallContract decodes msg against the bindings mounted at msg.To.
func (r *Reader) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil {
		return nil, fmt.Errorf("chaintest: call without target")
	}
	r.mu.Lock()
	var (
		handler Handler
		binding *contracts.Binding
		method  string
		args    []interface{}
	)
	for _, m := range r.mounts {
		if m.to != *msg.To {
			continue
		}
		decoded, decodedArgs, err := m.binding.MethodBySelector(msg.Data)
		if err != nil {
			continue
		}
		if h, ok := r.routes[route{to: m.to, method: decoded.Name}]; ok {
			handler, binding, method, args = h, m.binding, decoded.Name, decodedArgs
			break
		}
	}
	if handler != nil {
		r.calls[method]++
	}
	r.mu.Unlock()
	if handler == nil {
		return nil, fmt.Errorf("chaintest: no handler for call to %s", msg.To.Hex())
	}
	values, err := handler(args)
	if err != nil {
		return nil, err
	}
	return binding.EncodeResult(method, values...)
}

// PreviewFunc answers a pool preview.
type PreviewFunc func(pool common.Address, amount *big.Int) (*big.Int, error)

// Quoter is a function-backed chain.Quoter. Unset previews report
// insufficient liquidity.
type Quoter struct {
	SellBase PreviewFunc
	BuyBase  PreviewFunc
	SellBond PreviewFunc
	BuyBond  PreviewFunc
	Reserves func(pool common.Address) (*big.Int, *big.Int, error)
}

var _ chain.Quoter = (*Quoter)(nil)

// FixedRate returns a preview multiplying amount by num/den.
func FixedRate(num, den int64) PreviewFunc {
	return func(_ common.Address, amount *big.Int) (*big.Int, error) {
		out := new(big.Int).Mul(amount, big.NewInt(num))
		return out.Quo(out, big.NewInt(den)), nil
	}
}

func call(fn PreviewFunc, pool common.Address, amount *big.Int) (*big.Int, error) {
	if fn == nil {
		return nil, chain.ErrInsufficientLiquidity
	}
	return fn(pool, amount)
}

func (q *Quoter) SellBasePreview(_ context.Context, pool common.Address, amount *big.Int) (*big.Int, error) {
	return call(q.SellBase, pool, amount)
}

func (q *Quoter) BuyBasePreview(_ context.Context, pool common.Address, amount *big.Int) (*big.Int, error) {
	return call(q.BuyBase, pool, amount)
}

func (q *Quoter) SellBondPreview(_ context.Context, pool common.Address, amount *big.Int) (*big.Int, error) {
	return call(q.SellBond, pool, amount)
}

func (q *Quoter) BuyBondPreview(_ context.Context, pool common.Address, amount *big.Int) (*big.Int, error) {
	return call(q.BuyBond, pool, amount)
}

func (q *Quoter) PoolReserves(_ context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	if q.Reserves == nil {
		return new(big.Int), new(big.Int), nil
	}
	return q.Reserves(pool)
}

// Writer records every request and answers with a canned receipt.
type Writer struct {
	mu       sync.Mutex
	requests []chain.TxRequest
	// Status is the receipt status returned by Wait.
	Status uint64
	// SendErr fails Send when set.
	SendErr error
	// Block, when non-nil, holds Wait until closed or the context ends.
	Block chan struct{}
}

var _ chain.Writer = (*Writer)(nil)

// NewWriter returns a writer whose receipts succeed.
func NewWriter() *Writer {
	return &Writer{Status: gethtypes.ReceiptStatusSuccessful}
}

// Send records req.
func (w *Writer) Send(ctx context.Context, req chain.TxRequest) (chain.TxHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.SendErr != nil {
		return nil, w.SendErr
	}
	w.requests = append(w.requests, req)
	hash := crypto.Keccak256Hash(req.To.Bytes(), req.Data, big.NewInt(int64(len(w.requests))).Bytes())
	return &handle{hash: hash, status: w.Status, block: w.Block}, nil
}

// Sent returns a copy of the recorded requests.
func (w *Writer) Sent() []chain.TxRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]chain.TxRequest, len(w.requests))
	copy(out, w.requests)
	return out
}

// SentTo returns the recorded requests addressed to to.
func (w *Writer) SentTo(to common.Address) []chain.TxRequest {
	var out []chain.TxRequest
	for _, req := range w.Sent() {
		if req.To == to {
			out = append(out, req)
		}
	}
	return out
}

type handle struct {
	hash   common.Hash
	status uint64
	block  chan struct{}
}

func (h *handle) Hash() common.Hash { return h.hash }

func (h *handle) Wait(ctx context.Context) (*gethtypes.Receipt, error) {
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &gethtypes.Receipt{TxHash: h.hash, Status: h.status, BlockNumber: big.NewInt(1)}, nil
}

// Signer is a scripted chain.TypedSigner.
type Signer struct {
	mu    sync.Mutex
	calls []apitypes.TypedData
	// Fn overrides the response for the n-th call (zero based).
	Fn func(n int, data apitypes.TypedData) ([]byte, error)
}

var _ chain.TypedSigner = (*Signer)(nil)

// Signature is the canned signature returned when Fn is unset.
var Signature = bytes.Repeat([]byte{0x11}, 65)

// SignTypedData records data and answers through Fn.
func (s *Signer) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, data)
	fn := s.Fn
	s.mu.Unlock()
	if fn != nil {
		return fn(n, data)
	}
	return append([]byte(nil), Signature...), nil
}

// Calls returns the typed data passed so far.
func (s *Signer) Calls() []apitypes.TypedData {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]apitypes.TypedData, len(s.calls))
	copy(out, s.calls)
	return out
}
