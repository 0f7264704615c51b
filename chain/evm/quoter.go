package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"fydai/chain"
	"fydai/chain/contracts"
)

// Quoter previews pool trades through view calls.
type Quoter struct {
	reader chain.Reader
}

var _ chain.Quoter = (*Quoter)(nil)

// NewQuoter constructs a quoter on top of a contract reader.
func NewQuoter(reader chain.Reader) *Quoter {
	return &Quoter{reader: reader}
}

// SellBasePreview returns the fyDai received for selling baseIn Dai.
func (q *Quoter) SellBasePreview(ctx context.Context, pool common.Address, baseIn *big.Int) (*big.Int, error) {
	return q.preview(ctx, pool, "sellDaiPreview", baseIn)
}

// BuyBasePreview returns the fyDai paid for baseOut Dai.
func (q *Quoter) BuyBasePreview(ctx context.Context, pool common.Address, baseOut *big.Int) (*big.Int, error) {
	return q.preview(ctx, pool, "buyDaiPreview", baseOut)
}

// SellBondPreview returns the Dai received for selling bondIn fyDai.
func (q *Quoter) SellBondPreview(ctx context.Context, pool common.Address, bondIn *big.Int) (*big.Int, error) {
	return q.preview(ctx, pool, "sellFYDaiPreview", bondIn)
}

// BuyBondPreview returns the Dai paid for bondOut fyDai.
func (q *Quoter) BuyBondPreview(ctx context.Context, pool common.Address, bondOut *big.Int) (*big.Int, error) {
	return q.preview(ctx, pool, "buyFYDaiPreview", bondOut)
}

// PoolReserves returns the pool's Dai and fyDai reserves.
func (q *Quoter) PoolReserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	base, err := contracts.Pool.CallBig(ctx, q.reader, pool, "getDaiReserves")
	if err != nil {
		return nil, nil, err
	}
	bond, err := contracts.Pool.CallBig(ctx, q.reader, pool, "getFYDaiReserves")
	if err != nil {
		return nil, nil, err
	}
	return base, bond, nil
}

func (q *Quoter) preview(ctx context.Context, pool common.Address, method string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%s: amount must be non-negative", method)
	}
	out, err := contracts.Pool.CallBig(ctx, q.reader, pool, method, amount)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%s: %w", method, chain.ErrInsufficientLiquidity)
		}
		return nil, err
	}
	return out, nil
}

// Pool previews revert when reserves cannot cover the trade. Reverts reach
// the client as JSON-RPC error 3 or as an "execution reverted" message.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "insufficient")
}
