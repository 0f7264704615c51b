package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// UserRejectedCode is the EIP-1193 error code a wallet returns when the user
// declines a prompt.
const UserRejectedCode = 4001

var (
	// ErrUserRejected marks a signing or transaction prompt declined by the user.
	ErrUserRejected = errors.New("chain: user rejected request")
	// ErrInsufficientLiquidity is the typed AMM response for a trade the pool
	// reserves cannot fill.
	ErrInsufficientLiquidity = errors.New("chain: insufficient liquidity")
	// ErrNoAccount is returned by write paths when no wallet account is attached.
	ErrNoAccount = errors.New("chain: no account connected")
)

// IsUserRejection reports whether err represents an explicit user decline,
// either the sentinel or a JSON-RPC error carrying code 4001.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode() == UserRejectedCode
	}
	return false
}

// Reader performs point-in-time contract view calls.
type Reader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Quoter previews AMM trades against a pool. Every preview returns
// ErrInsufficientLiquidity when the pool cannot fill the requested amount.
type Quoter interface {
	// SellBasePreview returns the bond tokens received for selling base.
	SellBasePreview(ctx context.Context, pool common.Address, baseIn *big.Int) (*big.Int, error)
	// BuyBasePreview returns the bond tokens paid to buy base.
	BuyBasePreview(ctx context.Context, pool common.Address, baseOut *big.Int) (*big.Int, error)
	// SellBondPreview returns the base received for selling bond tokens.
	SellBondPreview(ctx context.Context, pool common.Address, bondIn *big.Int) (*big.Int, error)
	// BuyBondPreview returns the base paid to buy bond tokens.
	BuyBondPreview(ctx context.Context, pool common.Address, bondOut *big.Int) (*big.Int, error)
	// PoolReserves returns the raw base and bond token balances held by the pool.
	PoolReserves(ctx context.Context, pool common.Address) (base, bond *big.Int, err error)
}

// TxRequest describes a transaction to broadcast.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// TxHandle tracks a broadcast transaction.
type TxHandle interface {
	Hash() common.Hash
	Wait(ctx context.Context) (*gethtypes.Receipt, error)
}

// Writer broadcasts transactions from the connected account.
type Writer interface {
	Send(ctx context.Context, req TxRequest) (TxHandle, error)
}

// TypedSigner produces EIP-712 signatures for the connected account.
type TypedSigner interface {
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// Clock returns the current wall-clock time.
type Clock func() time.Time

// Contracts lists the protocol deployment addresses.
type Contracts struct {
	Controller common.Address
	Treasury   common.Address
	BaseToken  common.Address
	Proxy      common.Address
	Vat        common.Address
}

// Session is the explicit connection handle threaded through the core. It
// replaces ambient provider state so tests can inject fakes.
type Session struct {
	ChainID   *big.Int
	Reader    Reader
	Quoter    Quoter
	Writer    Writer
	Signer    TypedSigner
	Account   *common.Address
	Contracts Contracts
	Clock     Clock
}

// Now returns the session clock reading, defaulting to time.Now.
func (s *Session) Now() time.Time {
	if s == nil || s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

// HasAccount reports whether a wallet account is attached.
func (s *Session) HasAccount() bool {
	return s != nil && s.Account != nil && *s.Account != (common.Address{})
}

// WithAccount returns a shallow copy bound to a different account.
func (s Session) WithAccount(account *common.Address) Session {
	if account != nil {
		addr := *account
		account = &addr
	}
	s.Account = account
	return s
}
