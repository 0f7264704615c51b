package execution

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"fydai/chain"
	"fydai/native/bond"
	"fydai/native/fixedpoint"
	"fydai/services/authz"
)

var (
	// ErrCancelled is returned when authorization was declined or could not
	// be obtained. Nothing was broadcast.
	ErrCancelled = authz.ErrCancelled
	// ErrInsufficientLiquidity is returned by previews the pool cannot fill.
	ErrInsufficientLiquidity = chain.ErrInsufficientLiquidity
	// ErrTransactionFailed is wrapped by every ChainWriteError.
	ErrTransactionFailed = errors.New("execution: transaction failed")
	// ErrInvalidAmount rejects empty, malformed or non-positive amounts.
	ErrInvalidAmount = errors.New("execution: amount must be a positive decimal")
	// ErrReadOnly is returned by verbs when the session has no writer.
	ErrReadOnly = errors.New("execution: session is read-only")
	// ErrNotMatured is returned when redeeming a series before its maturity.
	ErrNotMatured = errors.New("execution: series has not matured")
	// ErrStopped is returned when tracking of a broadcast action was stopped
	// before its receipt arrived.
	ErrStopped = errors.New("execution: stopped tracking broadcast transaction")
)

// ChainWriteError reports a broadcast failure or a reverted receipt. Message
// keeps the provider's text verbatim.
type ChainWriteError struct {
	Verb    Verb
	TxHash  common.Hash
	Message string
	Err     error
}

func (e *ChainWriteError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("%s: transaction failed (%s): %s", e.Verb, e.TxHash.Hex(), e.Message)
	}
	return fmt.Sprintf("%s: transaction failed: %s", e.Verb, e.Message)
}

func (e *ChainWriteError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransactionFailed}
	}
	return []error{ErrTransactionFailed, e.Err}
}

// Verb names a user-facing action.
type Verb string

const (
	VerbPost            Verb = "post"
	VerbWithdraw        Verb = "withdraw"
	VerbBorrow          Verb = "borrow"
	VerbRepay           Verb = "repay"
	VerbAddLiquidity    Verb = "add_liquidity"
	VerbRemoveLiquidity Verb = "remove_liquidity"
	VerbSell            Verb = "sell"
	VerbBuy             Verb = "buy"
	VerbSellBond        Verb = "sell_fydai"
	VerbBuyBond         Verb = "buy_fydai"
	VerbRedeem          Verb = "redeem"
	VerbOnboard         Verb = "onboard"
)

// Verbs lists every verb in presentation order.
var Verbs = []Verb{
	VerbPost, VerbWithdraw, VerbBorrow, VerbRepay, VerbAddLiquidity,
	VerbRemoveLiquidity, VerbSell, VerbBuy, VerbSellBond, VerbBuyBond,
	VerbRedeem, VerbOnboard,
}

// ParseVerb resolves a verb name.
func ParseVerb(name string) (Verb, error) {
	for _, v := range Verbs {
		if string(v) == name {
			return v, nil
		}
	}
	return "", fmt.Errorf("execution: unknown verb %q", name)
}

// State is the lifecycle of a PendingAction.
type State int

const (
	Signing State = iota
	Broadcasting
	Confirmed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Signing:
		return "signing"
	case Broadcasting:
		return "broadcasting"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Confirmed || s == Failed || s == Cancelled
}

// Bounds are the trade parameters of an action. Limit is Expected widened by
// the slippage tolerance in Direction; it is only meaningful when Bounded.
type Bounds struct {
	Amount    fixedpoint.Value `json:"amount"`
	Expected  fixedpoint.Value `json:"expected"`
	Limit     fixedpoint.Value `json:"limit"`
	Direction bond.Direction   `json:"direction"`
	Bounded   bool             `json:"bounded"`
}

// fitsCalldata checks every amount fits a uint256 word before encoding.
func (b Bounds) fitsCalldata() error {
	if _, err := b.Amount.BigForABI(); err != nil {
		return fmt.Errorf("%w: amount: %v", ErrInvalidAmount, err)
	}
	if _, err := b.Limit.BigForABI(); err != nil {
		return fmt.Errorf("%w: limit: %v", ErrInvalidAmount, err)
	}
	return nil
}

// PendingAction is one invocation of a verb.
type PendingAction struct {
	ID        uuid.UUID   `json:"id"`
	Verb      Verb        `json:"verb"`
	Maturity  *int64      `json:"maturity,omitempty"`
	Bounds    Bounds      `json:"bounds"`
	TxHash    common.Hash `json:"txHash"`
	State     State       `json:"state"`
	Err       error       `json:"-"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Outcome is the terminal result of a verb call.
type Outcome struct {
	Action  PendingAction
	Receipt *gethtypes.Receipt
}
