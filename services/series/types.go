package series

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"fydai/native/fixedpoint"
)

// Descriptor identifies a deployed series.
type Descriptor struct {
	Maturity    int64          `json:"maturity"`
	DisplayName string         `json:"displayName"`
	Pool        common.Address `json:"pool"`
	Bond        common.Address `json:"fyDai"`
}

// Series is the snapshot entry for one maturity. Values read from chain are
// WAD amounts; QuotePrice is the Dai received for one fyDai.
type Series struct {
	Maturity    int64          `json:"maturity"`
	DisplayName string         `json:"displayName"`
	PoolAddress common.Address `json:"poolAddress"`
	BondAddress common.Address `json:"fyDaiAddress"`

	TotalSupply fixedpoint.Value `json:"totalSupply"`
	PoolTokens  fixedpoint.Value `json:"poolTokens"`
	DebtBond    fixedpoint.Value `json:"debtFYDai"`
	DebtBase    fixedpoint.Value `json:"debtDai"`
	BondBalance fixedpoint.Value `json:"fyDaiBalance"`

	PoolDelegated bool             `json:"poolDelegated"`
	BaseAllowance fixedpoint.Value `json:"daiAllowance"`
	BondAllowance fixedpoint.Value `json:"fyDaiAllowance"`

	QuotePrice  fixedpoint.Value `json:"quotePrice"`
	YieldAPR    *float64         `json:"yieldAPR,omitempty"`
	PoolPercent float64          `json:"poolPercent"`
	Matured     bool             `json:"matured"`
	Illiquid    bool             `json:"illiquid"`
	RefreshedAt time.Time        `json:"refreshedAt"`
}

// Clone returns a deep copy. Fixed-point values are immutable and shared.
func (s Series) Clone() Series {
	out := s
	if s.YieldAPR != nil {
		apr := *s.YieldAPR
		out.YieldAPR = &apr
	}
	return out
}

// HasDebt reports whether the account owes fyDai on this series.
func (s Series) HasDebt() bool {
	return s.DebtBond.Sign() > 0
}

// State is the aggregator lifecycle.
type State int

const (
	// Uninitialized means no refresh has produced data yet.
	Uninitialized State = iota
	// Loading means a refresh is in flight; snapshot values may be stale.
	Loading
	// Ready means the snapshot reflects the last completed refresh.
	Ready
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Event is published after each refresh pass.
type Event struct {
	Maturities []int64
	Active     int64
	Err        error
}

func placeholder(d Descriptor) Series {
	zero := fixedpoint.Zero(fixedpoint.Wad)
	return Series{
		Maturity:      d.Maturity,
		DisplayName:   d.DisplayName,
		PoolAddress:   d.Pool,
		BondAddress:   d.Bond,
		TotalSupply:   zero,
		PoolTokens:    zero,
		DebtBond:      zero,
		DebtBase:      zero,
		BondBalance:   zero,
		BaseAllowance: zero,
		BondAllowance: zero,
		QuotePrice:    zero,
	}
}
