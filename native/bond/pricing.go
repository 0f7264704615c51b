package bond

import (
	"errors"
	"math"
	"math/big"
	"time"

	"fydai/native/fixedpoint"
)

// SecondsPerYear is the Julian year used to annualise series yields.
const SecondsPerYear = 31_557_600

// ErrMatured is returned when a yield is requested for a series at or past
// maturity. The exponent is undefined there; callers skip matured series.
var ErrMatured = errors.New("bond: series has matured")

// ErrInvalidQuote is returned for a non-positive AMM quote.
var ErrInvalidQuote = errors.New("bond: quote price must be positive")

// DefaultCollateralPremium scales the oracle spot into a market price estimate.
var DefaultCollateralPremium = fixedpoint.MustRay("1.5")

// AnnualizedYield converts the amount of base received for one bond token
// (WAD) into an annual rate: (1/price)^(year/secondsToMaturity) - 1.
//
// The result is presentation data and never gates a transaction.
func AnnualizedYield(quote fixedpoint.Value, maturity int64, now time.Time) (float64, error) {
	secs := maturity - now.Unix()
	if secs <= 0 {
		return 0, ErrMatured
	}
	if quote.Sign() <= 0 {
		return 0, ErrInvalidQuote
	}
	price := quote.Float64()
	priceRatio := 1 / price
	exponent := float64(SecondsPerYear) / float64(secs)
	return math.Pow(priceRatio, exponent) - 1, nil
}

// CollateralRatio returns collateralValue/debtValue in RAY. With no debt the
// ratio is reported as zero, which callers treat as safe.
func CollateralRatio(collateralValue, debtValue fixedpoint.Value) fixedpoint.Value {
	if debtValue.IsZero() {
		return fixedpoint.Zero(fixedpoint.Ray)
	}
	return fixedpoint.Ratio(collateralValue, debtValue)
}

// CollateralPercent expresses a RAY ratio as a whole percentage, truncated.
func CollateralPercent(ratio fixedpoint.Value) *big.Int {
	hundred := fixedpoint.New(big.NewInt(100), 0)
	return fixedpoint.MulRay(hundred, ratio).Int()
}

// CollateralPrice estimates the market price per collateral unit (RAY) from
// the vat spot price.
func CollateralPrice(spot, premium fixedpoint.Value) fixedpoint.Value {
	return fixedpoint.MulRay(premium, spot)
}

// CollateralValue prices a WAD collateral amount at a RAY unit price.
func CollateralValue(amount, price fixedpoint.Value) fixedpoint.Value {
	return fixedpoint.MulRay(amount, price)
}

// MaxSafeBorrow is the additional debt that keeps the position at or above
// the liquidation ratio: max(0, collateral/ratio - debt).
func MaxSafeBorrow(collateralValue, debtValue, liquidationRatio fixedpoint.Value) fixedpoint.Value {
	maxDebt := fixedpoint.DivRay(collateralValue, liquidationRatio)
	if debtValue.Cmp(maxDebt) >= 0 {
		return fixedpoint.Zero(maxDebt.Scale())
	}
	return maxDebt.Sub(debtValue)
}

// MinSafeCollateral is the collateral amount needed to keep
// CollateralRatio >= liquidationRatio at the given unit price.
func MinSafeCollateral(debtValue, liquidationRatio, collateralPrice fixedpoint.Value) fixedpoint.Value {
	perUnit := fixedpoint.DivRay(liquidationRatio, collateralPrice)
	return fixedpoint.MulRay(debtValue, perUnit)
}

// LiquidationPrice is the collateral unit price at which the position hits
// the liquidation ratio. Zero collateral yields the zero sentinel.
func LiquidationPrice(collateralAmount, debtValue, liquidationRatio fixedpoint.Value) fixedpoint.Value {
	if collateralAmount.IsZero() {
		return fixedpoint.Zero(fixedpoint.Ray)
	}
	scaled := fixedpoint.MulRay(debtValue, liquidationRatio)
	return fixedpoint.Ratio(scaled, collateralAmount.Rescale(scaled.Scale()))
}

// Direction selects which way a slippage tolerance widens a trade bound.
type Direction int

const (
	// Minimise lowers the bound; used when the caller receives the counter-amount.
	Minimise Direction = iota
	// Maximise raises the bound; used when the caller pays the counter-amount.
	Maximise
)

func (d Direction) String() string {
	if d == Maximise {
		return "max"
	}
	return "min"
}

// MarshalText renders the direction as "min" or "max".
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// WithSlippage widens an expected counter-amount against the caller.
func WithSlippage(expected, tolerance fixedpoint.Value, direction Direction) fixedpoint.Value {
	delta := fixedpoint.MulRay(expected, tolerance)
	if direction == Maximise {
		return expected.Add(delta)
	}
	if delta.Cmp(expected) >= 0 {
		return fixedpoint.Zero(expected.Scale())
	}
	return expected.Sub(delta)
}

// SplitLiquidity divides base used to mint pool tokens into the portion kept
// as base and the portion converted to bond tokens, pro rata to reserves.
func SplitLiquidity(baseUsed, baseReserves, bondReserves fixedpoint.Value) (base, bondPortion fixedpoint.Value) {
	total := baseReserves.Add(bondReserves)
	if total.IsZero() {
		return baseUsed, fixedpoint.Zero(baseUsed.Scale())
	}
	share := fixedpoint.Ratio(bondReserves, total)
	bondPortion = fixedpoint.MulRay(baseUsed, share)
	return baseUsed.Sub(bondPortion), bondPortion
}

// EstimateQuote derives a marginal-rate estimate of the base received for
// amount bond tokens from raw pool reserves. It is used when the AMM preview
// reports insufficient liquidity and never exceeds amount.
func EstimateQuote(amount, baseReserves, bondReserves fixedpoint.Value) fixedpoint.Value {
	if bondReserves.IsZero() {
		return fixedpoint.Zero(amount.Scale())
	}
	price := fixedpoint.Ratio(baseReserves, bondReserves)
	if price.Cmp(fixedpoint.One(fixedpoint.Ray)) > 0 {
		price = fixedpoint.One(fixedpoint.Ray)
	}
	return fixedpoint.MulRay(amount, price)
}

// PoolPercent returns 100 * share / total as a presentation float; zero when
// the pool has no supply.
func PoolPercent(share, total fixedpoint.Value) float64 {
	if total.IsZero() {
		return 0
	}
	ratio := fixedpoint.Ratio(share, total)
	return ratio.Float64() * 100
}
