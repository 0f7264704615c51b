package bond

import (
	"errors"
	"math"
	"testing"
	"time"

	"fydai/native/fixedpoint"
)

func TestAnnualizedYieldNinetyDays(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	maturity := now.Add(90 * 24 * time.Hour).Unix()
	apr, err := AnnualizedYield(fixedpoint.MustWad("0.98"), maturity, now)
	if err != nil {
		t.Fatalf("yield: %v", err)
	}
	expected := math.Pow(1/0.98, float64(SecondsPerYear)/float64(90*24*3600)) - 1
	if math.Abs(apr-expected) > 1e-12 {
		t.Fatalf("expected %f, got %f", expected, apr)
	}
	if apr < 0.08 || apr > 0.09 {
		t.Fatalf("yield out of expected band: %f", apr)
	}
}

func TestAnnualizedYieldMatured(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	if _, err := AnnualizedYield(fixedpoint.MustWad("0.98"), now.Unix(), now); !errors.Is(err, ErrMatured) {
		t.Fatalf("expected ErrMatured at maturity, got %v", err)
	}
	if _, err := AnnualizedYield(fixedpoint.MustWad("0.98"), now.Unix()-60, now); !errors.Is(err, ErrMatured) {
		t.Fatalf("expected ErrMatured after maturity, got %v", err)
	}
}

func TestCollateralRatioZeroConventions(t *testing.T) {
	if r := CollateralRatio(fixedpoint.Zero(fixedpoint.Wad), fixedpoint.MustWad("100")); !r.IsZero() {
		t.Fatalf("zero collateral should give zero ratio, got %s", r)
	}
	if r := CollateralRatio(fixedpoint.MustWad("100"), fixedpoint.Zero(fixedpoint.Wad)); !r.IsZero() {
		t.Fatalf("zero debt should give zero ratio, got %s", r)
	}
	r := CollateralRatio(fixedpoint.MustWad("300"), fixedpoint.MustWad("200"))
	if r.Cmp(fixedpoint.MustRay("1.5")) != 0 {
		t.Fatalf("expected 1.5 ray, got %s", r)
	}
	if pct := CollateralPercent(r); pct.Int64() != 150 {
		t.Fatalf("expected 150%%, got %s", pct)
	}
}

func TestMaxSafeBorrowNeverNegative(t *testing.T) {
	ratio := fixedpoint.MustRay("1.5")
	got := MaxSafeBorrow(fixedpoint.MustWad("300"), fixedpoint.MustWad("50"), ratio)
	if got.Cmp(fixedpoint.MustWad("150")) != 0 {
		t.Fatalf("expected 150, got %s", got)
	}
	under := MaxSafeBorrow(fixedpoint.MustWad("300"), fixedpoint.MustWad("250"), ratio)
	if !under.IsZero() {
		t.Fatalf("expected zero headroom, got %s", under)
	}
}

func TestMinSafeCollateralInvertsMaxBorrow(t *testing.T) {
	ratio := fixedpoint.MustRay("1.5")
	price := fixedpoint.MustRay("200")
	coll := MinSafeCollateral(fixedpoint.MustWad("400"), ratio, price)
	if coll.Cmp(fixedpoint.MustWad("3")) != 0 {
		t.Fatalf("expected 3 units of collateral, got %s", coll)
	}
	value := CollateralValue(coll, price)
	if CollateralRatio(value, fixedpoint.MustWad("400")).Cmp(ratio) < 0 {
		t.Fatalf("min safe collateral should satisfy the liquidation ratio")
	}
}

func TestLiquidationPrice(t *testing.T) {
	ratio := fixedpoint.MustRay("1.5")
	if p := LiquidationPrice(fixedpoint.Zero(fixedpoint.Wad), fixedpoint.MustWad("100"), ratio); !p.IsZero() {
		t.Fatalf("expected zero sentinel, got %s", p)
	}
	p := LiquidationPrice(fixedpoint.MustWad("2"), fixedpoint.MustWad("300"), ratio)
	if p.Cmp(fixedpoint.MustRay("225")) != 0 {
		t.Fatalf("expected 225, got %s", p)
	}
}

func TestWithSlippageDirection(t *testing.T) {
	expected := fixedpoint.MustWad("1000")
	tol := fixedpoint.MustRay("0.01")

	minOut := WithSlippage(expected, tol, Minimise)
	if minOut.Cmp(fixedpoint.MustWad("990")) != 0 || minOut.Cmp(expected) >= 0 {
		t.Fatalf("minimised bound should be strictly below expected, got %s", minOut)
	}
	maxIn := WithSlippage(expected, tol, Maximise)
	if maxIn.Cmp(fixedpoint.MustWad("1010")) != 0 || maxIn.Cmp(expected) <= 0 {
		t.Fatalf("maximised bound should be strictly above expected, got %s", maxIn)
	}
}

func TestSplitLiquidity(t *testing.T) {
	base, bondPart := SplitLiquidity(fixedpoint.MustWad("100"), fixedpoint.MustWad("750"), fixedpoint.MustWad("250"))
	if bondPart.Cmp(fixedpoint.MustWad("25")) != 0 {
		t.Fatalf("expected 25 bond split, got %s", bondPart)
	}
	if base.Cmp(fixedpoint.MustWad("75")) != 0 {
		t.Fatalf("expected 75 base split, got %s", base)
	}
}

func TestEstimateQuoteCapsAtPar(t *testing.T) {
	est := EstimateQuote(fixedpoint.MustWad("10"), fixedpoint.MustWad("980"), fixedpoint.MustWad("1000"))
	if est.Cmp(fixedpoint.MustWad("9.8")) != 0 {
		t.Fatalf("expected 9.8, got %s", est)
	}
	capped := EstimateQuote(fixedpoint.MustWad("10"), fixedpoint.MustWad("2000"), fixedpoint.MustWad("1000"))
	if capped.Cmp(fixedpoint.MustWad("10")) != 0 {
		t.Fatalf("estimate should not exceed par, got %s", capped)
	}
	if z := EstimateQuote(fixedpoint.MustWad("10"), fixedpoint.MustWad("1"), fixedpoint.Zero(fixedpoint.Wad)); !z.IsZero() {
		t.Fatalf("expected zero with empty bond reserves")
	}
}

func TestPoolPercent(t *testing.T) {
	if pct := PoolPercent(fixedpoint.MustWad("5"), fixedpoint.Zero(fixedpoint.Wad)); pct != 0 {
		t.Fatalf("expected zero for empty pool, got %f", pct)
	}
	if pct := PoolPercent(fixedpoint.MustWad("5"), fixedpoint.MustWad("200")); math.Abs(pct-2.5) > 1e-9 {
		t.Fatalf("expected 2.5%%, got %f", pct)
	}
}
