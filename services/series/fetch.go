package series

import (
	"context"
	"errors"
	"math/big"

	"golang.org/x/sync/errgroup"

	"fydai/chain"
	"fydai/chain/contracts"
	"fydai/native/bond"
	"fydai/native/fixedpoint"
)

// DefaultCollateral is the collateral type debt is read against.
const DefaultCollateral = "ETH-A"

func contractsCollateral(label string) [32]byte {
	return contracts.CollateralType(label)
}

// fetch reads every field of one series concurrently and derives the
// presentation values. Account fields read as zero without an account.
func (a *Aggregator) fetch(ctx context.Context, session chain.Session, d Descriptor) (Series, error) {
	entry := placeholder(d)
	now := a.now()
	matured := d.Maturity < now.Unix()
	account := session.Account
	hasAccount := session.HasAccount()
	reader := session.Reader
	maturity := big.NewInt(d.Maturity)

	g, gctx := errgroup.WithContext(ctx)
	wad := func(dst *fixedpoint.Value, read func(context.Context) (*big.Int, error)) {
		g.Go(func() error {
			v, err := read(gctx)
			if err != nil {
				return err
			}
			*dst = fixedpoint.New(v, fixedpoint.Wad)
			return nil
		})
	}
	accountWad := func(dst *fixedpoint.Value, read func(context.Context) (*big.Int, error)) {
		if !hasAccount {
			return
		}
		wad(dst, read)
	}

	var illiquid bool
	g.Go(func() error {
		if matured {
			entry.QuotePrice = one
			return nil
		}
		quote, estimated, err := a.quote(gctx, session, d)
		if err != nil {
			return err
		}
		entry.QuotePrice = quote
		illiquid = estimated
		return nil
	})
	wad(&entry.TotalSupply, func(ctx context.Context) (*big.Int, error) {
		return contracts.Pool.CallBig(ctx, reader, d.Pool, "totalSupply")
	})
	accountWad(&entry.PoolTokens, func(ctx context.Context) (*big.Int, error) {
		return contracts.Pool.CallBig(ctx, reader, d.Pool, "balanceOf", *account)
	})
	accountWad(&entry.BondBalance, func(ctx context.Context) (*big.Int, error) {
		return contracts.Token.CallBig(ctx, reader, d.Bond, "balanceOf", *account)
	})
	accountWad(&entry.DebtBond, func(ctx context.Context) (*big.Int, error) {
		return contracts.Controller.CallBig(ctx, reader, session.Contracts.Controller, "debtFYDai", a.ilk, maturity, *account)
	})
	accountWad(&entry.DebtBase, func(ctx context.Context) (*big.Int, error) {
		return contracts.Controller.CallBig(ctx, reader, session.Contracts.Controller, "debtDai", a.ilk, maturity, *account)
	})
	accountWad(&entry.BaseAllowance, func(ctx context.Context) (*big.Int, error) {
		return contracts.Token.CallBig(ctx, reader, session.Contracts.BaseToken, "allowance", *account, d.Pool)
	})
	accountWad(&entry.BondAllowance, func(ctx context.Context) (*big.Int, error) {
		return contracts.Token.CallBig(ctx, reader, d.Bond, "allowance", *account, d.Pool)
	})
	if hasAccount {
		g.Go(func() error {
			ok, err := contracts.Pool.CallBool(gctx, reader, d.Pool, "delegated", *account, session.Contracts.Proxy)
			if err != nil {
				return err
			}
			entry.PoolDelegated = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Series{}, err
	}
	entry.Illiquid = illiquid
	derive(&entry, now)
	return entry, nil
}

// quote returns the Dai received for one fyDai. When the pool cannot fill the
// preview the marginal rate is estimated from reserves and flagged.
func (a *Aggregator) quote(ctx context.Context, session chain.Session, d Descriptor) (fixedpoint.Value, bool, error) {
	if session.Quoter == nil {
		return fixedpoint.Value{}, false, errors.New("quoter not configured")
	}
	out, err := session.Quoter.SellBondPreview(ctx, d.Pool, one.Int())
	if err == nil {
		return fixedpoint.New(out, fixedpoint.Wad), false, nil
	}
	if !errors.Is(err, chain.ErrInsufficientLiquidity) {
		return fixedpoint.Value{}, false, err
	}
	base, bondReserves, err := session.Quoter.PoolReserves(ctx, d.Pool)
	if err != nil {
		return fixedpoint.Value{}, false, err
	}
	a.metrics.RecordIlliquid()
	a.logger.Info("pool cannot fill one-unit preview, estimating from reserves", "maturity", d.Maturity)
	estimate := bond.EstimateQuote(one, fixedpoint.New(base, fixedpoint.Wad), fixedpoint.New(bondReserves, fixedpoint.Wad))
	return estimate, true, nil
}
