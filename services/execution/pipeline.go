package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fydai/chain"
	"fydai/chain/contracts"
	"fydai/chain/permit"
	"fydai/native/bond"
	"fydai/native/fixedpoint"
	"fydai/observability"
	"fydai/observability/logging"
	"fydai/services/authz"
	"fydai/services/series"
)

// Gas ceilings for proxy calls whose estimate is unreliable before the
// authorizations land.
const (
	gasBorrow    = 400_000
	gasRepay     = 350_000
	gasLiquidity = 1_000_000
)

// DefaultSlippage is the tolerance applied when none is configured.
var DefaultSlippage = fixedpoint.MustRay("0.005")

// SeriesSource resolves series addresses and refreshes them after a
// confirmed action. *series.Aggregator satisfies it.
type SeriesSource interface {
	Descriptor(maturity int64) (series.Descriptor, bool)
	Refresh(ctx context.Context, maturities ...int64) error
}

// Resolver obtains authorization tokens. *authz.Orchestrator satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, set authz.Set) (authz.Result, error)
}

// Recorder keeps finished actions. *journal.Journal satisfies it.
type Recorder interface {
	Record(ctx context.Context, account string, action PendingAction) error
}

// Pipeline turns verbs into a single batched proxy transaction.
type Pipeline struct {
	session   chain.Session
	series    SeriesSource
	resolver  Resolver
	signer    *permit.Signer
	tolerance fixedpoint.Value
	ilk       [32]byte
	logger    *slog.Logger
	metrics   *observability.ExecutionMetrics
	tracer    trace.Tracer
	tracker   *Tracker
	recorder  Recorder
}

// Option customises the pipeline.
type Option func(*Pipeline)

// WithSlippage sets the tolerance used to widen trade bounds.
func WithSlippage(tolerance fixedpoint.Value) Option {
	return func(p *Pipeline) { p.tolerance = tolerance.Rescale(fixedpoint.Ray) }
}

// WithCollateralType selects the vault collateral, e.g. "ETH-A".
func WithCollateralType(label string) Option {
	return func(p *Pipeline) { p.ilk = contracts.CollateralType(label) }
}

// WithRecorder journals every finished action.
func WithRecorder(recorder Recorder) Option {
	return func(p *Pipeline) { p.recorder = recorder }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records action outcomes.
func WithMetrics(metrics *observability.ExecutionMetrics) Option {
	return func(p *Pipeline) { p.metrics = metrics }
}

// WithTracer overrides the tracer spans are started from.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithTracker shares a tracker between pipelines.
func WithTracker(tracker *Tracker) Option {
	return func(p *Pipeline) {
		if tracker != nil {
			p.tracker = tracker
		}
	}
}

// New builds a pipeline over session.
func New(session chain.Session, source SeriesSource, resolver Resolver, opts ...Option) (*Pipeline, error) {
	if source == nil {
		return nil, errors.New("execution: series source required")
	}
	if resolver == nil {
		return nil, errors.New("execution: resolver required")
	}
	if session.Reader == nil || session.Quoter == nil {
		return nil, errors.New("execution: session needs a reader and a quoter")
	}
	if session.Contracts.Proxy == (common.Address{}) {
		return nil, errors.New("execution: proxy address required")
	}
	p := &Pipeline{
		session:   session,
		series:    source,
		resolver:  resolver,
		tolerance: DefaultSlippage,
		ilk:       contracts.CollateralType(series.DefaultCollateral),
		logger:    slog.Default(),
		tracer:    otel.Tracer("fydai/execution"),
		tracker:   NewTracker(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.signer = permit.NewSigner(&p.session)
	return p, nil
}

// Tracker exposes the action tracker.
func (p *Pipeline) Tracker() *Tracker { return p.tracker }

// Tolerance returns the configured slippage tolerance.
func (p *Pipeline) Tolerance() fixedpoint.Value { return p.tolerance }

// ParseAmount normalises a human-entered decimal into WAD.
func ParseAmount(amount string) (fixedpoint.Value, error) {
	v, err := fixedpoint.Parse(strings.TrimSpace(amount), fixedpoint.Wad)
	if err != nil {
		return fixedpoint.Value{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if v.Sign() <= 0 {
		return fixedpoint.Value{}, ErrInvalidAmount
	}
	return v, nil
}

func (p *Pipeline) descriptor(maturity int64) (series.Descriptor, error) {
	d, ok := p.series.Descriptor(maturity)
	if !ok {
		return series.Descriptor{}, fmt.Errorf("%w: %d", series.ErrUnknownSeries, maturity)
	}
	return d, nil
}

func (p *Pipeline) matured(d series.Descriptor) bool {
	return d.Maturity <= p.session.Now().Unix()
}

// tradable rejects AMM trades against a matured series.
func (p *Pipeline) tradable(d series.Descriptor) error {
	if p.matured(d) {
		return fmt.Errorf("%w: %d", bond.ErrMatured, d.Maturity)
	}
	return nil
}

type previewFunc func(ctx context.Context, pool common.Address, amount *big.Int) (*big.Int, error)

func (p *Pipeline) bounded(ctx context.Context, verb Verb, preview previewFunc, pool common.Address, amount fixedpoint.Value, direction bond.Direction) (Bounds, error) {
	out, err := preview(ctx, pool, amount.Int())
	if err != nil {
		return Bounds{}, fmt.Errorf("%s preview: %w", verb, err)
	}
	expected := fixedpoint.New(out, fixedpoint.Wad)
	return Bounds{
		Amount:    amount,
		Expected:  expected,
		Limit:     bond.WithSlippage(expected, p.tolerance, direction),
		Direction: direction,
		Bounded:   true,
	}, nil
}

// bounds computes the trade parameters of verb without side effects.
func (p *Pipeline) bounds(ctx context.Context, verb Verb, d series.Descriptor, amount fixedpoint.Value) (Bounds, error) {
	q := p.session.Quoter
	switch verb {
	case VerbSell:
		return p.bounded(ctx, verb, q.SellBasePreview, d.Pool, amount, bond.Minimise)
	case VerbBuy, VerbBorrow:
		return p.bounded(ctx, verb, q.BuyBasePreview, d.Pool, amount, bond.Maximise)
	case VerbSellBond:
		return p.bounded(ctx, verb, q.SellBondPreview, d.Pool, amount, bond.Minimise)
	case VerbBuyBond:
		return p.bounded(ctx, verb, q.BuyBondPreview, d.Pool, amount, bond.Maximise)
	case VerbAddLiquidity:
		base, bondReserves, err := q.PoolReserves(ctx, d.Pool)
		if err != nil {
			return Bounds{}, fmt.Errorf("%s reserves: %w", verb, err)
		}
		_, portion := bond.SplitLiquidity(amount, fixedpoint.New(base, fixedpoint.Wad), fixedpoint.New(bondReserves, fixedpoint.Wad))
		if portion.IsZero() {
			return Bounds{Amount: amount, Expected: portion, Limit: portion, Direction: bond.Maximise, Bounded: true}, nil
		}
		b, err := p.bounded(ctx, verb, q.SellBasePreview, d.Pool, portion, bond.Maximise)
		if err != nil {
			return Bounds{}, err
		}
		b.Amount = amount
		return b, nil
	case VerbRedeem:
		// Matured fyDai redeems for at least its face value in Dai.
		return Bounds{Amount: amount, Expected: amount}, nil
	case VerbRepay:
		b := Bounds{Amount: amount}
		if p.matured(d) {
			return b, nil
		}
		// Informational: repayment goes to the treasury, not the pool.
		out, err := q.SellBasePreview(ctx, d.Pool, amount.Int())
		if err != nil {
			p.logger.Info("repay preview unavailable", "maturity", d.Maturity, "error", err)
			return b, nil
		}
		b.Expected = fixedpoint.New(out, fixedpoint.Wad)
		return b, nil
	default:
		return Bounds{Amount: amount}, nil
	}
}

// Preview returns the bounds verb would submit for amount. Maturity is
// ignored for post, withdraw and onboard; amount is ignored for onboard.
func (p *Pipeline) Preview(ctx context.Context, verb Verb, maturity int64, amount string) (Bounds, error) {
	if verb == VerbOnboard {
		return Bounds{}, nil
	}
	amt, err := ParseAmount(amount)
	if err != nil {
		return Bounds{}, err
	}
	if verb == VerbPost || verb == VerbWithdraw {
		return Bounds{Amount: amt}, nil
	}
	d, err := p.descriptor(maturity)
	if err != nil {
		return Bounds{}, err
	}
	switch verb {
	case VerbSell, VerbBuy, VerbSellBond, VerbBuyBond, VerbBorrow, VerbAddLiquidity:
		if err := p.tradable(d); err != nil {
			return Bounds{}, err
		}
	case VerbRedeem:
		if !p.matured(d) {
			return Bounds{}, fmt.Errorf("%w: %d", ErrNotMatured, d.Maturity)
		}
	}
	return p.bounds(ctx, verb, d, amt)
}

// plan is a fully priced action waiting for authorization.
type plan struct {
	verb     Verb
	maturity *int64
	bounds   Bounds
	// to overrides the proxy as the call target.
	to       common.Address
	value    *big.Int
	gasLimit uint64
	reqs     []authz.Requirement
	// optional plans only carry signatures; nothing is broadcast when every
	// token resolved to the placeholder.
	optional bool
	encode   func(authz.Result) ([]byte, error)
}

// prepare normalises amount, resolves the series and prices the trade. It
// never touches the write path.
func (p *Pipeline) prepare(ctx context.Context, verb Verb, maturity int64, amount string) (common.Address, series.Descriptor, Bounds, error) {
	user, err := p.account()
	if err != nil {
		return common.Address{}, series.Descriptor{}, Bounds{}, err
	}
	bounds, err := p.Preview(ctx, verb, maturity, amount)
	if err != nil {
		return common.Address{}, series.Descriptor{}, Bounds{}, err
	}
	if err := bounds.fitsCalldata(); err != nil {
		return common.Address{}, series.Descriptor{}, Bounds{}, err
	}
	d, _ := p.series.Descriptor(maturity)
	return user, d, bounds, nil
}

// Post deposits amount ETH as collateral into the account's vault.
func (p *Pipeline) Post(ctx context.Context, amount string) (Outcome, error) {
	user, _, bounds, err := p.prepare(ctx, VerbPost, 0, amount)
	if err != nil {
		return Outcome{}, err
	}
	return p.execute(ctx, plan{
		verb:   VerbPost,
		bounds: bounds,
		value:  bounds.Amount.Int(),
		encode: func(authz.Result) ([]byte, error) {
			return contracts.Proxy.Pack("post", user)
		},
	})
}

// Withdraw returns amount ETH of collateral to the account.
func (p *Pipeline) Withdraw(ctx context.Context, amount string) (Outcome, error) {
	user, _, bounds, err := p.prepare(ctx, VerbWithdraw, 0, amount)
	if err != nil {
		return Outcome{}, err
	}
	return p.execute(ctx, plan{
		verb:   VerbWithdraw,
		bounds: bounds,
		reqs:   []authz.Requirement{p.controllerDelegation(user)},
		encode: func(r authz.Result) ([]byte, error) {
			return contracts.Proxy.Pack("withdrawWithSignature", user, bounds.Amount.Int(), r.Token(reqController))
		},
	})
}

// Borrow draws amount Dai against the vault, paying at most the bounded
// amount of fyDai debt.
func (p *Pipeline) Borrow(ctx context.Context, maturity int64, amount string) (Outcome, error) {
	user, d, bounds, err := p.prepare(ctx, VerbBorrow, maturity, amount)
	if err != nil {
		return Outcome{}, err
	}
	return p.execute(ctx, plan{
		verb:     VerbBorrow,
		maturity: &maturity,
		bounds:   bounds,
		gasLimit: gasBorrow,
		reqs:     []authz.Requirement{p.controllerDelegation(user)},
		encode: func(r authz.Result) ([]byte, error) {
			return contracts.Proxy.Pack("borrowDaiForMaximumFYDaiWithSignature",
				d.Pool, p.ilk, big.NewInt(maturity), user, bounds.Amount.Int(), bounds.Limit.Int(), r.Token(reqController))
		},
	})
}

// Repay pays amount Dai of debt on the series.
func (p *Pipeline) Repay(ctx context.Context, maturity int64, amount string) (Outcome, error) {
	user, _, bounds, err := p.prepare(ctx, VerbRepay, maturity, amount)
	if err != nil {
		return Outcome{}, err
	}
	return p.execute(ctx, plan{
		verb:     VerbRepay,
		maturity: &maturity,
		bounds:   bounds,
		gasLimit: gasRepay,
		reqs: []authz.Requirement{
			p.controllerDelegation(user),
			p.basePermit(user, p.session.Contracts.Treasury),
		},
		encode: func(r authz.Result) ([]byte, error) {
			return contracts.Proxy.Pack("repayDaiWithSignature",
				p.ilk, big.NewInt(maturity), user, bounds.Amount.Int(), r.Token(reqBase), r.Token(reqController))
		},
	})
}

// AddLiquidity provides amount Dai to the pool, borrowing the fyDai share.
func (p *Pipeline) AddLiquidity(ctx context.Context, maturity int64, amount string) (Outcome, error) {
	user, d, bounds, err := p.prepare(ctx, VerbAddLiquidity, maturity, amount)
	if err != nil {
		return Outcome{}, err
	}
	proxy := p.session.Contracts.Proxy
	return p.execute(ctx, plan{
		verb:     VerbAddLiquidity,
		maturity: &maturity,
		bounds:   bounds,
		gasLimit: gasLiquidity,
		reqs: []authz.Requirement{
			p.controllerDelegation(user),
			p.basePermit(user, proxy),
			p.bondPermit(user, d.Bond, proxy),
		},
		encode: func(r authz.Result) ([]byte, error) {
			return contracts.Proxy.Pack("addLiquidityWithSignature",
				d.Pool, bounds.Amount.Int(), bounds.Limit.Int(), r.Token(reqBase), r.Token(reqBond), r.Token(reqController))
		},
	})
}

// RemoveLiquidity burns tokens pool tokens. Before maturity the fyDai share
// is sold back into the pool; after maturity it is redeemed.
func (p *Pipeline) RemoveLiquidity(ctx context.Context, maturity int64, tokens string) (Outcome, error) {
	user, d, bounds, err := p.prepare(ctx, VerbRemoveLiquidity, maturity, tokens)
	if err != nil {
		return Outcome{}, err
	}
	mature, err := contracts.Token.CallBool(ctx, p.session.Reader, d.Bond, "isMature")
	if err != nil {
		return Outcome{}, fmt.Errorf("read maturity state: %w", err)
	}
	return p.execute(ctx, plan{
		verb:     VerbRemoveLiquidity,
		maturity: &maturity,
		bounds:   bounds,
		gasLimit: gasLiquidity,
		reqs: []authz.Requirement{
			p.controllerDelegation(user),
			p.poolDelegation(user, d.Pool),
		},
		encode: func(r authz.Result) ([]byte, error) {
			if mature {
				return contracts.Proxy.Pack("removeLiquidityMatureWithSignature",
					d.Pool, bounds.Amount.Int(), r.Token(reqController), r.Token(reqPool))
			}
			zero := new(big.Int)
			return contracts.Proxy.Pack("removeLiquidityEarlyDaiPoolWithSignature",
				d.Pool, bounds.Amount.Int(), zero, zero, r.Token(reqController), r.Token(reqPool))
		},
	})
}

// Sell lends: amount Dai in, at least the bounded fyDai out.
func (p *Pipeline) Sell(ctx context.Context, maturity int64, amount string) (Outcome, error) {
	user, d, bounds, err := p.prepare(ctx, VerbSell, maturity, amount)
	if err != nil {
		return Outcome{}, err
	}
	return p.trade(ctx, VerbSell, maturity, bounds, "sellDaiWithSignature", d.Pool, user,
		p.poolDelegation(user, d.Pool), p.basePermit(user, d.Pool))
}

// Buy closes a lending position: amount Dai out, at most the bounded fyDai in.
func (p *Pipeline) Buy(ctx context.Context, maturity int64, amount string) (Outcome, error) {
	user, d, bounds, err := p.prepare(ctx, VerbBuy, maturity, amount)
	if err != nil {
		return Outcome{}, err
	}
	return p.trade(ctx, VerbBuy, maturity, bounds, "buyDaiWithSignature", d.Pool, user,
		p.poolDelegation(user, d.Pool), p.bondPermit(user, d.Bond, d.Pool))
}

// SellBond sells amount fyDai for at least the bounded Dai.
func (p *Pipeline) SellBond(ctx context.Context, maturity int64, amount string) (Outcome, error) {
	user, d, bounds, err := p.prepare(ctx, VerbSellBond, maturity, amount)
	if err != nil {
		return Outcome{}, err
	}
	return p.trade(ctx, VerbSellBond, maturity, bounds, "sellFYDaiWithSignature", d.Pool, user,
		p.poolDelegation(user, d.Pool), p.bondPermit(user, d.Bond, d.Pool))
}

// BuyBond buys amount fyDai for at most the bounded Dai.
func (p *Pipeline) BuyBond(ctx context.Context, maturity int64, amount string) (Outcome, error) {
	user, d, bounds, err := p.prepare(ctx, VerbBuyBond, maturity, amount)
	if err != nil {
		return Outcome{}, err
	}
	return p.trade(ctx, VerbBuyBond, maturity, bounds, "buyFYDaiWithSignature", d.Pool, user,
		p.poolDelegation(user, d.Pool), p.basePermit(user, d.Pool))
}

// trade submits one of the pool swaps. They share the argument layout
// (pool, to, amount, limit, tokenSig, poolSig).
func (p *Pipeline) trade(ctx context.Context, verb Verb, maturity int64, bounds Bounds, method string, pool, user common.Address, delegation, tokenReq authz.Requirement) (Outcome, error) {
	return p.execute(ctx, plan{
		verb:     verb,
		maturity: &maturity,
		bounds:   bounds,
		reqs:     []authz.Requirement{delegation, tokenReq},
		encode: func(r authz.Result) ([]byte, error) {
			return contracts.Proxy.Pack(method, pool, user, bounds.Amount.Int(), bounds.Limit.Int(), r.Token(tokenReq.ID), r.Token(reqPool))
		},
	})
}

// Redeem swaps amount matured fyDai for Dai. The holder calls the fyDai
// contract directly, so no authorization is needed.
func (p *Pipeline) Redeem(ctx context.Context, maturity int64, amount string) (Outcome, error) {
	user, d, bounds, err := p.prepare(ctx, VerbRedeem, maturity, amount)
	if err != nil {
		return Outcome{}, err
	}
	return p.execute(ctx, plan{
		verb:     VerbRedeem,
		maturity: &maturity,
		bounds:   bounds,
		to:       d.Bond,
		encode: func(authz.Result) ([]byte, error) {
			return contracts.Token.Pack("redeem", user, user, bounds.Amount.Int())
		},
	})
}

// Onboard grants the proxy the account's Dai allowance and controller
// delegation in one call, ahead of any other verb.
func (p *Pipeline) Onboard(ctx context.Context) (Outcome, error) {
	user, err := p.account()
	if err != nil {
		return Outcome{}, err
	}
	proxy := p.session.Contracts.Proxy
	return p.execute(ctx, plan{
		verb:     VerbOnboard,
		optional: true,
		reqs: []authz.Requirement{
			p.basePermit(user, proxy),
			p.controllerDelegation(user),
		},
		encode: func(r authz.Result) ([]byte, error) {
			return contracts.Proxy.Pack("onboard", user, r.Token(reqBase), r.Token(reqController))
		},
	})
}

// Run dispatches verb by name. Maturity is ignored for post, withdraw and
// onboard.
func (p *Pipeline) Run(ctx context.Context, verb Verb, maturity int64, amount string) (Outcome, error) {
	switch verb {
	case VerbPost:
		return p.Post(ctx, amount)
	case VerbWithdraw:
		return p.Withdraw(ctx, amount)
	case VerbBorrow:
		return p.Borrow(ctx, maturity, amount)
	case VerbRepay:
		return p.Repay(ctx, maturity, amount)
	case VerbAddLiquidity:
		return p.AddLiquidity(ctx, maturity, amount)
	case VerbRemoveLiquidity:
		return p.RemoveLiquidity(ctx, maturity, amount)
	case VerbSell:
		return p.Sell(ctx, maturity, amount)
	case VerbBuy:
		return p.Buy(ctx, maturity, amount)
	case VerbSellBond:
		return p.SellBond(ctx, maturity, amount)
	case VerbBuyBond:
		return p.BuyBond(ctx, maturity, amount)
	case VerbRedeem:
		return p.Redeem(ctx, maturity, amount)
	case VerbOnboard:
		return p.Onboard(ctx)
	default:
		return Outcome{}, fmt.Errorf("execution: unknown verb %q", verb)
	}
}

// execute resolves authorization, broadcasts exactly one proxy call and
// waits for its receipt.
func (p *Pipeline) execute(ctx context.Context, pl plan) (Outcome, error) {
	attrs := []attribute.KeyValue{attribute.String("verb", string(pl.verb))}
	if pl.maturity != nil {
		attrs = append(attrs, attribute.Int64("maturity", *pl.maturity))
	}
	ctx, span := p.tracer.Start(ctx, "execution."+string(pl.verb), trace.WithAttributes(attrs...))
	defer span.End()

	if p.session.Writer == nil {
		return Outcome{}, ErrReadOnly
	}
	set, err := authz.NewSet(pl.reqs...)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}
	actx, action := p.tracker.begin(ctx, pl.verb, pl.maturity, pl.bounds)
	logger := p.logger.With("verb", string(pl.verb), "action", action.ID.String())
	logger.Info("action started", logging.Account(p.session.Account), "requirements", set.IDs())

	result, err := p.resolver.Resolve(actx, set)
	if err != nil {
		return p.finish(logger, span, action.ID, Cancelled, err, nil)
	}
	if pl.optional && !signed(result, set) {
		logger.Info("nothing left to submit")
		outcome, _ := p.finish(logger, span, action.ID, Confirmed, nil, nil)
		p.refresh(ctx, logger, pl.maturity)
		return outcome, nil
	}
	data, err := pl.encode(result)
	if err != nil {
		return p.finish(logger, span, action.ID, Failed, fmt.Errorf("encode %s: %w", pl.verb, err), nil)
	}

	p.tracker.update(action.ID, func(a *PendingAction) { a.State = Broadcasting })
	to := pl.to
	if to == (common.Address{}) {
		to = p.session.Contracts.Proxy
	}
	handle, err := p.session.Writer.Send(actx, chain.TxRequest{
		To:       to,
		Data:     data,
		Value:    pl.value,
		GasLimit: pl.gasLimit,
	})
	if err != nil {
		if chain.IsUserRejection(err) || actx.Err() != nil {
			return p.finish(logger, span, action.ID, Cancelled, fmt.Errorf("%w: broadcast: %w", ErrCancelled, err), nil)
		}
		return p.finish(logger, span, action.ID, Failed, &ChainWriteError{Verb: pl.verb, Message: err.Error(), Err: err}, nil)
	}
	hash := handle.Hash()
	p.tracker.update(action.ID, func(a *PendingAction) { a.TxHash = hash })
	span.SetAttributes(attribute.String("tx", hash.Hex()))
	logger.Info("action broadcast", "tx", hash.Hex())

	started := time.Now()
	receipt, err := handle.Wait(actx)
	if err != nil {
		if actx.Err() != nil {
			return p.finish(logger, span, action.ID, Broadcasting, fmt.Errorf("%w %s: %w", ErrStopped, hash.Hex(), err), nil)
		}
		return p.finish(logger, span, action.ID, Failed, &ChainWriteError{Verb: pl.verb, TxHash: hash, Message: err.Error(), Err: err}, nil)
	}
	p.metrics.ObserveConfirm(string(pl.verb), time.Since(started))
	if receipt.Status == gethtypes.ReceiptStatusFailed {
		return p.finish(logger, span, action.ID, Failed, &ChainWriteError{Verb: pl.verb, TxHash: hash, Message: "execution reverted"}, receipt)
	}

	outcome, _ := p.finish(logger, span, action.ID, Confirmed, nil, receipt)
	p.refresh(ctx, logger, pl.maturity)
	return outcome, nil
}

// signed reports whether any requirement resolved to a real signature.
func signed(r authz.Result, set authz.Set) bool {
	for _, id := range set.IDs() {
		if len(r.Token(id)) > 0 {
			return true
		}
	}
	return false
}

func (p *Pipeline) finish(logger *slog.Logger, span trace.Span, id uuid.UUID, state State, err error, receipt *gethtypes.Receipt) (Outcome, error) {
	action := p.tracker.finish(id, state, err)
	label := state.String()
	if errors.Is(err, ErrStopped) {
		label = "stopped"
	}
	p.metrics.RecordAction(string(action.Verb), label)
	if p.recorder != nil {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if rerr := p.recorder.Record(rctx, p.session.Account.Hex(), action); rerr != nil {
			logger.Warn("journal write failed", "error", rerr)
		}
		cancel()
	}
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
		logger.Info("action confirmed", "tx", action.TxHash.Hex())
	case state == Cancelled:
		span.SetStatus(codes.Error, "cancelled")
		logger.Info("action cancelled", "error", err)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("action did not confirm", "state", label, "error", err)
	}
	return Outcome{Action: action, Receipt: receipt}, err
}

// refresh reloads the affected series; account-wide verbs reload all.
func (p *Pipeline) refresh(ctx context.Context, logger *slog.Logger, maturity *int64) {
	var err error
	if maturity != nil {
		err = p.series.Refresh(ctx, *maturity)
	} else {
		err = p.series.Refresh(ctx)
	}
	if err != nil {
		logger.Warn("post-confirmation refresh failed", "error", err)
	}
}
