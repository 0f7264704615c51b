package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"fydai/chain"
	"fydai/observability"
)

// ErrCancelled is returned when an action's authorization could not be
// completed. No transaction may be submitted after it.
var ErrCancelled = errors.New("authz: action cancelled")

// Strategy selects how requirements are satisfied.
type Strategy int32

const (
	// SignFirst collects off-chain signatures and falls back to approval
	// transactions on transient failures.
	SignFirst Strategy = iota
	// ApprovalOnly always submits approval transactions.
	ApprovalOnly
)

func (s Strategy) String() string {
	switch s {
	case SignFirst:
		return "sign"
	case ApprovalOnly:
		return "approve"
	default:
		return fmt.Sprintf("strategy(%d)", int32(s))
	}
}

// ParseStrategy maps a configuration string to a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch value {
	case "", "sign", "sign_first":
		return SignFirst, nil
	case "approve", "approval", "approval_only":
		return ApprovalOnly, nil
	default:
		return SignFirst, fmt.Errorf("authz: unknown strategy %q", value)
	}
}

// Mode reports how a resolution completed.
type Mode int

const (
	// Signed means every token is a signature or the placeholder for a
	// requirement that was already satisfied.
	Signed Mode = iota
	// Approved means approval transactions were used and every token is the
	// placeholder.
	Approved
)

func (m Mode) String() string {
	if m == Approved {
		return "approved"
	}
	return "signed"
}

// Result maps requirement IDs to authorization tokens.
type Result struct {
	Tokens map[string][]byte
	Mode   Mode
}

// Token returns the token for id. Unknown IDs and placeholders are both empty.
func (r Result) Token(id string) []byte {
	return r.Tokens[id]
}

// Event is emitted as requirements progress.
type Event struct {
	ID       string
	Kind     EventKind
	Strategy Strategy
}

// EventKind classifies an Event.
type EventKind int

const (
	// EventSatisfied marks a requirement found already satisfied.
	EventSatisfied EventKind = iota
	// EventSigned marks a signature collected.
	EventSigned
	// EventFallback marks an approval transaction completed.
	EventFallback
)

// Observer receives progress events. It must not block.
type Observer func(Event)

// Orchestrator resolves requirement sets.
type Orchestrator struct {
	strategy atomic.Int32
	logger   *slog.Logger
	metrics  *observability.AuthzMetrics
	observer Observer
}

// Option customises the orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records resolution outcomes.
func WithMetrics(metrics *observability.AuthzMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithObserver registers a progress observer.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// NewOrchestrator constructs an orchestrator using strategy.
func NewOrchestrator(strategy Strategy, opts ...Option) *Orchestrator {
	o := &Orchestrator{logger: slog.Default()}
	o.strategy.Store(int32(strategy))
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Strategy returns the current strategy.
func (o *Orchestrator) Strategy() Strategy {
	return Strategy(o.strategy.Load())
}

// SetStrategy switches strategy for subsequent resolutions.
func (o *Orchestrator) SetStrategy(strategy Strategy) {
	o.strategy.Store(int32(strategy))
}

// Resolve obtains a token for every requirement in set. It returns
// ErrCancelled (possibly wrapping the cause) when the action must not proceed.
func (o *Orchestrator) Resolve(ctx context.Context, set Set) (Result, error) {
	strategy := o.Strategy()
	result, err := o.resolve(ctx, strategy, set)
	outcome := "signed"
	switch {
	case err != nil:
		outcome = "cancelled"
	case result.Mode == Approved:
		outcome = "approved"
	}
	o.metrics.Observe(strategy.String(), outcome)
	return result, err
}

func (o *Orchestrator) resolve(ctx context.Context, strategy Strategy, set Set) (Result, error) {
	reqs := set.Requirements()
	if strategy == ApprovalOnly {
		pending, err := o.unsatisfied(ctx, reqs)
		if err != nil {
			return Result{}, err
		}
		return o.fallback(ctx, strategy, reqs, pending)
	}

	tokens := make(map[string][]byte, len(reqs))
	// Requirements not satisfied when evaluated, in declaration order. They all
	// go through approval if signing fails, including ones already signed.
	var pending []Requirement
	for i, req := range reqs {
		ok, err := req.satisfied(ctx)
		if err != nil {
			o.logger.Warn("authorization predicate failed", "requirement", req.ID, "error", err)
			return Result{}, fmt.Errorf("%w: evaluate %s: %w", ErrCancelled, req.ID, err)
		}
		if ok {
			tokens[req.ID] = placeholder()
			o.emit(Event{ID: req.ID, Kind: EventSatisfied, Strategy: strategy})
			continue
		}
		pending = append(pending, req)
		sig, err := req.Sign(ctx)
		if err == nil {
			tokens[req.ID] = sig
			o.emit(Event{ID: req.ID, Kind: EventSigned, Strategy: strategy})
			continue
		}
		if chain.IsUserRejection(err) || ctx.Err() != nil {
			o.logger.Info("authorization declined", "requirement", req.ID)
			return Result{}, fmt.Errorf("%w: %s: %w", ErrCancelled, req.ID, err)
		}
		o.logger.Warn("signing failed, falling back to approval transactions",
			"requirement", req.ID, "error", err)
		rest, err := o.unsatisfied(ctx, reqs[i+1:])
		if err != nil {
			return Result{}, err
		}
		return o.fallback(ctx, strategy, reqs, append(pending, rest...))
	}
	return Result{Tokens: tokens, Mode: Signed}, nil
}

func (o *Orchestrator) unsatisfied(ctx context.Context, reqs []Requirement) ([]Requirement, error) {
	var out []Requirement
	for _, req := range reqs {
		ok, err := req.satisfied(ctx)
		if err != nil {
			o.logger.Warn("authorization predicate failed", "requirement", req.ID, "error", err)
			return nil, fmt.Errorf("%w: evaluate %s: %w", ErrCancelled, req.ID, err)
		}
		if !ok {
			out = append(out, req)
		}
	}
	return out, nil
}

// fallback runs the approval procedure of every pending requirement
// concurrently and waits for all of them.
func (o *Orchestrator) fallback(ctx context.Context, strategy Strategy, all, pending []Requirement) (Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, req := range pending {
		req := req
		g.Go(func() error {
			if err := req.Fallback(gctx); err != nil {
				return fmt.Errorf("%s: %w", req.ID, err)
			}
			o.emit(Event{ID: req.ID, Kind: EventFallback, Strategy: strategy})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.logger.Warn("approval fallback failed", "error", err)
		return Result{}, fmt.Errorf("%w: approval: %w", ErrCancelled, err)
	}
	tokens := make(map[string][]byte, len(all))
	for _, req := range all {
		tokens[req.ID] = placeholder()
	}
	return Result{Tokens: tokens, Mode: Approved}, nil
}

func (o *Orchestrator) emit(ev Event) {
	if o.observer != nil {
		o.observer(ev)
	}
}

func placeholder() []byte { return []byte{} }
