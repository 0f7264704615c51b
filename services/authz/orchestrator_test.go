package authz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fydai/chain"
)

type recorder struct {
	mu        sync.Mutex
	signed    []string
	fallbacks []string
}

func (r *recorder) requirement(id string, satisfied bool, signErr error) Requirement {
	return Requirement{
		ID:          id,
		Description: "test " + id,
		Satisfied:   Static(satisfied),
		Sign: func(context.Context) ([]byte, error) {
			r.mu.Lock()
			r.signed = append(r.signed, id)
			r.mu.Unlock()
			if signErr != nil {
				return nil, signErr
			}
			return []byte("sig-" + id), nil
		},
		Fallback: func(context.Context) error {
			r.mu.Lock()
			r.fallbacks = append(r.fallbacks, id)
			r.mu.Unlock()
			return nil
		},
	}
}

func mustSet(t *testing.T, reqs ...Requirement) Set {
	t.Helper()
	set, err := NewSet(reqs...)
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	return set
}

func TestSignFirstCollectsSignatures(t *testing.T) {
	r := &recorder{}
	set := mustSet(t,
		r.requirement("controller", false, nil),
		r.requirement("dai", true, nil),
		r.requirement("pool", false, nil),
	)
	res, err := NewOrchestrator(SignFirst).Resolve(context.Background(), set)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Mode != Signed {
		t.Fatalf("expected signed mode, got %s", res.Mode)
	}
	if string(res.Token("controller")) != "sig-controller" || string(res.Token("pool")) != "sig-pool" {
		t.Fatalf("unexpected tokens %v", res.Tokens)
	}
	if len(res.Token("dai")) != 0 {
		t.Fatalf("satisfied requirement should carry the placeholder")
	}
	if len(r.signed) != 2 || len(r.fallbacks) != 0 {
		t.Fatalf("unexpected activity: signed=%v fallbacks=%v", r.signed, r.fallbacks)
	}
}

func TestUserRejectionShortCircuits(t *testing.T) {
	r := &recorder{}
	set := mustSet(t,
		r.requirement("first", false, nil),
		r.requirement("second", false, chain.ErrUserRejected),
		r.requirement("third", false, nil),
	)
	_, err := NewOrchestrator(SignFirst).Resolve(context.Background(), set)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(r.signed) != 2 || r.signed[1] != "second" {
		t.Fatalf("third signing procedure must not run, signed=%v", r.signed)
	}
	if len(r.fallbacks) != 0 {
		t.Fatalf("no fallback may run on user rejection, got %v", r.fallbacks)
	}
}

type rpcRejection struct{}

func (rpcRejection) Error() string  { return "User denied message signature" }
func (rpcRejection) ErrorCode() int { return chain.UserRejectedCode }

func TestRPCRejectionCodeCancels(t *testing.T) {
	r := &recorder{}
	set := mustSet(t, r.requirement("only", false, rpcRejection{}))
	if _, err := NewOrchestrator(SignFirst).Resolve(context.Background(), set); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected cancellation for code 4001, got %v", err)
	}
}

func TestTransientFailureFallsBackForEveryUnsatisfiedRequirement(t *testing.T) {
	r := &recorder{}
	set := mustSet(t,
		r.requirement("first", false, nil),
		r.requirement("second", false, errors.New("eth_signTypedData_v4 not supported")),
		r.requirement("third", false, nil),
	)
	res, err := NewOrchestrator(SignFirst).Resolve(context.Background(), set)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Mode != Approved {
		t.Fatalf("expected approved mode, got %s", res.Mode)
	}
	got := map[string]bool{}
	for _, id := range r.fallbacks {
		got[id] = true
	}
	for _, id := range []string{"first", "second", "third"} {
		if !got[id] {
			t.Fatalf("fallback for %s not invoked: %v", id, r.fallbacks)
		}
	}
	for _, id := range set.IDs() {
		if len(res.Token(id)) != 0 {
			t.Fatalf("token %s should be the placeholder after fallback", id)
		}
	}
	for _, id := range r.signed {
		if id == "third" {
			t.Fatalf("signing must stop after the transient failure")
		}
	}
}

func TestFallbackSkipsSatisfiedRequirements(t *testing.T) {
	r := &recorder{}
	set := mustSet(t,
		r.requirement("granted", true, nil),
		r.requirement("missing", false, errors.New("no typed data support")),
	)
	if _, err := NewOrchestrator(SignFirst).Resolve(context.Background(), set); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(r.fallbacks) != 1 || r.fallbacks[0] != "missing" {
		t.Fatalf("expected fallback only for the unsatisfied requirement, got %v", r.fallbacks)
	}
}

func TestApprovalOnlyRunsFallbacksConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 3)
	fallback := func(context.Context) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		started <- struct{}{}
		<-release
		inFlight.Add(-1)
		return nil
	}
	sign := func(context.Context) ([]byte, error) {
		t.Errorf("signing must be skipped under ApprovalOnly")
		return nil, nil
	}
	set := mustSet(t,
		Requirement{ID: "a", Satisfied: Static(false), Sign: sign, Fallback: fallback},
		Requirement{ID: "b", Satisfied: Static(false), Sign: sign, Fallback: fallback},
		Requirement{ID: "c", Satisfied: Static(false), Sign: sign, Fallback: fallback},
	)

	done := make(chan error, 1)
	go func() {
		_, err := NewOrchestrator(ApprovalOnly).Resolve(context.Background(), set)
		done <- err
	}()
	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("fallbacks did not start concurrently")
		}
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if peak.Load() != 3 {
		t.Fatalf("expected three concurrent fallbacks, peak was %d", peak.Load())
	}
}

func TestFallbackFailureCancels(t *testing.T) {
	boom := errors.New("approval reverted")
	set := mustSet(t,
		Requirement{
			ID:        "dai",
			Satisfied: Static(false),
			Sign:      func(context.Context) ([]byte, error) { return nil, nil },
			Fallback:  func(context.Context) error { return boom },
		},
	)
	_, err := NewOrchestrator(ApprovalOnly).Resolve(context.Background(), set)
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, boom) {
		t.Fatalf("expected cancellation wrapping the cause, got %v", err)
	}
}

func TestPredicateErrorCancels(t *testing.T) {
	signed := false
	set := mustSet(t, Requirement{
		ID:        "pool",
		Satisfied: func(context.Context) (bool, error) { return false, errors.New("rpc down") },
		Sign: func(context.Context) ([]byte, error) {
			signed = true
			return nil, nil
		},
		Fallback: func(context.Context) error { return nil },
	})
	if _, err := NewOrchestrator(SignFirst).Resolve(context.Background(), set); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if signed {
		t.Fatalf("signing must not run when satisfaction is unknown")
	}
}

func TestStrategyReadOncePerResolution(t *testing.T) {
	o := NewOrchestrator(SignFirst)
	set := mustSet(t, Requirement{
		ID:        "x",
		Satisfied: Static(false),
		Sign: func(context.Context) ([]byte, error) {
			o.SetStrategy(ApprovalOnly)
			return []byte("sig"), nil
		},
		Fallback: func(context.Context) error {
			t.Errorf("fallback must not run for an in-flight SignFirst resolution")
			return nil
		},
	})
	res, err := o.Resolve(context.Background(), set)
	if err != nil || res.Mode != Signed {
		t.Fatalf("expected signed result, got %v %v", res.Mode, err)
	}
	if o.Strategy() != ApprovalOnly {
		t.Fatalf("strategy change should apply to later resolutions")
	}
}

func TestNewSetRejectsDuplicates(t *testing.T) {
	r := &recorder{}
	if _, err := NewSet(r.requirement("a", false, nil), r.requirement("a", false, nil)); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if _, err := NewSet(Requirement{ID: "a"}); err == nil {
		t.Fatalf("expected error for missing procedures")
	}
}

func TestObserverReceivesEvents(t *testing.T) {
	var kinds []EventKind
	r := &recorder{}
	o := NewOrchestrator(SignFirst, WithObserver(func(ev Event) { kinds = append(kinds, ev.Kind) }))
	set := mustSet(t, r.requirement("a", true, nil), r.requirement("b", false, nil))
	if _, err := o.Resolve(context.Background(), set); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != EventSatisfied || kinds[1] != EventSigned {
		t.Fatalf("unexpected events %v", kinds)
	}
}

func TestParseStrategy(t *testing.T) {
	if s, err := ParseStrategy("approve"); err != nil || s != ApprovalOnly {
		t.Fatalf("unexpected parse result %v %v", s, err)
	}
	if _, err := ParseStrategy("bogus"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}
