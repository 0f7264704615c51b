package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"fydai/chain"
	"fydai/native/bond"
	"fydai/native/fixedpoint"
	"fydai/observability"
	"fydai/observability/logging"
)

var (
	// ErrUnknownSeries is returned for a maturity missing from the catalog.
	ErrUnknownSeries = errors.New("series: unknown maturity")
)

// Aggregator owns the canonical snapshot of every series. Readers get copies;
// only refreshes write.
type Aggregator struct {
	session  chain.Session
	catalog  map[int64]Descriptor
	order    []int64
	ilk      [32]byte
	store    *Store
	logger   *slog.Logger
	metrics  *observability.SeriesMetrics
	clock    chain.Clock
	parallel int

	mu        sync.RWMutex
	snapshot  map[int64]Series
	active    int64
	requested *int64
	inflight  int
	ready     bool
	subs      map[int]chan Event
	nextSub   int
}

// Option customises the aggregator.
type Option func(*Aggregator)

// WithStore pre-populates from, and persists to, a snapshot cache.
func WithStore(store *Store) Option {
	return func(a *Aggregator) { a.store = store }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics records refresh outcomes.
func WithMetrics(metrics *observability.SeriesMetrics) Option {
	return func(a *Aggregator) { a.metrics = metrics }
}

// WithClock overrides the session clock.
func WithClock(clock chain.Clock) Option {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithCollateral selects the collateral type used for debt reads.
func WithCollateral(label string) Option {
	return func(a *Aggregator) { a.ilk = contractsCollateral(label) }
}

// WithParallelism bounds the number of series fetched at once.
func WithParallelism(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.parallel = n
		}
	}
}

// NewAggregator builds an aggregator for catalog. Cached entries, when a
// store is configured, are loaded immediately.
func NewAggregator(session chain.Session, catalog []Descriptor, opts ...Option) (*Aggregator, error) {
	a := &Aggregator{
		session:  session,
		catalog:  make(map[int64]Descriptor, len(catalog)),
		ilk:      contractsCollateral(DefaultCollateral),
		logger:   slog.Default(),
		clock:    session.Now,
		parallel: 8,
		snapshot: make(map[int64]Series),
		subs:     make(map[int]chan Event),
	}
	for _, d := range catalog {
		if d.Maturity <= 0 {
			return nil, fmt.Errorf("series: maturity must be positive")
		}
		if _, dup := a.catalog[d.Maturity]; dup {
			return nil, fmt.Errorf("series: duplicate maturity %d", d.Maturity)
		}
		a.catalog[d.Maturity] = d
		a.order = append(a.order, d.Maturity)
	}
	sort.Slice(a.order, func(i, j int) bool { return a.order[i] < a.order[j] })
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if err := a.loadCache(); err != nil {
		a.logger.Warn("series cache unavailable", "error", err)
	}
	return a, nil
}

func (a *Aggregator) loadCache() error {
	if a.store == nil {
		return nil
	}
	cached, err := a.store.Load(a.session.Account)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	next := make(map[int64]Series, len(cached))
	for m, entry := range cached {
		if _, ok := a.catalog[m]; ok {
			next[m] = entry
		}
	}
	a.snapshot = next
	return nil
}

// Refresh re-reads the given maturities, or every series when none are given.
// Series commit independently; a failed series keeps its previous entry and
// its error is joined into the result.
func (a *Aggregator) Refresh(ctx context.Context, maturities ...int64) error {
	targets, err := a.targets(maturities)
	if err != nil {
		return err
	}
	start := time.Now()
	a.mu.Lock()
	a.inflight++
	session := a.session
	a.prepopulate(targets)
	a.mu.Unlock()

	var (
		errMu   sync.Mutex
		errs    []error
		fetched []Series
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallel)
	for _, d := range targets {
		d := d
		g.Go(func() error {
			entry, err := a.fetch(gctx, session, d)
			a.metrics.RecordRefresh(err)
			if err != nil {
				a.logger.Warn("series refresh failed", "maturity", d.Maturity, "error", err)
				errMu.Lock()
				errs = append(errs, fmt.Errorf("series %d: %w", d.Maturity, err))
				errMu.Unlock()
				return nil
			}
			if a.commit(session.Account, entry) {
				errMu.Lock()
				fetched = append(fetched, entry)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	a.mu.Lock()
	a.inflight--
	// Placeholders alone never make the snapshot ready.
	if len(fetched) > 0 {
		a.ready = true
	}
	a.selectActive(targets)
	active := a.active
	tracked := len(a.snapshot)
	a.mu.Unlock()

	if a.store != nil && len(fetched) > 0 {
		if err := a.store.Save(session.Account, fetched...); err != nil {
			a.logger.Warn("persist series cache", "error", err)
		}
	}
	a.metrics.ObservePass(time.Since(start), tracked)

	joined := errors.Join(errs...)
	a.publish(Event{Maturities: descriptorMaturities(targets), Active: active, Err: joined})
	a.logger.Debug("series refresh complete",
		"targets", len(targets), "failed", len(errs), "active", active, logging.Account(session.Account))
	return joined
}

func (a *Aggregator) targets(maturities []int64) ([]Descriptor, error) {
	if len(maturities) == 0 {
		out := make([]Descriptor, 0, len(a.order))
		for _, m := range a.order {
			out = append(out, a.catalog[m])
		}
		return out, nil
	}
	seen := make(map[int64]struct{}, len(maturities))
	out := make([]Descriptor, 0, len(maturities))
	for _, m := range maturities {
		d, ok := a.catalog[m]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownSeries, m)
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}

// prepopulate gives every target an entry so readers never see a blank series
// during the first refresh. Caller holds mu.
func (a *Aggregator) prepopulate(targets []Descriptor) {
	var next map[int64]Series
	for _, d := range targets {
		if _, ok := a.snapshot[d.Maturity]; ok {
			continue
		}
		if next == nil {
			next = a.copySnapshot()
		}
		next[d.Maturity] = placeholder(d)
	}
	if next != nil {
		a.snapshot = next
	}
}

// commit publishes entry in a fresh map. Results fetched for an account that
// has since been replaced are dropped.
func (a *Aggregator) commit(account *common.Address, entry Series) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !sameAccount(account, a.session.Account) {
		return false
	}
	next := a.copySnapshot()
	next[entry.Maturity] = entry
	a.snapshot = next
	return true
}

func (a *Aggregator) copySnapshot() map[int64]Series {
	next := make(map[int64]Series, len(a.snapshot)+1)
	for k, v := range a.snapshot {
		next[k] = v
	}
	return next
}

// selectActive applies the active-series rule after a pass. Caller holds mu.
func (a *Aggregator) selectActive(targets []Descriptor) {
	if len(targets) == 1 {
		if _, ok := a.snapshot[targets[0].Maturity]; ok {
			a.active = targets[0].Maturity
		}
		return
	}
	if a.requested != nil {
		if _, ok := a.snapshot[*a.requested]; ok {
			a.active = *a.requested
			a.requested = nil
			return
		}
	}
	a.active = nearestOpen(a.snapshot, a.clock().Unix())
}

// nearestOpen picks the earliest maturity still in the future, or the latest
// maturity when every series has matured.
func nearestOpen(snapshot map[int64]Series, now int64) int64 {
	var best, latest int64
	for m := range snapshot {
		if m > latest {
			latest = m
		}
		if m > now && (best == 0 || m < best) {
			best = m
		}
	}
	if best != 0 {
		return best
	}
	return latest
}

// Snapshot returns a deep copy of every entry keyed by maturity.
func (a *Aggregator) Snapshot() map[int64]Series {
	a.mu.RLock()
	current := a.snapshot
	a.mu.RUnlock()
	out := make(map[int64]Series, len(current))
	for k, v := range current {
		out[k] = v.Clone()
	}
	return out
}

// List returns the snapshot sorted by maturity.
func (a *Aggregator) List() []Series {
	snap := a.Snapshot()
	out := make([]Series, 0, len(snap))
	for _, s := range snap {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Maturity < out[j].Maturity })
	return out
}

// Get returns the entry for maturity.
func (a *Aggregator) Get(maturity int64) (Series, bool) {
	a.mu.RLock()
	s, ok := a.snapshot[maturity]
	a.mu.RUnlock()
	if !ok {
		return Series{}, false
	}
	return s.Clone(), true
}

// Descriptor returns the catalog entry for maturity.
func (a *Aggregator) Descriptor(maturity int64) (Descriptor, bool) {
	d, ok := a.catalog[maturity]
	return d, ok
}

// Active returns the series user actions default to.
func (a *Aggregator) Active() (Series, bool) {
	a.mu.RLock()
	active := a.active
	a.mu.RUnlock()
	if active == 0 {
		return Series{}, false
	}
	return a.Get(active)
}

// SetActive selects a series present in the snapshot.
func (a *Aggregator) SetActive(maturity int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.snapshot[maturity]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSeries, maturity)
	}
	a.active = maturity
	return nil
}

// RequestMaturity records a deep-link request honoured by the next
// multi-series selection if the maturity is in the snapshot.
func (a *Aggregator) RequestMaturity(maturity int64) {
	a.mu.Lock()
	a.requested = &maturity
	a.mu.Unlock()
}

// SetAccount switches the account whose positions are read. The snapshot is
// reloaded from cache for the new account and readers see Loading until the
// next refresh completes.
func (a *Aggregator) SetAccount(account *common.Address) {
	a.mu.Lock()
	a.session = a.session.WithAccount(account)
	a.ready = false
	a.snapshot = make(map[int64]Series)
	a.mu.Unlock()
	if err := a.loadCache(); err != nil {
		a.logger.Warn("series cache unavailable", "error", err)
	}
}

// Account returns the account positions are read for.
func (a *Aggregator) Account() *common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session.Account == nil {
		return nil
	}
	addr := *a.session.Account
	return &addr
}

// State reports the lifecycle state.
func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch {
	case a.inflight > 0:
		return Loading
	case a.ready:
		return Ready
	case len(a.snapshot) > 0:
		// Cached entries from a previous session.
		return Loading
	default:
		return Uninitialized
	}
}

// Loading reports whether snapshot values may be stale.
func (a *Aggregator) Loading() bool {
	return a.State() != Ready
}

// Subscribe returns a channel of refresh events and its cancel function.
// Slow subscribers miss events rather than block refreshes.
func (a *Aggregator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 4)
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
			close(ch)
		})
	}
}

func (a *Aggregator) publish(ev Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, ch := range a.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (a *Aggregator) now() time.Time { return a.clock() }

func sameAccount(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func descriptorMaturities(ds []Descriptor) []int64 {
	out := make([]int64, len(ds))
	for i, d := range ds {
		out[i] = d.Maturity
	}
	return out
}

var one = fixedpoint.One(fixedpoint.Wad)

func derive(entry *Series, now time.Time) {
	entry.Matured = entry.Maturity < now.Unix()
	entry.YieldAPR = nil
	if apr, err := bond.AnnualizedYield(entry.QuotePrice, entry.Maturity, now); err == nil {
		entry.YieldAPR = &apr
	}
	entry.PoolPercent = bond.PoolPercent(entry.PoolTokens, entry.TotalSupply)
	entry.RefreshedAt = now
}
