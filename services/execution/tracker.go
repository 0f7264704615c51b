package execution

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type tracked struct {
	action PendingAction
	cancel context.CancelFunc
}

// Tracker records in-flight actions and the last terminal action per verb.
// It gives callers the per-verb busy guard; the pipeline itself does not
// serialise distinct invocations.
type Tracker struct {
	now func() time.Time

	mu      sync.Mutex
	pending map[uuid.UUID]*tracked
	last    map[Verb]PendingAction
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		now:     time.Now,
		pending: make(map[uuid.UUID]*tracked),
		last:    make(map[Verb]PendingAction),
	}
}

func (t *Tracker) begin(ctx context.Context, verb Verb, maturity *int64, bounds Bounds) (context.Context, PendingAction) {
	ctx, cancel := context.WithCancel(ctx)
	now := t.now()
	action := PendingAction{
		ID:        uuid.New(),
		Verb:      verb,
		Maturity:  maturity,
		Bounds:    bounds,
		State:     Signing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.mu.Lock()
	t.pending[action.ID] = &tracked{action: action, cancel: cancel}
	t.mu.Unlock()
	return ctx, action
}

func (t *Tracker) update(id uuid.UUID, mutate func(*PendingAction)) PendingAction {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[id]
	if !ok {
		return PendingAction{}
	}
	mutate(&entry.action)
	entry.action.UpdatedAt = t.now()
	return entry.action
}

// finish moves the action out of the pending set. A nil err leaves the state
// untouched so a stopped broadcast keeps reporting Broadcasting.
func (t *Tracker) finish(id uuid.UUID, state State, err error) PendingAction {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[id]
	if !ok {
		return PendingAction{}
	}
	delete(t.pending, id)
	entry.cancel()
	entry.action.State = state
	if err != nil {
		entry.action.Err = err
		entry.action.Error = err.Error()
	}
	entry.action.UpdatedAt = t.now()
	t.last[entry.action.Verb] = entry.action
	return entry.action
}

// Busy reports whether an action of verb is still in flight.
func (t *Tracker) Busy(verb Verb) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, entry := range t.pending {
		if entry.action.Verb == verb {
			return true
		}
	}
	return false
}

// Pending returns the in-flight actions ordered by creation time.
func (t *Tracker) Pending() []PendingAction {
	t.mu.Lock()
	out := make([]PendingAction, 0, len(t.pending))
	for _, entry := range t.pending {
		out = append(out, entry.action)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Last returns the most recent finished action of verb.
func (t *Tracker) Last(verb Verb) (PendingAction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	action, ok := t.last[verb]
	return action, ok
}

// Stop abandons the action with id. Before broadcast this cancels the action;
// after broadcast it only stops waiting for the receipt.
func (t *Tracker) Stop(id uuid.UUID) bool {
	t.mu.Lock()
	entry, ok := t.pending[id]
	t.mu.Unlock()
	if !ok {
		return false
	}
	entry.cancel()
	return true
}
