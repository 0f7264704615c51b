package authz

import (
	"context"
	"fmt"
)

// Predicate reports whether a requirement is already satisfied on chain.
type Predicate func(ctx context.Context) (bool, error)

// SignFunc collects an off-chain signature.
type SignFunc func(ctx context.Context) ([]byte, error)

// FallbackFunc submits the on-chain approval and waits for it to be mined.
type FallbackFunc func(ctx context.Context) error

// Static returns a predicate with a fixed answer.
func Static(satisfied bool) Predicate {
	return func(context.Context) (bool, error) { return satisfied, nil }
}

// Requirement is one authorization precondition of an action.
type Requirement struct {
	ID          string
	Description string
	Satisfied   Predicate
	Sign        SignFunc
	Fallback    FallbackFunc
}

func (r Requirement) satisfied(ctx context.Context) (bool, error) {
	if r.Satisfied == nil {
		return false, nil
	}
	return r.Satisfied(ctx)
}

// Set is an ordered, immutable list of requirements with unique IDs.
type Set struct {
	reqs []Requirement
}

// NewSet validates reqs and freezes their order.
func NewSet(reqs ...Requirement) (Set, error) {
	seen := make(map[string]struct{}, len(reqs))
	out := make([]Requirement, 0, len(reqs))
	for _, req := range reqs {
		if req.ID == "" {
			return Set{}, fmt.Errorf("authz: requirement id required")
		}
		if _, dup := seen[req.ID]; dup {
			return Set{}, fmt.Errorf("authz: duplicate requirement %q", req.ID)
		}
		if req.Sign == nil || req.Fallback == nil {
			return Set{}, fmt.Errorf("authz: requirement %q needs sign and fallback procedures", req.ID)
		}
		seen[req.ID] = struct{}{}
		out = append(out, req)
	}
	return Set{reqs: out}, nil
}

// Len returns the number of requirements.
func (s Set) Len() int { return len(s.reqs) }

// IDs returns the requirement identifiers in declaration order.
func (s Set) IDs() []string {
	ids := make([]string, len(s.reqs))
	for i, req := range s.reqs {
		ids[i] = req.ID
	}
	return ids
}

// Requirements returns a copy of the requirements in declaration order.
func (s Set) Requirements() []Requirement {
	out := make([]Requirement, len(s.reqs))
	copy(out, s.reqs)
	return out
}
