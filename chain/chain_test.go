package chain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type rpcError struct{ code int }

func (e rpcError) Error() string  { return fmt.Sprintf("rpc error %d", e.code) }
func (e rpcError) ErrorCode() int { return e.code }

func TestIsUserRejection(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":             {nil, false},
		"sentinel":        {ErrUserRejected, true},
		"wrapped":         {fmt.Errorf("sign: %w", ErrUserRejected), true},
		"rpc 4001":        {fmt.Errorf("wallet: %w", rpcError{code: UserRejectedCode}), true},
		"rpc other code":  {rpcError{code: -32000}, false},
		"unrelated error": {errors.New("boom"), false},
	}
	for name, tc := range cases {
		if got := IsUserRejection(tc.err); got != tc.want {
			t.Fatalf("%s: got %v want %v", name, got, tc.want)
		}
	}
}

func TestSessionAccountAndClock(t *testing.T) {
	var nilSession *Session
	if nilSession.HasAccount() {
		t.Fatalf("nil session reports an account")
	}
	fixed := time.Unix(1_700_000_000, 0)
	s := Session{Clock: func() time.Time { return fixed }}
	if !s.Now().Equal(fixed) {
		t.Fatalf("clock not used")
	}
	if s.HasAccount() {
		t.Fatalf("empty session reports an account")
	}

	addr := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bound := s.WithAccount(&addr)
	addr = common.Address{}
	if !bound.HasAccount() || *bound.Account != common.HexToAddress("0x00000000000000000000000000000000000a11ce") {
		t.Fatalf("WithAccount did not copy the address: %v", bound.Account)
	}
	if s.Account != nil {
		t.Fatalf("WithAccount mutated the receiver")
	}
}
