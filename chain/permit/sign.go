package permit

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"fydai/chain"
	"fydai/chain/contracts"
)

// DelegableDomainName is the EIP-712 domain shared by the controller and pools.
const DelegableDomainName = "Yield"

const domainVersion = "1"

// Signer builds authorization messages for the session account and asks the
// session's typed-data signer to sign them. Nonces are read from chain.
type Signer struct {
	session *chain.Session
}

// NewSigner binds a signer to session.
func NewSigner(session *chain.Session) *Signer {
	return &Signer{session: session}
}

func (s *Signer) ready() (common.Address, error) {
	if s == nil || s.session == nil || !s.session.HasAccount() {
		return common.Address{}, chain.ErrNoAccount
	}
	if s.session.Signer == nil {
		return common.Address{}, fmt.Errorf("permit: typed-data signer not configured")
	}
	return *s.session.Account, nil
}

// Delegation signs an addDelegateBySignature message for a delegable contract.
// binding selects the contract's ABI for the signatureCount nonce read.
func (s *Signer) Delegation(ctx context.Context, binding *contracts.Binding, delegable, delegate common.Address) ([]byte, error) {
	user, err := s.ready()
	if err != nil {
		return nil, err
	}
	nonce, err := binding.CallBig(ctx, s.session.Reader, delegable, "signatureCount", user)
	if err != nil {
		return nil, err
	}
	domain := Domain{Name: DelegableDomainName, Version: domainVersion, ChainID: s.session.ChainID, VerifyingContract: delegable}
	return s.session.Signer.SignTypedData(ctx, Delegation(domain, user, delegate, nonce, MaxUint256))
}

// DaiPermit signs an unlimited Dai permit for spender.
func (s *Signer) DaiPermit(ctx context.Context, token, spender common.Address) ([]byte, error) {
	holder, err := s.ready()
	if err != nil {
		return nil, err
	}
	domain, nonce, err := s.tokenDomain(ctx, token, holder)
	if err != nil {
		return nil, err
	}
	return s.session.Signer.SignTypedData(ctx, DaiPermit(domain, holder, spender, nonce, MaxUint256, true))
}

// ERC2612Permit signs an unlimited ERC-2612 permit for spender.
func (s *Signer) ERC2612Permit(ctx context.Context, token, spender common.Address) ([]byte, error) {
	owner, err := s.ready()
	if err != nil {
		return nil, err
	}
	domain, nonce, err := s.tokenDomain(ctx, token, owner)
	if err != nil {
		return nil, err
	}
	return s.session.Signer.SignTypedData(ctx, ERC2612(domain, owner, spender, MaxUint256, nonce, MaxUint256))
}

func (s *Signer) tokenDomain(ctx context.Context, token, owner common.Address) (Domain, *big.Int, error) {
	name, err := contracts.Token.CallString(ctx, s.session.Reader, token, "name")
	if err != nil {
		return Domain{}, nil, err
	}
	nonce, err := contracts.Token.CallBig(ctx, s.session.Reader, token, "nonces", owner)
	if err != nil {
		return Domain{}, nil, err
	}
	return Domain{Name: name, Version: domainVersion, ChainID: s.session.ChainID, VerifyingContract: token}, nonce, nil
}
