package execution

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"fydai/chain"
	"fydai/chain/contracts"
	"fydai/chain/permit"
	"fydai/services/authz"
)

// Requirement identifiers double as the names of the proxy's signature
// parameters.
const (
	reqController = "controllerSig"
	reqPool       = "poolSig"
	reqBase       = "daiSig"
	reqBond       = "fyDaiSig"
)

func (p *Pipeline) account() (common.Address, error) {
	if !p.session.HasAccount() {
		return common.Address{}, chain.ErrNoAccount
	}
	return *p.session.Account, nil
}

// controllerDelegation lets the proxy act on the account's controller vault.
func (p *Pipeline) controllerDelegation(user common.Address) authz.Requirement {
	c := p.session.Contracts
	return authz.Requirement{
		ID:          reqController,
		Description: "delegate controller to proxy",
		Satisfied: func(ctx context.Context) (bool, error) {
			return contracts.Controller.CallBool(ctx, p.session.Reader, c.Controller, "delegated", user, c.Proxy)
		},
		Sign: func(ctx context.Context) ([]byte, error) {
			return p.signer.Delegation(ctx, contracts.Controller, c.Controller, c.Proxy)
		},
		Fallback: func(ctx context.Context) error {
			return p.approve(ctx, contracts.Controller, c.Controller, "addDelegate", c.Proxy)
		},
	}
}

// poolDelegation lets the proxy trade on the account's behalf in pool.
func (p *Pipeline) poolDelegation(user, pool common.Address) authz.Requirement {
	proxy := p.session.Contracts.Proxy
	return authz.Requirement{
		ID:          reqPool,
		Description: "delegate pool to proxy",
		Satisfied: func(ctx context.Context) (bool, error) {
			return contracts.Pool.CallBool(ctx, p.session.Reader, pool, "delegated", user, proxy)
		},
		Sign: func(ctx context.Context) ([]byte, error) {
			return p.signer.Delegation(ctx, contracts.Pool, pool, proxy)
		},
		Fallback: func(ctx context.Context) error {
			return p.approve(ctx, contracts.Pool, pool, "addDelegate", proxy)
		},
	}
}

// basePermit covers a Dai transfer to spender. Dai uses its own permit type.
func (p *Pipeline) basePermit(user, spender common.Address) authz.Requirement {
	token := p.session.Contracts.BaseToken
	return p.tokenRequirement(reqBase, "Dai", user, token, spender, func(ctx context.Context) ([]byte, error) {
		return p.signer.DaiPermit(ctx, token, spender)
	})
}

// bondPermit covers a fyDai transfer to spender through ERC-2612.
func (p *Pipeline) bondPermit(user, token, spender common.Address) authz.Requirement {
	return p.tokenRequirement(reqBond, "fyDai", user, token, spender, func(ctx context.Context) ([]byte, error) {
		return p.signer.ERC2612Permit(ctx, token, spender)
	})
}

func (p *Pipeline) tokenRequirement(id, symbol string, user, token, spender common.Address, sign authz.SignFunc) authz.Requirement {
	return authz.Requirement{
		ID:          id,
		Description: fmt.Sprintf("allow %s transfers to %s", symbol, spender.Hex()),
		Satisfied: func(ctx context.Context) (bool, error) {
			allowance, err := contracts.Token.CallBig(ctx, p.session.Reader, token, "allowance", user, spender)
			if err != nil {
				return false, err
			}
			return allowance.Sign() > 0, nil
		},
		Sign: sign,
		Fallback: func(ctx context.Context) error {
			return p.approve(ctx, contracts.Token, token, "approve", spender, permit.MaxUint256)
		},
	}
}

// approve sends one approval transaction and waits for a successful receipt.
func (p *Pipeline) approve(ctx context.Context, binding *contracts.Binding, to common.Address, method string, args ...interface{}) error {
	data, err := binding.Pack(method, args...)
	if err != nil {
		return err
	}
	handle, err := p.session.Writer.Send(ctx, chain.TxRequest{To: to, Data: data})
	if err != nil {
		return err
	}
	p.logger.Info("approval broadcast", "contract", binding.Name(), "method", method, "tx", handle.Hash().Hex())
	receipt, err := handle.Wait(ctx)
	if err != nil {
		return err
	}
	if receipt.Status == 0 {
		return &ChainWriteError{Verb: Verb(method), TxHash: handle.Hash(), Message: "approval reverted"}
	}
	return nil
}
