package permit

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// MaxUint256 is the unlimited allowance / deadline value.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

var eip712Domain = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Domain is the EIP-712 separator input.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

func (d Domain) typed() apitypes.TypedDataDomain {
	chainID := d.ChainID
	if chainID == nil {
		chainID = big.NewInt(1)
	}
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

// Delegation builds the delegable "Signature" message accepted by the
// controller and pools' addDelegateBySignature.
func Delegation(domain Domain, user, delegate common.Address, nonce, deadline *big.Int) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712Domain,
			"Signature": {
				{Name: "user", Type: "address"},
				{Name: "delegate", Type: "address"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Signature",
		Domain:      domain.typed(),
		Message: apitypes.TypedDataMessage{
			"user":     user.Hex(),
			"delegate": delegate.Hex(),
			"nonce":    decimal(nonce),
			"deadline": decimal(deadline),
		},
	}
}

// DaiPermit builds the Dai-style permit (holder/spender/nonce/expiry/allowed).
func DaiPermit(domain Domain, holder, spender common.Address, nonce, expiry *big.Int, allowed bool) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712Domain,
			"Permit": {
				{Name: "holder", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "nonce", Type: "uint256"},
				{Name: "expiry", Type: "uint256"},
				{Name: "allowed", Type: "bool"},
			},
		},
		PrimaryType: "Permit",
		Domain:      domain.typed(),
		Message: apitypes.TypedDataMessage{
			"holder":  holder.Hex(),
			"spender": spender.Hex(),
			"nonce":   decimal(nonce),
			"expiry":  decimal(expiry),
			"allowed": allowed,
		},
	}
}

// ERC2612 builds the standard permit used by fyDai tokens.
func ERC2612(domain Domain, owner, spender common.Address, value, nonce, deadline *big.Int) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712Domain,
			"Permit": {
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain:      domain.typed(),
		Message: apitypes.TypedDataMessage{
			"owner":    owner.Hex(),
			"spender":  spender.Hex(),
			"value":    decimal(value),
			"nonce":    decimal(nonce),
			"deadline": decimal(deadline),
		},
	}
}

// Digest returns the EIP-712 hash that a signer signs.
func Digest(data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("permit: hash typed data: %w", err)
	}
	return hash, nil
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
