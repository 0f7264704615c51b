package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"fydai/chain"
)

// Binding pairs a parsed ABI with a human-readable contract name used in errors.
type Binding struct {
	name string
	abi  abi.ABI
}

var (
	// Pool is the fyDai/Dai AMM pool.
	Pool = mustParse("pool", poolABI)
	// Token covers ERC-20 tokens, including fyDai and Dai.
	Token = mustParse("token", tokenABI)
	// Controller holds collateral and debt positions.
	Controller = mustParse("controller", controllerABI)
	// Vat exposes collateral spot prices.
	Vat = mustParse("vat", vatABI)
	// Proxy is the batching proxy every user verb is executed through.
	Proxy = mustParse("proxy", proxyABI)
)

func mustParse(name, definition string) *Binding {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("contracts: parse %s abi: %v", name, err))
	}
	return &Binding{name: name, abi: parsed}
}

// Name returns the contract label.
func (b *Binding) Name() string { return b.name }

// ABI exposes the parsed ABI.
func (b *Binding) ABI() abi.ABI { return b.abi }

// Pack encodes calldata for method.
func (b *Binding) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: pack: %w", b.name, method, err)
	}
	return data, nil
}

// Call performs a view call and returns the decoded outputs.
func (b *Binding) Call(ctx context.Context, reader chain.Reader, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	if reader == nil {
		return nil, fmt.Errorf("%s.%s: reader not configured", b.name, method)
	}
	data, err := b.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := reader.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: call: %w", b.name, method, err)
	}
	values, err := b.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: unpack: %w", b.name, method, err)
	}
	return values, nil
}

// CallBig performs a view call returning a single integer.
func (b *Binding) CallBig(ctx context.Context, reader chain.Reader, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	values, err := b.Call(ctx, reader, to, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s.%s: empty result", b.name, method)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s.%s: unexpected result type %T", b.name, method, values[0])
	}
	return value, nil
}

// CallBool performs a view call returning a single boolean.
func (b *Binding) CallBool(ctx context.Context, reader chain.Reader, to common.Address, method string, args ...interface{}) (bool, error) {
	values, err := b.Call(ctx, reader, to, method, args...)
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return false, fmt.Errorf("%s.%s: empty result", b.name, method)
	}
	value, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("%s.%s: unexpected result type %T", b.name, method, values[0])
	}
	return value, nil
}

// CallString performs a view call returning a single string.
func (b *Binding) CallString(ctx context.Context, reader chain.Reader, to common.Address, method string, args ...interface{}) (string, error) {
	values, err := b.Call(ctx, reader, to, method, args...)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", fmt.Errorf("%s.%s: empty result", b.name, method)
	}
	value, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%s.%s: unexpected result type %T", b.name, method, values[0])
	}
	return value, nil
}

// EncodeResult ABI-encodes method outputs. Fakes use it to answer view calls.
func (b *Binding) EncodeResult(method string, values ...interface{}) ([]byte, error) {
	m, ok := b.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%s.%s: unknown method", b.name, method)
	}
	return m.Outputs.Pack(values...)
}

// MethodBySelector resolves the method addressed by calldata.
func (b *Binding) MethodBySelector(data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("%s: calldata too short", b.name)
	}
	m, err := b.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", b.name, err)
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%s.%s: unpack args: %w", b.name, m.Name, err)
	}
	return m, args, nil
}

// CollateralType encodes a collateral label such as "ETH-A" as bytes32, the
// same layout as ethers' formatBytes32String.
func CollateralType(label string) [32]byte {
	var out [32]byte
	copy(out[:31], label)
	return out
}

// Spot reads the collateral spot price (RAY) for an ilk from the vat.
func Spot(ctx context.Context, reader chain.Reader, vat common.Address, ilk [32]byte) (*big.Int, error) {
	values, err := Vat.Call(ctx, reader, vat, "ilks", ilk)
	if err != nil {
		return nil, err
	}
	if len(values) < 3 {
		return nil, fmt.Errorf("vat.ilks: short result")
	}
	spot, ok := values[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("vat.ilks: unexpected spot type %T", values[2])
	}
	return spot, nil
}
