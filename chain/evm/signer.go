package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"fydai/chain"
)

// KeySigner produces EIP-712 signatures with a local secp256k1 key.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

var _ chain.TypedSigner = (*KeySigner)(nil)

// NewKeySigner wraps key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key}
}

// Address returns the signing account.
func (s *KeySigner) Address() common.Address {
	return gethcrypto.PubkeyToAddress(s.key.PublicKey)
}

// SignTypedData returns the 65-byte r||s||v signature with v in {27, 28}.
func (s *KeySigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := gethcrypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	sig[gethcrypto.RecoveryIDOffset] += 27
	return sig, nil
}

// LoadKey resolves a hex private key from an environment variable or a file.
// The environment variable wins when both are set.
func LoadKey(envVar, path string) (*ecdsa.PrivateKey, error) {
	raw := ""
	if envVar = strings.TrimSpace(envVar); envVar != "" {
		raw = strings.TrimSpace(os.Getenv(envVar))
	}
	if raw == "" && strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read signer key: %w", err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw == "" {
		return nil, fmt.Errorf("signer key not configured")
	}
	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return key, nil
}

// DecryptKeystore unlocks a go-ethereum JSON keystore file.
func DecryptKeystore(path, passphrase string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	key, err := keystore.DecryptKey(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}
