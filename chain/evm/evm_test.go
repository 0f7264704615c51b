package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fydai/chain"
	"fydai/chain/contracts"
	"fydai/chain/permit"
)

type fakeClient struct {
	mu        sync.Mutex
	call      func(msg ethereum.CallMsg) ([]byte, error)
	sent      []*gethtypes.Transaction
	pollsLeft int
	status    uint64
}

func (f *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return f.call(msg)
}

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 7, nil }

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1e9), nil }

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 210_000, nil
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeClient) TransactionReceipt(_ context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollsLeft > 0 {
		f.pollsLeft--
		return nil, ethereum.NotFound
	}
	return &gethtypes.Receipt{TxHash: hash, Status: f.status}, nil
}

type revertError struct{}

func (revertError) Error() string  { return "execution reverted" }
func (revertError) ErrorCode() int { return 3 }

func TestQuoterMapsRevertToInsufficientLiquidity(t *testing.T) {
	client := &fakeClient{call: func(ethereum.CallMsg) ([]byte, error) { return nil, revertError{} }}
	q := NewQuoter(client)
	_, err := q.SellBasePreview(context.Background(), common.HexToAddress("0x01"), big.NewInt(10))
	if !errors.Is(err, chain.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}

func TestQuoterDecodesPreview(t *testing.T) {
	client := &fakeClient{call: func(msg ethereum.CallMsg) ([]byte, error) {
		m, args, err := contracts.Pool.MethodBySelector(msg.Data)
		if err != nil {
			return nil, err
		}
		if m.Name != "sellDaiPreview" {
			t.Fatalf("unexpected method %s", m.Name)
		}
		in := args[0].(*big.Int)
		return contracts.Pool.EncodeResult(m.Name, new(big.Int).Mul(in, big.NewInt(2)))
	}}
	out, err := NewQuoter(client).SellBasePreview(context.Background(), common.HexToAddress("0x01"), big.NewInt(21))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if out.Int64() != 42 {
		t.Fatalf("expected 42, got %s", out)
	}
}

func TestKeySignerRecoversAddress(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := NewKeySigner(key)
	data := permit.Delegation(permit.Domain{
		Name:              "Yield",
		Version:           "1",
		ChainID:           big.NewInt(1),
		VerifyingContract: common.HexToAddress("0x0000000000000000000000000000000000000c0c"),
	}, signer.Address(), common.HexToAddress("0x0000000000000000000000000000000000000d0d"), big.NewInt(0), permit.MaxUint256)

	sig, err := signer.SignTypedData(context.Background(), data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != 65 || (sig[64] != 27 && sig[64] != 28) {
		t.Fatalf("unexpected signature shape: len=%d v=%d", len(sig), sig[64])
	}
	digest, err := permit.Digest(data)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	pub, err := gethcrypto.SigToPub(digest, raw)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if gethcrypto.PubkeyToAddress(*pub) != signer.Address() {
		t.Fatalf("recovered address mismatch")
	}
}

func TestWriterSendAndWait(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	client := &fakeClient{pollsLeft: 2, status: gethtypes.ReceiptStatusSuccessful}
	writer, err := NewWriter(client, key, big.NewInt(1337), WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	handle, err := writer.Send(context.Background(), chain.TxRequest{To: to, Data: []byte{0x01}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(client.sent))
	}
	tx := client.sent[0]
	if tx.Nonce() != 7 || tx.Gas() != 210_000 || *tx.To() != to {
		t.Fatalf("unexpected transaction fields")
	}
	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(big.NewInt(1337)), tx)
	if err != nil || from != writer.From() {
		t.Fatalf("unexpected sender %s: %v", from.Hex(), err)
	}
	receipt, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if receipt.TxHash != handle.Hash() {
		t.Fatalf("receipt hash mismatch")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	client := &fakeClient{pollsLeft: 1_000_000}
	handle := &txHandle{client: client, interval: time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := handle.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLoadKeyFromEnv(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	t.Setenv("FYDAI_TEST_KEY", "0x"+common.Bytes2Hex(gethcrypto.FromECDSA(key)))
	loaded, err := LoadKey("FYDAI_TEST_KEY", "")
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	if gethcrypto.PubkeyToAddress(loaded.PublicKey) != gethcrypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("loaded key mismatch")
	}
	if _, err := LoadKey("", ""); err == nil {
		t.Fatalf("expected error without key source")
	}
}

// nodeClient rejects reused nonces and reports a pending nonce that lags the
// transactions it has already accepted.
type nodeClient struct {
	fakeClient
	base uint64
	used map[uint64]bool
}

func (n *nodeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return n.base, nil
}

func (n *nodeClient) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	n.mu.Lock()
	if n.used[tx.Nonce()] {
		n.mu.Unlock()
		return errors.New("replacement transaction underpriced")
	}
	n.used[tx.Nonce()] = true
	n.mu.Unlock()
	return n.fakeClient.SendTransaction(ctx, tx)
}

func TestConcurrentSendsUseDistinctNonces(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	client := &nodeClient{base: 7, used: make(map[uint64]bool)}
	writer, err := NewWriter(client, key, big.NewInt(1337))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	const sends = 4
	var wg sync.WaitGroup
	errs := make(chan error, sends)
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := writer.Send(context.Background(), chain.TxRequest{To: to, Data: []byte{0x01}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	for nonce := uint64(7); nonce < 7+sends; nonce++ {
		if !client.used[nonce] {
			t.Fatalf("nonce %d never used: %v", nonce, client.used)
		}
	}
}

func TestFailedSendDoesNotConsumeNonce(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	client := &nodeClient{base: 3, used: map[uint64]bool{3: true}}
	writer, err := NewWriter(client, key, big.NewInt(1337))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	if _, err := writer.Send(context.Background(), chain.TxRequest{To: to}); err == nil {
		t.Fatalf("expected rejected nonce")
	}
	// The node catches up; the writer must follow it rather than skip ahead.
	client.base = 4
	if _, err := writer.Send(context.Background(), chain.TxRequest{To: to}); err != nil {
		t.Fatalf("send after catch-up: %v", err)
	}
	if len(client.sent) != 1 || client.sent[0].Nonce() != 4 {
		t.Fatalf("expected nonce 4 to be broadcast")
	}
}
