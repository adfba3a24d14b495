package permitledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402-foundation/permitledger/mechanisms/evm"
	evmsigners "github.com/x402-foundation/permitledger/signers/evm"
)

// Hardhat default accounts
const (
	deployerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	relayerKey  = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	otherKey    = "0x5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a"
)

var (
	deployerAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	relayerAddr  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	otherAddr    = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	testNow = time.Unix(1_700_000_000, 0)
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func newTestLedger(t *testing.T, opts ...LedgerOption) *Ledger {
	t.Helper()

	opts = append([]LedgerOption{WithClock(func() time.Time { return testNow })}, opts...)
	ledger, err := NewLedger(LedgerConfig{
		Name:          "SET Token",
		Symbol:        "SET",
		Decimals:      18,
		InitialSupply: ether(10),
		Deployer:      deployerAddr,
	}, opts...)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	return ledger
}

func mustSigner(t *testing.T, key string) *evmsigners.PrivateKeySigner {
	t.Helper()
	signer, err := evmsigners.NewSignerFromPrivateKey(key)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return signer
}

func mustDomain(t *testing.T, ledger *Ledger) evm.TypedDataDomain {
	t.Helper()
	domain, err := ledger.Domain(context.Background())
	if err != nil {
		t.Fatalf("failed to read domain: %v", err)
	}
	return domain
}

// signedRequest signs a permit from the deployer under domain with an explicit nonce
func signedRequest(t *testing.T, domain evm.TypedDataDomain, spender common.Address, value, nonce, deadline *big.Int) PermitRequest {
	t.Helper()

	signer := mustSigner(t, deployerKey)
	sig, err := signer.SignPermit(context.Background(), domain, evm.PermitMessage{
		Owner:    deployerAddr,
		Spender:  spender,
		Value:    value,
		Nonce:    nonce,
		Deadline: deadline,
	})
	if err != nil {
		t.Fatalf("failed to sign permit: %v", err)
	}

	return PermitRequest{
		Owner:     deployerAddr,
		Spender:   spender,
		Value:     value,
		Deadline:  deadline,
		Signature: sig,
	}
}

func deadlineIn(d time.Duration) *big.Int {
	return big.NewInt(testNow.Add(d).Unix())
}

func assertAmount(t *testing.T, name string, got *big.Int, want *big.Int) {
	t.Helper()
	if got.Cmp(want) != 0 {
		t.Fatalf("%s: expected %s, got %s", name, want, got)
	}
}
