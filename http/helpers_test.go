package http

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402-foundation/permitledger"
	evmsigners "github.com/x402-foundation/permitledger/signers/evm"
	"github.com/x402-foundation/permitledger/types"
)

const (
	deployerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	relayerKey  = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	otherKey    = "0x5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a"
)

var (
	deployerAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	relayerAddr  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	otherAddr    = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	attackerAddr = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

func newTestLedger(t *testing.T) *permitledger.Ledger {
	t.Helper()
	ledger, err := permitledger.NewLedger(permitledger.LedgerConfig{
		Name:          "SET Token",
		Symbol:        "SET",
		InitialSupply: big.NewInt(10),
		Deployer:      deployerAddr,
	})
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

// signPermit signs a permit from the deployer to otherAddr
func signPermit(t *testing.T, backend permitledger.Backend, value int64) types.SignedPermit {
	t.Helper()
	permit, err := permitledger.NewPermitClient(mustSigner(t, deployerKey), backend).
		SignPermitFor(context.Background(), otherAddr, big.NewInt(value), time.Hour)
	if err != nil {
		t.Fatalf("failed to sign permit: %v", err)
	}
	return *permit
}

// signCall signs op as the account controlling key
func signCall(t *testing.T, backend permitledger.Backend, key string, op permitledger.Operation, from, to common.Address, value int64) types.SignedCall {
	t.Helper()
	deadline := big.NewInt(time.Now().Add(time.Hour).Unix())
	call, err := permitledger.NewPermitClient(mustSigner(t, key), backend).
		SignCall(context.Background(), op, from, to, big.NewInt(value), deadline)
	if err != nil {
		t.Fatalf("failed to sign %s call: %v", op, err)
	}
	return *call
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	return data
}

func errorCode(t *testing.T, resp Response) string {
	t.Helper()
	body, ok := resp.Body.(types.ErrorResponse)
	if !ok {
		t.Fatalf("expected ErrorResponse body, got %T", resp.Body)
	}
	return body.Code
}
