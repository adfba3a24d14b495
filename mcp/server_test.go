package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sort"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/x402-foundation/permitledger"
	evmsigners "github.com/x402-foundation/permitledger/signers/evm"
	"github.com/x402-foundation/permitledger/types"
)

const (
	deployerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	relayerKey  = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	spenderKey  = "0x5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a"
)

var (
	deployerAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	relayerAddr  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	spenderAddr  = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func newLedger(t *testing.T) *permitledger.Ledger {
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

// connect wires server to a client session over in-memory transports
func connect(t *testing.T, server *mcpsdk.Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect failed: %v", err)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "ledger-test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect failed: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func accountClient(t *testing.T, backend permitledger.Backend, key string) *permitledger.PermitClient {
	t.Helper()
	signer, err := evmsigners.NewSignerFromPrivateKey(key)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return permitledger.NewPermitClient(signer, backend)
}

func newRelayer(t *testing.T, backend permitledger.Backend, key string) *permitledger.Relayer {
	t.Helper()
	signer, err := evmsigners.NewSignerFromPrivateKey(key)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return permitledger.NewRelayer(backend, signer)
}

// signTransferFrom signs a transferFrom of value from the deployer to the spender
func signTransferFrom(t *testing.T, backend permitledger.Backend, key string, value int64) types.SignedCall {
	t.Helper()
	deadline := big.NewInt(time.Now().Add(time.Hour).Unix())
	call, err := accountClient(t, backend, key).
		SignCall(context.Background(), permitledger.OperationTransferFrom, deployerAddr, spenderAddr, big.NewInt(value), deadline)
	if err != nil {
		t.Fatalf("failed to sign call: %v", err)
	}
	return *call
}

func signPermit(t *testing.T, backend permitledger.Backend, value int64) types.SignedPermit {
	t.Helper()
	permit, err := accountClient(t, backend, deployerKey).
		SignPermitFor(context.Background(), spenderAddr, big.NewInt(value), time.Hour)
	if err != nil {
		t.Fatalf("failed to sign permit: %v", err)
	}
	return *permit
}

func TestListTools(t *testing.T) {
	ledger := newLedger(t)
	backend := permitledger.NewLocalBackend(ledger)

	tests := []struct {
		name  string
		opts  []ServerOption
		tools []string
	}{
		{
			name:  "without relay",
			tools: []string{ToolAllowance, ToolBalanceOf, ToolCallNonces, ToolNonces, ToolSubmitPermit, ToolTokenInfo, ToolTransferFrom},
		},
		{
			name:  "with relay",
			opts:  []ServerOption{WithRelay(newRelayer(t, backend, spenderKey))},
			tools: []string{ToolAllowance, ToolBalanceOf, ToolCallNonces, ToolNonces, ToolRelay, ToolSubmitPermit, ToolTokenInfo, ToolTransferFrom},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := connect(t, NewServer(backend, tt.opts...))

			result, err := session.ListTools(context.Background(), nil)
			if err != nil {
				t.Fatalf("ListTools failed: %v", err)
			}
			var names []string
			for _, tool := range result.Tools {
				names = append(names, tool.Name)
			}
			sort.Strings(names)

			if len(names) != len(tt.tools) {
				t.Fatalf("Expected tools %v, got %v", tt.tools, names)
			}
			for i := range names {
				if names[i] != tt.tools[i] {
					t.Fatalf("Expected tools %v, got %v", tt.tools, names)
				}
			}
		})
	}
}

func TestReadTools(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	client := NewClient(connect(t, NewServer(permitledger.NewLocalBackend(ledger))))

	info, err := client.TokenInfo(ctx)
	if err != nil {
		t.Fatalf("TokenInfo failed: %v", err)
	}
	if info.Name != "SET Token" || info.Symbol != "SET" || info.TotalSupply != "10" {
		t.Fatalf("Unexpected token info: %+v", info)
	}
	if info.Address != ledger.Address().Hex() {
		t.Fatalf("Expected address %s, got %s", ledger.Address().Hex(), info.Address)
	}

	balance, err := client.BalanceOf(ctx, deployerAddr)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if balance.Int64() != 10 {
		t.Errorf("Expected balance 10, got %s", balance)
	}

	nonce, err := client.Nonces(ctx, deployerAddr)
	if err != nil {
		t.Fatalf("Nonces failed: %v", err)
	}
	if nonce.Sign() != 0 {
		t.Errorf("Expected nonce 0, got %s", nonce)
	}
}

func TestPermitThenTransferFrom(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	backend := permitledger.NewLocalBackend(ledger)
	client := NewClient(connect(t, NewServer(backend)))

	permit := signPermit(t, backend, 1)

	receipt, err := client.SubmitPermit(ctx, relayerAddr, permit)
	if err != nil {
		t.Fatalf("SubmitPermit failed: %v", err)
	}
	if receipt.Operation != permitledger.OperationPermit || receipt.Sender != relayerAddr {
		t.Fatalf("Unexpected permit receipt: %+v", receipt)
	}

	allowance, err := client.Allowance(ctx, deployerAddr, spenderAddr)
	if err != nil {
		t.Fatalf("Allowance failed: %v", err)
	}
	if allowance.Int64() != 1 {
		t.Fatalf("Expected allowance 1, got %s", allowance)
	}

	if _, err := client.TransferFrom(ctx, signTransferFrom(t, backend, spenderKey, 1)); err != nil {
		t.Fatalf("TransferFrom failed: %v", err)
	}
	callNonce, err := client.CallNonces(ctx, spenderAddr)
	if err != nil {
		t.Fatalf("CallNonces failed: %v", err)
	}
	if callNonce.Int64() != 1 {
		t.Fatalf("Expected call nonce 1, got %s", callNonce)
	}
	if ledger.BalanceOf(spenderAddr).Int64() != 1 || ledger.BalanceOf(deployerAddr).Int64() != 9 {
		t.Fatalf("Unexpected balances: deployer %s spender %s",
			ledger.BalanceOf(deployerAddr), ledger.BalanceOf(spenderAddr))
	}

	// Replaying the consumed permit surfaces the ledger error
	if _, err := client.SubmitPermit(ctx, relayerAddr, permit); !errors.Is(err, permitledger.ErrSignerMismatch) {
		t.Fatalf("Expected ErrSignerMismatch, got %v", err)
	}
	if _, err := client.TransferFrom(ctx, signTransferFrom(t, backend, spenderKey, 1)); !errors.Is(err, permitledger.ErrInsufficientAllowance) {
		t.Fatalf("Expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestTransferFromRequiresSpenderSignature(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	backend := permitledger.NewLocalBackend(ledger)
	session := connect(t, NewServer(backend))
	client := NewClient(session)

	if _, err := client.SubmitPermit(ctx, relayerAddr, signPermit(t, backend, 5)); err != nil {
		t.Fatalf("SubmitPermit failed: %v", err)
	}

	// The old unsigned argument shape is rejected outright
	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name: ToolTransferFrom,
		Arguments: map[string]interface{}{
			"spender": spenderAddr.Hex(),
			"from":    deployerAddr.Hex(),
			"to":      relayerAddr.Hex(),
			"value":   "5",
		},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if !result.IsError {
		t.Fatal("Expected an unsigned transfer_from to fail")
	}

	// A call signed by another account cannot claim the spender's allowance
	forged := signTransferFrom(t, backend, relayerKey, 5)
	forged.Sender = spenderAddr.Hex()
	if _, err := client.TransferFrom(ctx, forged); !errors.Is(err, permitledger.ErrSignerMismatch) {
		t.Fatalf("Expected ErrSignerMismatch, got %v", err)
	}

	// Signing as itself, the other account has no allowance to spend
	if _, err := client.TransferFrom(ctx, signTransferFrom(t, backend, relayerKey, 5)); !errors.Is(err, permitledger.ErrInsufficientAllowance) {
		t.Fatalf("Expected ErrInsufficientAllowance, got %v", err)
	}

	if ledger.BalanceOf(deployerAddr).Int64() != 10 || ledger.Allowance(deployerAddr, spenderAddr).Int64() != 5 {
		t.Fatalf("Expected state untouched, got balance %s allowance %s",
			ledger.BalanceOf(deployerAddr), ledger.Allowance(deployerAddr, spenderAddr))
	}
}

func TestRelayTool(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	backend := permitledger.NewLocalBackend(ledger)
	relayer := newRelayer(t, backend, spenderKey)
	client := NewClient(connect(t, NewServer(backend, WithRelay(relayer))))

	resp, err := client.Relay(ctx, types.RelayRequest{
		Permit: signPermit(t, backend, 1),
		To:     spenderAddr.Hex(),
		Amount: "1",
	})
	if err != nil {
		t.Fatalf("Relay failed: %v", err)
	}
	if resp.PermitReceipt.Sender != spenderAddr.Hex() || resp.TransferReceipt.Sender != spenderAddr.Hex() {
		t.Fatalf("Unexpected relay senders: %+v %+v", resp.PermitReceipt, resp.TransferReceipt)
	}

	_, err = client.Relay(ctx, types.RelayRequest{
		Permit: signPermit(t, backend, 1),
		To:     spenderAddr.Hex(),
		Amount: "2",
	})
	var relayErr *permitledger.RelayError
	if !errors.As(err, &relayErr) || relayErr.Stage != permitledger.RelayStageTransferFrom {
		t.Fatalf("Expected transferFrom stage failure, got %v", err)
	}
	if !errors.Is(err, permitledger.ErrInsufficientAllowance) {
		t.Fatalf("Expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestRelayToolDisabled(t *testing.T) {
	ledger := newLedger(t)
	client := NewClient(connect(t, NewServer(permitledger.NewLocalBackend(ledger))))

	if _, err := client.Relay(context.Background(), types.RelayRequest{To: spenderAddr.Hex(), Amount: "1"}); err == nil {
		t.Fatal("Expected relay to be unavailable")
	}
}

func TestInvalidArguments(t *testing.T) {
	ledger := newLedger(t)
	session := connect(t, NewServer(permitledger.NewLocalBackend(ledger)))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      ToolBalanceOf,
		Arguments: map[string]interface{}{"address": "not-an-address"},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if !result.IsError {
		t.Fatal("Expected an error result")
	}

	var body types.ErrorResponse
	if err := json.Unmarshal([]byte(firstText(result)), &body); err != nil {
		t.Fatalf("Expected a JSON error body: %v", err)
	}
	if body.Code != "bad_request" {
		t.Errorf("Expected bad_request, got %s", body.Code)
	}
}
