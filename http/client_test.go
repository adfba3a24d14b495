package http

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/x402-foundation/permitledger"
	"github.com/x402-foundation/permitledger/mechanisms/evm"
	"github.com/x402-foundation/permitledger/types"
)

const testURL = "http://ledger.test"

func newMockClient() (*LedgerClient, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	client := NewLedgerClient(&ClientConfig{
		URL:        testURL,
		HTTPClient: &http.Client{Transport: transport},
		Headers:    map[string]string{"Authorization": "Bearer token"},
	})
	return client, transport
}

func TestNewLedgerClient(t *testing.T) {
	client := NewLedgerClient(nil)
	if client.URL() != DefaultLedgerURL {
		t.Errorf("Expected default URL %s, got %s", DefaultLedgerURL, client.URL())
	}
	if client.httpClient.Timeout == 0 {
		t.Error("Expected a default timeout")
	}

	if NewClient("http://other").URL() != "http://other" {
		t.Error("Expected custom URL")
	}
}

func TestLedgerClientReads(t *testing.T) {
	ctx := context.Background()
	client, transport := newMockClient()

	transport.RegisterResponder("GET", testURL+"/balances/"+deployerAddr.Hex(),
		httpmock.NewJsonResponderOrPanic(200, types.AmountResponse{Value: "10"}))
	transport.RegisterResponder("GET", testURL+"/allowances/"+deployerAddr.Hex()+"/"+otherAddr.Hex(),
		httpmock.NewJsonResponderOrPanic(200, types.AmountResponse{Value: "3"}))
	transport.RegisterResponder("GET", testURL+"/nonces/"+deployerAddr.Hex(),
		httpmock.NewJsonResponderOrPanic(200, types.AmountResponse{Value: "7"}))
	transport.RegisterResponder("GET", testURL+"/domain",
		httpmock.NewJsonResponderOrPanic(200, types.Domain{
			Name:              "SET Token",
			Version:           "1",
			ChainID:           "31337",
			VerifyingContract: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		}))
	transport.RegisterResponder("GET", testURL+"/token",
		httpmock.NewJsonResponderOrPanic(200, types.TokenInfo{
			Name: "SET Token", Symbol: "SET", Decimals: 18, TotalSupply: "10",
			Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		}))

	balance, err := client.BalanceOf(ctx, deployerAddr)
	if err != nil || balance.Int64() != 10 {
		t.Fatalf("Expected balance 10, got %v %v", balance, err)
	}
	allowance, err := client.Allowance(ctx, deployerAddr, otherAddr)
	if err != nil || allowance.Int64() != 3 {
		t.Fatalf("Expected allowance 3, got %v %v", allowance, err)
	}

	// LedgerClient can feed the permit builder directly
	var reader evm.NonceReader = client
	nonce, err := reader.Nonces(ctx, deployerAddr)
	if err != nil || nonce.Int64() != 7 {
		t.Fatalf("Expected nonce 7, got %v %v", nonce, err)
	}

	domain, err := client.Domain(ctx)
	if err != nil {
		t.Fatalf("Domain failed: %v", err)
	}
	if domain.ChainID.Int64() != 31337 || domain.Name != "SET Token" {
		t.Errorf("Unexpected domain: %+v", domain)
	}

	info, err := client.TokenInfo(ctx)
	if err != nil || info.TotalSupply.Int64() != 10 || info.Symbol != "SET" {
		t.Fatalf("Unexpected token info: %+v %v", info, err)
	}

	if total := transport.GetTotalCallCount(); total != 5 {
		t.Errorf("Expected 5 calls, got %d", total)
	}
}

func TestLedgerClientExecute(t *testing.T) {
	client, transport := newMockClient()
	sig, err := evm.ParseSignatureHex("0x" + strings.Repeat("ab", 64) + "1b")
	if err != nil {
		t.Fatalf("ParseSignatureHex failed: %v", err)
	}

	transport.RegisterResponder("POST", testURL+"/transfer", func(req *http.Request) (*http.Response, error) {
		// The acting account travels in the signed body, never in a header
		if req.Header.Get(HeaderSender) != "" {
			return httpmock.NewStringResponse(400, `{"code":"bad_request","message":"unexpected sender header"}`), nil
		}
		if req.Header.Get("Authorization") != "Bearer token" {
			return httpmock.NewStringResponse(401, `{"code":"unauthorized","message":"no auth"}`), nil
		}
		var call types.SignedCall
		if err := json.NewDecoder(req.Body).Decode(&call); err != nil {
			return httpmock.NewStringResponse(400, `{"code":"bad_request","message":"bad body"}`), nil
		}
		if call.Sender != deployerAddr.Hex() || call.To != otherAddr.Hex() || call.Signature != sig.Hex() || call.From != "" {
			return httpmock.NewStringResponse(400, `{"code":"bad_request","message":"wrong call"}`), nil
		}
		return httpmock.NewJsonResponse(200, types.Receipt{
			TxHash:    "0x01",
			Sequence:  4,
			Operation: "transfer",
			Sender:    deployerAddr.Hex(),
			GasUsed:   permitledger.GasTransfer,
			Timestamp: 1_700_000_000,
		})
	})
	transport.RegisterResponder("GET", testURL+"/callNonces/"+deployerAddr.Hex(),
		httpmock.NewJsonResponderOrPanic(200, types.AmountResponse{Value: "2"}))

	receipt, err := client.Execute(context.Background(), permitledger.CallRequest{
		Operation: permitledger.OperationTransfer,
		Sender:    deployerAddr,
		To:        otherAddr,
		Value:     big.NewInt(1),
		Deadline:  big.NewInt(1_700_003_600),
		Signature: sig,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if receipt.Sequence != 4 || receipt.Operation != permitledger.OperationTransfer || receipt.Sender != deployerAddr {
		t.Errorf("Unexpected receipt: %+v", receipt)
	}

	var reader evm.CallNonceReader = client
	nonce, err := reader.CallNonces(context.Background(), deployerAddr)
	if err != nil || nonce.Int64() != 2 {
		t.Fatalf("Expected call nonce 2, got %v %v", nonce, err)
	}

	_, err = client.Execute(context.Background(), permitledger.CallRequest{Operation: permitledger.OperationPermit})
	if !errors.Is(err, permitledger.ErrInvalidOperation) {
		t.Fatalf("Expected ErrInvalidOperation, got %v", err)
	}
}

func TestLedgerClientErrors(t *testing.T) {
	ctx := context.Background()
	client, transport := newMockClient()

	transport.RegisterResponder("POST", testURL+"/transferFrom",
		httpmock.NewJsonResponderOrPanic(402, types.ErrorResponse{
			Code:    permitledger.ErrCodeInsufficientAllowance,
			Message: "insufficient allowance",
		}))
	transport.RegisterResponder("POST", testURL+"/relay",
		httpmock.NewJsonResponderOrPanic(401, types.ErrorResponse{
			Code:    permitledger.ErrCodeExpired,
			Message: "permit deadline has passed",
			Stage:   "permit",
		}))
	transport.RegisterResponder("GET", testURL+"/token",
		httpmock.NewStringResponder(502, "bad gateway"))

	_, err := client.Execute(ctx, permitledger.CallRequest{
		Operation: permitledger.OperationTransferFrom,
		Sender:    otherAddr,
		From:      deployerAddr,
		To:        otherAddr,
		Value:     big.NewInt(1),
		Deadline:  big.NewInt(1_700_003_600),
	})
	if !errors.Is(err, permitledger.ErrInsufficientAllowance) {
		t.Fatalf("Expected ErrInsufficientAllowance, got %v", err)
	}

	_, err = client.Relay(ctx, types.RelayRequest{To: otherAddr.Hex(), Amount: "1"})
	var relayErr *permitledger.RelayError
	if !errors.As(err, &relayErr) || relayErr.Stage != permitledger.RelayStagePermit {
		t.Fatalf("Expected RelayError at permit stage, got %v", err)
	}
	if !errors.Is(err, permitledger.ErrExpired) {
		t.Fatalf("Expected ErrExpired, got %v", err)
	}

	_, err = client.TokenInfo(ctx)
	if err == nil {
		t.Fatal("Expected error for 502")
	}
	var ledgerErr *permitledger.LedgerError
	if errors.As(err, &ledgerErr) {
		t.Errorf("Expected plain error for non-JSON body, got %v", ledgerErr)
	}
}
