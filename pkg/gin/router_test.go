package gin

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/x402-foundation/permitledger"
	ledgerhttp "github.com/x402-foundation/permitledger/http"
	evmsigners "github.com/x402-foundation/permitledger/signers/evm"
	"github.com/x402-foundation/permitledger/types"
)

const (
	deployerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	otherKey    = "0x5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a"
)

var (
	attackerAddr = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	deployerAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	relayerAddr  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	otherAddr    = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLedger(t *testing.T) *permitledger.Ledger {
	t.Helper()
	ledger, err := permitledger.NewLedger(permitledger.LedgerConfig{
		Name:          "SET Token",
		Symbol:        "SET",
		InitialSupply: big.NewInt(10),
		Deployer:      deployerAddr,
	})
	require.NoError(t, err)
	return ledger
}

func do(r http.Handler, method, path, sender, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sender != "" {
		req.Header.Set(ledgerhttp.HeaderSender, sender)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func accountClient(t *testing.T, backend permitledger.Backend, key string) *permitledger.PermitClient {
	t.Helper()
	signer, err := evmsigners.NewSignerFromPrivateKey(key)
	require.NoError(t, err)
	return permitledger.NewPermitClient(signer, backend)
}

func signCall(t *testing.T, backend permitledger.Backend, key string, op permitledger.Operation, from, to common.Address, value int64) string {
	t.Helper()
	deadline := big.NewInt(time.Now().Add(time.Hour).Unix())
	call, err := accountClient(t, backend, key).SignCall(context.Background(), op, from, to, big.NewInt(value), deadline)
	require.NoError(t, err)
	body, err := json.Marshal(call)
	require.NoError(t, err)
	return string(body)
}

func TestRouterPermitFlow(t *testing.T) {
	ledger := newLedger(t)
	backend := permitledger.NewLocalBackend(ledger)
	r := NewRouter(ledgerhttp.NewHandlers(backend))

	permit, err := accountClient(t, backend, deployerKey).
		SignPermitFor(context.Background(), otherAddr, big.NewInt(1), time.Hour)
	require.NoError(t, err)
	body, err := json.Marshal(permit)
	require.NoError(t, err)

	rec := do(r, "POST", "/permit", relayerAddr.Hex(), string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var receipt types.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, "permit", receipt.Operation)
	assert.Equal(t, permitledger.GasPermit, receipt.GasUsed)

	rec = do(r, "GET", "/allowances/"+deployerAddr.Hex()+"/"+otherAddr.Hex(), "", "")
	assert.JSONEq(t, `{"value":"1"}`, rec.Body.String())
	rec = do(r, "GET", "/nonces/"+deployerAddr.Hex(), "", "")
	assert.JSONEq(t, `{"value":"1"}`, rec.Body.String())

	transfer := signCall(t, backend, otherKey, permitledger.OperationTransferFrom, deployerAddr, otherAddr, 1)
	rec = do(r, "POST", "/transferFrom", "", transfer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(r, "GET", "/callNonces/"+otherAddr.Hex(), "", "")
	assert.JSONEq(t, `{"value":"1"}`, rec.Body.String())

	rec = do(r, "GET", "/balances/"+otherAddr.Hex(), "", "")
	assert.JSONEq(t, `{"value":"1"}`, rec.Body.String())

	rec = do(r, "POST", "/permit", relayerAddr.Hex(), string(body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), permitledger.ErrCodeSignerMismatch)
}

func TestRouterRejectsCallsNotSignedBySender(t *testing.T) {
	ledger := newLedger(t)
	backend := permitledger.NewLocalBackend(ledger)
	r := NewRouter(ledgerhttp.NewHandlers(backend))

	// Naming the owner in the sender header grants nothing
	rec := do(r, "POST", "/approve", deployerAddr.Hex(), `{"spender":"`+attackerAddr.Hex()+`","value":"10"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	rec = do(r, "POST", "/transfer", deployerAddr.Hex(), `{"to":"`+attackerAddr.Hex()+`","value":"4"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	rec = do(r, "POST", "/transferFrom", deployerAddr.Hex(), `{"from":"`+deployerAddr.Hex()+`","to":"`+attackerAddr.Hex()+`","value":"4"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	// A signed call claiming another sender is rejected
	var forged types.SignedCall
	require.NoError(t, json.Unmarshal([]byte(signCall(t, backend, otherKey, permitledger.OperationApprove, common.Address{}, attackerAddr, 10)), &forged))
	forged.Sender, forged.From = deployerAddr.Hex(), deployerAddr.Hex()
	body, err := json.Marshal(forged)
	require.NoError(t, err)
	rec = do(r, "POST", "/approve", "", string(body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), permitledger.ErrCodeSignerMismatch)

	assert.Equal(t, int64(0), ledger.Allowance(deployerAddr, attackerAddr).Int64())
	assert.Equal(t, int64(10), ledger.BalanceOf(deployerAddr).Int64())
	assert.Equal(t, int64(0), ledger.BalanceOf(attackerAddr).Int64())
}

func TestRouterReads(t *testing.T) {
	r := NewRouter(ledgerhttp.NewLocalHandlers(newLedger(t)))

	rec := do(r, "GET", "/token", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"SET"`)

	rec = do(r, "GET", "/domain", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"chainId":"31337"`)

	rec = do(r, "GET", "/balances/not-an-address", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCorrelationID(t *testing.T) {
	r := NewRouter(ledgerhttp.NewLocalHandlers(newLedger(t)))

	rec := do(r, "GET", "/health", "", "")
	assert.Len(t, rec.Header().Get(ledgerhttp.HeaderCorrelationID), 36)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(ledgerhttp.HeaderCorrelationID, "trace-1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "trace-1", rec.Header().Get(ledgerhttp.HeaderCorrelationID))
}

func TestRateLimitAndAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := NewRouter(ledgerhttp.NewLocalHandlers(newLedger(t)),
		WithLogger(zap.New(core)),
		WithRateLimiter(ledgerhttp.NewRateLimiter(0.001, 1)),
	)

	rec := do(r, "GET", "/token", deployerAddr.Hex(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(r, "GET", "/token", deployerAddr.Hex(), "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// a different sender header from the same client is still limited
	assert.Equal(t, http.StatusTooManyRequests, do(r, "GET", "/token", otherAddr.Hex(), "").Code)
	assert.Equal(t, http.StatusOK, do(r, "GET", "/health", deployerAddr.Hex(), "").Code)

	req := httptest.NewRequest("GET", "/token", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 2, logs.FilterMessage("Rate limit exceeded").Len())
	assert.Equal(t, 5, logs.FilterMessage("request completed").Len())
}

func TestRouterMounts(t *testing.T) {
	mounted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mounted " + r.URL.Path))
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	})
	r := NewRouter(ledgerhttp.NewLocalHandlers(newLedger(t)), WithMount("/mcp", mounted), WithMetrics(metrics))

	assert.Equal(t, "mounted /mcp/sse", do(r, "GET", "/mcp/sse", "", "").Body.String())
	assert.Equal(t, "metrics", do(r, "GET", "/metrics", "", "").Body.String())
}
