package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402-foundation/permitledger"
	"github.com/x402-foundation/permitledger/mechanisms/evm"
	"github.com/x402-foundation/permitledger/types"
)

// DefaultLedgerURL is the address the example ledger server listens on
const DefaultLedgerURL = "http://localhost:8080"

// ClientConfig configures the HTTP ledger client
type ClientConfig struct {
	// URL is the base URL of the ledger API
	URL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration

	// Headers are added to every request (optional)
	Headers map[string]string
}

// LedgerClient is a permitledger.Backend backed by a remote ledger API.
// Ledger failures come back as *permitledger.LedgerError so errors.Is
// against the ledger sentinels works across the network boundary.
type LedgerClient struct {
	url        string
	httpClient *http.Client
	headers    map[string]string
}

var (
	_ permitledger.Backend = (*LedgerClient)(nil)
	_ evm.NonceReader      = (*LedgerClient)(nil)
	_ evm.CallNonceReader  = (*LedgerClient)(nil)
)

// NewLedgerClient creates a new HTTP ledger client
func NewLedgerClient(config *ClientConfig) *LedgerClient {
	if config == nil {
		config = &ClientConfig{}
	}

	baseURL := config.URL
	if baseURL == "" {
		baseURL = DefaultLedgerURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &LedgerClient{
		url:        baseURL,
		httpClient: httpClient,
		headers:    config.Headers,
	}
}

// URL returns the base URL of the ledger API
func (c *LedgerClient) URL() string {
	return c.url
}

func (c *LedgerClient) TokenInfo(ctx context.Context) (permitledger.TokenInfo, error) {
	var info types.TokenInfo
	if err := c.do(ctx, http.MethodGet, PathToken, "", nil, &info); err != nil {
		return permitledger.TokenInfo{}, err
	}

	supply, err := evm.ParseUint256(info.TotalSupply)
	if err != nil {
		return permitledger.TokenInfo{}, fmt.Errorf("invalid totalSupply in response: %w", err)
	}
	return permitledger.TokenInfo{
		Name:        info.Name,
		Symbol:      info.Symbol,
		Decimals:    info.Decimals,
		TotalSupply: supply,
		Address:     common.HexToAddress(info.Address),
	}, nil
}

func (c *LedgerClient) Domain(ctx context.Context) (evm.TypedDataDomain, error) {
	var domain types.Domain
	if err := c.do(ctx, http.MethodGet, PathDomain, "", nil, &domain); err != nil {
		return evm.TypedDataDomain{}, err
	}

	chainID, ok := new(big.Int).SetString(domain.ChainID, 10)
	if !ok {
		return evm.TypedDataDomain{}, fmt.Errorf("invalid chainId in response: %q", domain.ChainID)
	}
	return evm.TypedDataDomain{
		Name:              domain.Name,
		Version:           domain.Version,
		ChainID:           chainID,
		VerifyingContract: domain.VerifyingContract,
	}, nil
}

func (c *LedgerClient) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.amount(ctx, PathBalances+"/"+addr.Hex())
}

func (c *LedgerClient) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return c.amount(ctx, PathAllowances+"/"+owner.Hex()+"/"+spender.Hex())
}

func (c *LedgerClient) Nonces(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.amount(ctx, PathNonces+"/"+owner.Hex())
}

func (c *LedgerClient) CallNonces(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.amount(ctx, PathCallNonces+"/"+account.Hex())
}

func (c *LedgerClient) Permit(ctx context.Context, sender common.Address, req permitledger.PermitRequest) (*permitledger.Receipt, error) {
	body := types.SignedPermit{
		Owner:     req.Owner.Hex(),
		Spender:   req.Spender.Hex(),
		Value:     req.Value.String(),
		Deadline:  req.Deadline.String(),
		Signature: req.Signature.Hex(),
	}
	return c.receipt(ctx, PathPermit, sender.Hex(), body)
}

// Execute submits a signed transfer, approve or transferFrom
func (c *LedgerClient) Execute(ctx context.Context, req permitledger.CallRequest) (*permitledger.Receipt, error) {
	var path string
	switch req.Operation {
	case permitledger.OperationTransfer:
		path = PathTransfer
	case permitledger.OperationTransferFrom:
		path = PathTransferFrom
	case permitledger.OperationApprove:
		path = PathApprove
	default:
		return nil, permitledger.NewLedgerError(permitledger.ErrCodeInvalidOperation,
			fmt.Sprintf("%q cannot be signed as a call", req.Operation), nil)
	}
	if req.Value == nil || req.Deadline == nil {
		return nil, fmt.Errorf("call value and deadline are required")
	}

	body := types.SignedCall{
		Sender:    req.Sender.Hex(),
		To:        req.To.Hex(),
		Value:     req.Value.String(),
		Deadline:  req.Deadline.String(),
		Signature: req.Signature.Hex(),
	}
	if req.From != (common.Address{}) {
		body.From = req.From.Hex()
	}
	return c.receipt(ctx, path, "", body)
}

// Relay asks the server's relayer to submit permit and move amount to to
func (c *LedgerClient) Relay(ctx context.Context, req types.RelayRequest) (*types.RelayResponse, error) {
	var resp types.RelayResponse
	if err := c.do(ctx, http.MethodPost, PathRelay, "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *LedgerClient) amount(ctx context.Context, path string) (*big.Int, error) {
	var resp types.AmountResponse
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	value, err := evm.ParseUint256(resp.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in response: %w", err)
	}
	return value, nil
}

func (c *LedgerClient) receipt(ctx context.Context, path, sender string, body interface{}) (*permitledger.Receipt, error) {
	var wire types.Receipt
	if err := c.do(ctx, http.MethodPost, path, sender, body, &wire); err != nil {
		return nil, err
	}
	return ReceiptFromWire(wire), nil
}

// ReceiptFromWire converts a wire receipt back to a ledger receipt
func ReceiptFromWire(r types.Receipt) *permitledger.Receipt {
	return &permitledger.Receipt{
		TxHash:    common.HexToHash(r.TxHash),
		Sequence:  r.Sequence,
		Operation: permitledger.Operation(r.Operation),
		Sender:    common.HexToAddress(r.Sender),
		GasUsed:   r.GasUsed,
		Timestamp: time.Unix(r.Timestamp, 0),
	}
}

func (c *LedgerClient) do(ctx context.Context, method, path, sender string, in, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", path, err)
		}
		reqBody = bytes.NewReader(body)
	}

	endpoint, err := url.JoinPath(c.url, path)
	if err != nil {
		return fmt.Errorf("invalid ledger URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if sender != "" {
		req.Header.Set(HeaderSender, sender)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// For non-200 responses, return an error with the details from the response
	if resp.StatusCode != http.StatusOK {
		var errResp types.ErrorResponse
		if err := json.Unmarshal(responseBody, &errResp); err != nil || errResp.Code == "" {
			return fmt.Errorf("ledger %s failed (%d): %s", path, resp.StatusCode, string(responseBody))
		}
		return ErrorFromBody(errResp)
	}

	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// ErrorFromBody rebuilds the ledger error carried by an error body
func ErrorFromBody(body types.ErrorResponse) error {
	ledgerErr := permitledger.NewLedgerError(body.Code, body.Message, body.Details)
	if body.Stage != "" {
		return &permitledger.RelayError{Stage: permitledger.RelayStage(body.Stage), Err: ledgerErr}
	}
	return ledgerErr
}
