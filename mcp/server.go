package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/x402-foundation/permitledger"
	ledgerhttp "github.com/x402-foundation/permitledger/http"
	"github.com/x402-foundation/permitledger/types"
)

// DefaultImplementation names the server in the MCP handshake
var DefaultImplementation = mcpsdk.Implementation{Name: "permitledger", Version: "1.0.0"}

// ServerOption configures NewServer
type ServerOption func(*serverConfig)

type serverConfig struct {
	impl   mcpsdk.Implementation
	relay  ledgerhttp.RelayExecutor
	logger *zap.Logger
}

// WithRelay registers the relay tool backed by relay
func WithRelay(relay ledgerhttp.RelayExecutor) ServerOption {
	return func(c *serverConfig) {
		c.relay = relay
	}
}

// WithLogger sets the logger for tool calls
func WithLogger(logger *zap.Logger) ServerOption {
	return func(c *serverConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithImplementation overrides the advertised server name and version
func WithImplementation(name, version string) ServerOption {
	return func(c *serverConfig) {
		c.impl = mcpsdk.Implementation{Name: name, Version: version}
	}
}

// NewServer creates an MCP server exposing the ledger tools over backend.
//
// Tool calls go through the same request validation and error mapping as
// the HTTP API. A failed call returns a result with IsError set whose text
// is the JSON error body.
func NewServer(backend permitledger.Backend, opts ...ServerOption) *mcpsdk.Server {
	cfg := &serverConfig{impl: DefaultImplementation, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := []ledgerhttp.HandlerOption{ledgerhttp.WithHandlerLogger(cfg.logger)}
	if cfg.relay != nil {
		handlerOpts = append(handlerOpts, ledgerhttp.WithRelay(cfg.relay))
	}
	t := &tools{
		handlers: ledgerhttp.NewHandlers(backend, handlerOpts...),
		logger:   cfg.logger,
	}

	impl := cfg.impl
	server := mcpsdk.NewServer(&impl, nil)

	server.AddTool(&mcpsdk.Tool{
		Name:        ToolTokenInfo,
		Description: "Get the token name, symbol, decimals, total supply and address.",
		InputSchema: emptySchema,
	}, t.tokenInfo)
	server.AddTool(&mcpsdk.Tool{
		Name:        ToolBalanceOf,
		Description: "Get the token balance of an address in base units.",
		InputSchema: addressSchema,
	}, t.balanceOf)
	server.AddTool(&mcpsdk.Tool{
		Name:        ToolAllowance,
		Description: "Get how much a spender may move on behalf of an owner.",
		InputSchema: allowanceSchema,
	}, t.allowance)
	server.AddTool(&mcpsdk.Tool{
		Name:        ToolNonces,
		Description: "Get the permit nonce an owner must sign next.",
		InputSchema: addressSchema,
	}, t.nonces)
	server.AddTool(&mcpsdk.Tool{
		Name:        ToolCallNonces,
		Description: "Get the call nonce an account must sign into its next transfer, approve or transferFrom.",
		InputSchema: addressSchema,
	}, t.callNonces)
	server.AddTool(&mcpsdk.Tool{
		Name:        ToolSubmitPermit,
		Description: "Submit a signed permit. The sender pays the gas.",
		InputSchema: submitPermitSchema,
	}, t.submitPermit)
	server.AddTool(&mcpsdk.Tool{
		Name:        ToolTransferFrom,
		Description: "Move tokens from an owner using the allowance of the spender that signed the call.",
		InputSchema: transferFromSchema,
	}, t.transferFrom)

	if cfg.relay != nil {
		server.AddTool(&mcpsdk.Tool{
			Name:        ToolRelay,
			Description: "Submit a permit and immediately spend it with transferFrom.",
			InputSchema: relaySchema,
		}, t.relay)
	}

	return server
}

// SSEHandler serves server over the MCP SSE transport
func SSEHandler(server *mcpsdk.Server) http.Handler {
	return mcpsdk.NewSSEHandler(func(req *http.Request) *mcpsdk.Server {
		return server
	}, &mcpsdk.SSEOptions{})
}

type tools struct {
	handlers *ledgerhttp.Handlers
	logger   *zap.Logger
}

func (t *tools) tokenInfo(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	return t.result(req, t.handlers.TokenInfo(ctx)), nil
}

func (t *tools) balanceOf(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args AddressArgs
	if res := decodeArgs(req, &args); res != nil {
		return res, nil
	}
	return t.result(req, t.handlers.BalanceOf(ctx, args.Address)), nil
}

func (t *tools) allowance(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args AllowanceArgs
	if res := decodeArgs(req, &args); res != nil {
		return res, nil
	}
	return t.result(req, t.handlers.Allowance(ctx, args.Owner, args.Spender)), nil
}

func (t *tools) nonces(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args AddressArgs
	if res := decodeArgs(req, &args); res != nil {
		return res, nil
	}
	return t.result(req, t.handlers.Nonces(ctx, args.Address)), nil
}

func (t *tools) callNonces(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args AddressArgs
	if res := decodeArgs(req, &args); res != nil {
		return res, nil
	}
	return t.result(req, t.handlers.CallNonces(ctx, args.Address)), nil
}

func (t *tools) submitPermit(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args SubmitPermitArgs
	if res := decodeArgs(req, &args); res != nil {
		return res, nil
	}
	body, err := json.Marshal(args.Permit)
	if err != nil {
		return errorResult(ledgerhttp.ErrCodeBadRequest, err.Error()), nil
	}
	return t.result(req, t.handlers.Permit(ctx, args.Sender, body)), nil
}

func (t *tools) transferFrom(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	return t.result(req, t.handlers.TransferFrom(ctx, rawArgs(req))), nil
}

func (t *tools) relay(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	return t.result(req, t.handlers.Relay(ctx, "", rawArgs(req))), nil
}

func (t *tools) result(req *mcpsdk.CallToolRequest, resp ledgerhttp.Response) *mcpsdk.CallToolResult {
	text, err := json.Marshal(resp.Body)
	if err != nil {
		return errorResult(ledgerhttp.ErrCodeInternal, fmt.Sprintf("failed to encode result: %v", err))
	}

	isError := resp.Status != http.StatusOK
	t.logger.Debug("tool call",
		zap.String("tool", req.Params.Name),
		zap.Int("status", resp.Status),
		zap.Bool("isError", isError))

	return &mcpsdk.CallToolResult{
		IsError: isError,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
	}
}

func rawArgs(req *mcpsdk.CallToolRequest) json.RawMessage {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return json.RawMessage(`{}`)
	}
	return req.Params.Arguments
}

func decodeArgs(req *mcpsdk.CallToolRequest, v interface{}) *mcpsdk.CallToolResult {
	if err := json.Unmarshal(rawArgs(req), v); err != nil {
		return errorResult(ledgerhttp.ErrCodeBadRequest, fmt.Sprintf("failed to unmarshal arguments: %v", err))
	}
	return nil
}

func errorResult(code, message string) *mcpsdk.CallToolResult {
	text, _ := json.Marshal(types.ErrorResponse{Code: code, Message: message})
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
	}
}
