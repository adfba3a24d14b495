package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/x402-foundation/permitledger"
	ledgerhttp "github.com/x402-foundation/permitledger/http"
	"github.com/x402-foundation/permitledger/mechanisms/evm"
	"github.com/x402-foundation/permitledger/types"
)

// ToolCaller is the part of an MCP client session used by Client.
// *mcpsdk.ClientSession satisfies it.
type ToolCaller interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
}

// Client calls the ledger tools with typed arguments and results
type Client struct {
	session ToolCaller
}

// NewClient wraps a connected session
func NewClient(session ToolCaller) *Client {
	return &Client{session: session}
}

// TokenInfo calls token_info
func (c *Client) TokenInfo(ctx context.Context) (types.TokenInfo, error) {
	var info types.TokenInfo
	err := c.call(ctx, ToolTokenInfo, map[string]interface{}{}, &info)
	return info, err
}

// BalanceOf calls balance_of
func (c *Client) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.amount(ctx, ToolBalanceOf, AddressArgs{Address: addr.Hex()})
}

// Allowance calls allowance
func (c *Client) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return c.amount(ctx, ToolAllowance, AllowanceArgs{Owner: owner.Hex(), Spender: spender.Hex()})
}

// Nonces calls nonces
func (c *Client) Nonces(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.amount(ctx, ToolNonces, AddressArgs{Address: owner.Hex()})
}

// CallNonces calls call_nonces
func (c *Client) CallNonces(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.amount(ctx, ToolCallNonces, AddressArgs{Address: account.Hex()})
}

// SubmitPermit calls submit_permit with sender paying the gas
func (c *Client) SubmitPermit(ctx context.Context, sender common.Address, permit types.SignedPermit) (*permitledger.Receipt, error) {
	var receipt types.Receipt
	if err := c.call(ctx, ToolSubmitPermit, SubmitPermitArgs{Sender: sender.Hex(), Permit: permit}, &receipt); err != nil {
		return nil, err
	}
	return ledgerhttp.ReceiptFromWire(receipt), nil
}

// TransferFrom calls transfer_from with a call signed by the spender,
// as produced by PermitClient.SignCall.
func (c *Client) TransferFrom(ctx context.Context, call types.SignedCall) (*permitledger.Receipt, error) {
	var receipt types.Receipt
	if err := c.call(ctx, ToolTransferFrom, call, &receipt); err != nil {
		return nil, err
	}
	return ledgerhttp.ReceiptFromWire(receipt), nil
}

// Relay calls relay. It fails with an unknown tool error when the server
// was built without a relay.
func (c *Client) Relay(ctx context.Context, req types.RelayRequest) (*types.RelayResponse, error) {
	var resp types.RelayResponse
	if err := c.call(ctx, ToolRelay, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) amount(ctx context.Context, tool string, args interface{}) (*big.Int, error) {
	var resp types.AmountResponse
	if err := c.call(ctx, tool, args, &resp); err != nil {
		return nil, err
	}
	value, err := evm.ParseUint256(resp.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s result: %w", tool, err)
	}
	return value, nil
}

func (c *Client) call(ctx context.Context, tool string, args, out interface{}) error {
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return fmt.Errorf("%s call failed: %w", tool, err)
	}

	text := firstText(result)
	if result.IsError {
		var body types.ErrorResponse
		if err := json.Unmarshal([]byte(text), &body); err != nil || body.Code == "" {
			return fmt.Errorf("%s failed: %s", tool, text)
		}
		return ledgerhttp.ErrorFromBody(body)
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", tool, err)
	}
	return nil
}

func firstText(result *mcpsdk.CallToolResult) string {
	for _, item := range result.Content {
		if text, ok := item.(*mcpsdk.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

var (
	_ evm.NonceReader     = (*Client)(nil)
	_ evm.CallNonceReader = (*Client)(nil)
)
