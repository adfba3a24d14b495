package mcp

import (
	"encoding/json"

	"github.com/x402-foundation/permitledger/types"
)

// Tool names
const (
	ToolTokenInfo    = "token_info"
	ToolBalanceOf    = "balance_of"
	ToolAllowance    = "allowance"
	ToolNonces       = "nonces"
	ToolCallNonces   = "call_nonces"
	ToolSubmitPermit = "submit_permit"
	ToolTransferFrom = "transfer_from"
	ToolRelay        = "relay"
)

// AddressArgs selects a single account
type AddressArgs struct {
	Address string `json:"address"`
}

// AllowanceArgs selects an owner/spender pair
type AllowanceArgs struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

// SubmitPermitArgs submits a signed permit on behalf of Sender
type SubmitPermitArgs struct {
	Sender string             `json:"sender"`
	Permit types.SignedPermit `json:"permit"`
}

// TransferFromArgs is a transferFrom call signed by the spender
type TransferFromArgs = types.SignedCall

var (
	emptySchema = json.RawMessage(`{"type": "object", "properties": {}}`)

	addressSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"address": {"type": "string", "description": "0x-prefixed account address"}},
		"required": ["address"]
	}`)

	allowanceSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"owner": {"type": "string"},
			"spender": {"type": "string"}
		},
		"required": ["owner", "spender"]
	}`)

	submitPermitSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"sender": {"type": "string", "description": "account that submits and pays for the call"},
			"permit": {"type": "object", "description": "signed permit as produced by the permit client"}
		},
		"required": ["sender", "permit"]
	}`)

	transferFromSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"sender": {"type": "string", "description": "spender that signed the call"},
			"from": {"type": "string"},
			"to": {"type": "string"},
			"value": {"type": "string", "description": "decimal base-unit amount"},
			"nonce": {"type": "string"},
			"deadline": {"type": "string"},
			"signature": {"type": "string", "description": "EIP-712 LedgerCall signature by sender"}
		},
		"required": ["sender", "from", "to", "value", "deadline", "signature"]
	}`)

	relaySchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"permit": {"type": "object"},
			"to": {"type": "string"},
			"amount": {"type": "string"},
			"idempotencyKey": {"type": "string"}
		},
		"required": ["permit", "to", "amount"]
	}`)
)
