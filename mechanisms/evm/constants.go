package evm

import (
	"math/big"
)

const (
	// PrimaryTypePermit is the EIP-712 primary type signed by token owners
	PrimaryTypePermit = "Permit"

	// PrimaryTypeLedgerCall is the EIP-712 primary type an account signs to
	// transfer, approve or transferFrom through a ledger it does not run
	PrimaryTypeLedgerCall = "LedgerCall"

	// PrimaryTypeDomain is the EIP-712 domain type name
	PrimaryTypeDomain = "EIP712Domain"

	// DefaultPermitVersion is the domain version used by EIP-2612 tokens
	DefaultPermitVersion = "1"

	// DefaultDecimals is the default token precision (ether-style)
	DefaultDecimals = 18

	// SignatureLength is the length of an r || s || v signature
	SignatureLength = 65

	// FunctionNonces is the EIP-2612 nonce getter
	FunctionNonces = "nonces"

	// Hardhat default development network
	NetworkHardhat = "eip155:31337"
)

var (
	// Network chain IDs
	ChainIDMainnet     = big.NewInt(1)
	ChainIDBase        = big.NewInt(8453)
	ChainIDBaseSepolia = big.NewInt(84532)
	ChainIDHardhat     = big.NewInt(31337)

	// NetworkConfigs maps CAIP-2 network identifiers to chain configuration.
	// Unlisted eip155 networks are still accepted by ParseChainID.
	NetworkConfigs = map[string]NetworkConfig{
		"eip155:1": {
			ChainID: ChainIDMainnet,
			Name:    "Ethereum Mainnet",
		},
		"eip155:8453": {
			ChainID: ChainIDBase,
			Name:    "Base",
		},
		"eip155:84532": {
			ChainID: ChainIDBaseSepolia,
			Name:    "Base Sepolia",
		},
		NetworkHardhat: {
			ChainID: ChainIDHardhat,
			Name:    "Hardhat",
		},
	}

	// EIP712DomainFields is the exact field set and order of the permit domain
	EIP712DomainFields = []TypedDataField{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}

	// PermitFields is the exact field set and order of the EIP-2612 Permit struct
	PermitFields = []TypedDataField{
		{Name: "owner", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	}

	// LedgerCallFields is the field set and order of the LedgerCall struct.
	// For approve, to is the spender; for transfer and approve, from is the sender.
	LedgerCallFields = []TypedDataField{
		{Name: "operation", Type: "string"},
		{Name: "sender", Type: "address"},
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	}

	// EIP2612NoncesABI is the ABI fragment for reading permit nonces
	EIP2612NoncesABI = []byte(`[
		{
			"inputs": [{"name": "owner", "type": "address"}],
			"name": "nonces",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
)

// GetEIP2612EIP712Types returns the EIP-712 type definitions for an EIP-2612 permit.
// Builder and verifier both hash with these definitions, so the preimage
// structure is shared byte-for-byte.
func GetEIP2612EIP712Types() map[string][]TypedDataField {
	domainFields := make([]TypedDataField, len(EIP712DomainFields))
	copy(domainFields, EIP712DomainFields)
	permitFields := make([]TypedDataField, len(PermitFields))
	copy(permitFields, PermitFields)

	return map[string][]TypedDataField{
		PrimaryTypeDomain: domainFields,
		PrimaryTypePermit: permitFields,
	}
}

// GetLedgerCallEIP712Types returns the EIP-712 type definitions for a signed ledger call
func GetLedgerCallEIP712Types() map[string][]TypedDataField {
	domainFields := make([]TypedDataField, len(EIP712DomainFields))
	copy(domainFields, EIP712DomainFields)
	callFields := make([]TypedDataField, len(LedgerCallFields))
	copy(callFields, LedgerCallFields)

	return map[string][]TypedDataField{
		PrimaryTypeDomain:     domainFields,
		PrimaryTypeLedgerCall: callFields,
	}
}
