package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TypedDataDomain represents the EIP-712 domain separator
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField represents a field in EIP-712 typed data
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// PermitMessage is a single-use grant of spending rights from Owner to Spender.
// It only ever exists as signed data in transit.
type PermitMessage struct {
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Nonce    *big.Int
	Deadline *big.Int
}

// ToMap converts the permit to the message map consumed by EIP-712 hashing.
// Addresses are checksummed hex, integers stay *big.Int.
func (m PermitMessage) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"owner":    m.Owner.Hex(),
		"spender":  m.Spender.Hex(),
		"value":    bigOrZero(m.Value),
		"nonce":    bigOrZero(m.Nonce),
		"deadline": bigOrZero(m.Deadline),
	}
}

// CallMessage authorizes one transfer, approve or transferFrom made by Sender.
// Nonce is the sender's call nonce, separate from the permit nonce.
type CallMessage struct {
	Operation string
	Sender    common.Address
	From      common.Address
	To        common.Address
	Value     *big.Int
	Nonce     *big.Int
	Deadline  *big.Int
}

// ToMap converts the call to the message map consumed by EIP-712 hashing
func (m CallMessage) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"operation": m.Operation,
		"sender":    m.Sender.Hex(),
		"from":      m.From.Hex(),
		"to":        m.To.Hex(),
		"value":     bigOrZero(m.Value),
		"nonce":     bigOrZero(m.Nonce),
		"deadline":  bigOrZero(m.Deadline),
	}
}

// PermitTypedData is the fully-qualified structured message handed to a signer
type PermitTypedData struct {
	Domain      TypedDataDomain             `json:"domain"`
	Types       map[string][]TypedDataField `json:"types"`
	PrimaryType string                      `json:"primaryType"`
	Message     map[string]interface{}      `json:"message"`
}

// ClientEvmSigner defines the interface for owner-side EVM signing operations
type ClientEvmSigner interface {
	// Address returns the signer's Ethereum address
	Address() string

	// SignTypedData signs EIP-712 typed data
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// Scheme isolates structured-message hashing and signature recovery from
// ledger bookkeeping so it can be swapped or tested on its own.
type Scheme interface {
	// Hash returns the digest a permit signature is produced over
	Hash(domain TypedDataDomain, message PermitMessage) (common.Hash, error)

	// Recover returns the address that produced sig over digest.
	// Non-canonical signatures must be rejected.
	Recover(digest common.Hash, sig Signature) (common.Address, error)
}

// NetworkConfig contains network-specific configuration
type NetworkConfig struct {
	ChainID *big.Int
	Name    string
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
