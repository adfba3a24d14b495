package evm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrMalformedDomain is returned when a domain cannot be resolved into a
// full EIP-712 domain (missing chain id or verifying contract).
var ErrMalformedDomain = errors.New("malformed EIP-712 domain")

// ValidateDomain checks that every domain field needed for the permit
// domain separator is present.
func ValidateDomain(domain TypedDataDomain) error {
	if domain.Name == "" {
		return fmt.Errorf("%w: empty name", ErrMalformedDomain)
	}
	if domain.Version == "" {
		return fmt.Errorf("%w: empty version", ErrMalformedDomain)
	}
	if domain.ChainID == nil || domain.ChainID.Sign() <= 0 {
		return fmt.Errorf("%w: chain id not resolved", ErrMalformedDomain)
	}
	if !IsValidAddress(domain.VerifyingContract) {
		return fmt.Errorf("%w: invalid verifying contract %q", ErrMalformedDomain, domain.VerifyingContract)
	}
	return nil
}

// toAPITypedData converts our types to the go-ethereum apitypes representation
func toAPITypedData(
	domain TypedDataDomain,
	types map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) apitypes.TypedData {
	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types),
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: message,
	}

	for typeName, fields := range types {
		typedFields := make([]apitypes.Type, len(fields))
		for i, field := range fields {
			typedFields[i] = apitypes.Type{
				Name: field.Name,
				Type: field.Type,
			}
		}
		typedData.Types[typeName] = typedFields
	}

	if _, exists := typedData.Types[PrimaryTypeDomain]; !exists {
		typedData.Types[PrimaryTypeDomain] = []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		}
	}

	return typedData
}

// HashTypedData hashes EIP-712 typed data into the digest a signature covers
//
// The hash is computed as: keccak256("\x19\x01" + domainSeparator + structHash)
//
// Args:
//
//	domain: The EIP-712 domain separator parameters
//	types: The type definitions for the structured data
//	primaryType: The name of the primary type being hashed
//	message: The message data to hash
//
// Returns:
//
//	32-byte hash suitable for signing or verification
//	error if hashing fails
func HashTypedData(
	domain TypedDataDomain,
	types map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	if err := ValidateDomain(domain); err != nil {
		return nil, err
	}

	typedData := toAPITypedData(domain, types, primaryType, message)

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct(PrimaryTypeDomain, typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	// Create EIP-712 digest: 0x19 0x01 <domainSeparator> <dataHash>
	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	digest := crypto.Keccak256(rawData)

	return digest, nil
}

// HashDomain returns the EIP-712 domain separator for a permit domain
func HashDomain(domain TypedDataDomain) (common.Hash, error) {
	if err := ValidateDomain(domain); err != nil {
		return common.Hash{}, err
	}

	typedData := toAPITypedData(domain, GetEIP2612EIP712Types(), PrimaryTypePermit, nil)
	separator, err := typedData.HashStruct(PrimaryTypeDomain, typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	return common.BytesToHash(separator), nil
}

// HashPermit hashes an EIP-2612 Permit message under the given domain.
//
// This is a convenience function that wraps HashTypedData with the permit
// types {owner, spender, value, nonce, deadline}.
func HashPermit(domain TypedDataDomain, message PermitMessage) (common.Hash, error) {
	if err := validatePermitMessage(message); err != nil {
		return common.Hash{}, err
	}

	digest, err := HashTypedData(domain, GetEIP2612EIP712Types(), PrimaryTypePermit, message.ToMap())
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(digest), nil
}

// HashLedgerCall hashes a LedgerCall message under the given domain
func HashLedgerCall(domain TypedDataDomain, message CallMessage) (common.Hash, error) {
	if message.Operation == "" {
		return common.Hash{}, fmt.Errorf("call operation is required")
	}
	if err := validateUints("call", message.Value, message.Nonce, message.Deadline); err != nil {
		return common.Hash{}, err
	}

	digest, err := HashTypedData(domain, GetLedgerCallEIP712Types(), PrimaryTypeLedgerCall, message.ToMap())
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(digest), nil
}

func validatePermitMessage(message PermitMessage) error {
	return validateUints("permit", message.Value, message.Nonce, message.Deadline)
}

func validateUints(kind string, value, nonce, deadline *big.Int) error {
	for _, field := range []struct {
		name string
		v    *big.Int
	}{{"value", value}, {"nonce", nonce}, {"deadline", deadline}} {
		if field.v == nil {
			return fmt.Errorf("%s %s is required", kind, field.name)
		}
		if !IsUint256(field.v) {
			return fmt.Errorf("%s %s out of uint256 range: %s", kind, field.name, field.v)
		}
	}
	return nil
}
