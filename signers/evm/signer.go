package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	permitevm "github.com/x402-foundation/permitledger/mechanisms/evm"
)

// PrivateKeySigner implements permitevm.ClientEvmSigner using an ECDSA private key.
// This provides owner-side EIP-712 signing for permits.
type PrivateKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSignerFromPrivateKey creates a signer from a hex-encoded private key.
//
// Args:
//
//	privateKeyHex: Hex-encoded private key (with or without "0x" prefix)
//
// Returns:
//
//	Signer ready for use with permitledger.NewPermitClient()
//	Error if private key is invalid
//
// Example:
//
//	signer, err := evm.NewSignerFromPrivateKey("0xac09...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := permitledger.NewPermitClient(signer, backend)
func NewSignerFromPrivateKey(privateKeyHex string) (*PrivateKeySigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return NewSignerFromKey(privateKey), nil
}

// NewSignerFromKey wraps an already parsed private key
func NewSignerFromKey(privateKey *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// Address returns the checksummed Ethereum address of the signer.
func (s *PrivateKeySigner) Address() string {
	return s.address.Hex()
}

// CommonAddress returns the signer address as a go-ethereum address
func (s *PrivateKeySigner) CommonAddress() common.Address {
	return s.address
}

// SignTypedData signs EIP-712 typed data.
//
// The domain must be fully resolved (chain id and verifying contract set),
// otherwise permitevm.ErrMalformedDomain is returned.
//
// Returns:
//
//	65-byte signature (r, s, v) with v in {27, 28}
//	Error if hashing or signing fails
func (s *PrivateKeySigner) SignTypedData(
	ctx context.Context,
	domain permitevm.TypedDataDomain,
	types map[string][]permitevm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest, err := permitevm.HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Adjust v value for Ethereum (recovery ID 0/1 → 27/28)
	signature[64] += 27

	return signature, nil
}

// SignPermit signs an EIP-2612 permit and returns the split signature
func (s *PrivateKeySigner) SignPermit(
	ctx context.Context,
	domain permitevm.TypedDataDomain,
	message permitevm.PermitMessage,
) (permitevm.Signature, error) {
	typed := permitevm.BuildPermitTypedData(domain, message)

	raw, err := s.SignTypedData(ctx, typed.Domain, typed.Types, typed.PrimaryType, typed.Message)
	if err != nil {
		return permitevm.Signature{}, err
	}
	return permitevm.SplitSignature(raw)
}

var _ permitevm.ClientEvmSigner = (*PrivateKeySigner)(nil)
