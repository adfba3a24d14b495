package evm

import (
	"github.com/ethereum/go-ethereum/common"
)

// eip712Scheme is the default Scheme: EIP-712 typed-data digests with
// canonical secp256k1 recovery.
type eip712Scheme struct{}

// NewEIP712Scheme returns the EIP-712 / secp256k1 signature scheme
func NewEIP712Scheme() Scheme {
	return eip712Scheme{}
}

// Hash returns the EIP-712 digest of a permit under domain
func (eip712Scheme) Hash(domain TypedDataDomain, message PermitMessage) (common.Hash, error) {
	return HashPermit(domain, message)
}

// Recover recovers the signer of digest, rejecting non-canonical signatures
func (eip712Scheme) Recover(digest common.Hash, sig Signature) (common.Address, error) {
	return RecoverAddress(digest, sig)
}
