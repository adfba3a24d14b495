package types

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var (
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	numericPattern = regexp.MustCompile(`^[0-9]+$`)
	hexPattern     = regexp.MustCompile(`^0x[a-fA-F0-9]+$`)
)

// SignedPermit is a permit as it travels out-of-band from the owner to a relay.
// Integers are uint256 decimal strings, the signature is 65-byte r||s||v hex.
type SignedPermit struct {
	// Owner is the address of the token owner that signed the permit.
	Owner string `json:"owner"`
	// Spender is the address granted the allowance.
	Spender string `json:"spender"`
	// Value is the allowance amount (uint256 as decimal string).
	Value string `json:"value"`
	// Nonce is the owner nonce the permit was signed with (decimal string).
	// Informational: the ledger always verifies against its current nonce.
	Nonce string `json:"nonce,omitempty"`
	// Deadline is the unix timestamp after which the permit is rejected (decimal string).
	Deadline string `json:"deadline"`
	// Signature is the 65-byte concatenated permit signature (r, s, v) as hex.
	Signature string `json:"signature"`
	// ChainID is the chain id of the signing domain (decimal string).
	ChainID string `json:"chainId,omitempty"`
	// VerifyingContract is the ledger address of the signing domain.
	VerifyingContract string `json:"verifyingContract,omitempty"`
}

// Validate checks the wire format of a signed permit. It does not verify the
// signature itself.
func (p SignedPermit) Validate() error {
	switch {
	case !addressPattern.MatchString(p.Owner):
		return fmt.Errorf("invalid owner address: %q", p.Owner)
	case !addressPattern.MatchString(p.Spender):
		return fmt.Errorf("invalid spender address: %q", p.Spender)
	case !numericPattern.MatchString(p.Value):
		return fmt.Errorf("invalid value: %q", p.Value)
	case p.Nonce != "" && !numericPattern.MatchString(p.Nonce):
		return fmt.Errorf("invalid nonce: %q", p.Nonce)
	case !numericPattern.MatchString(p.Deadline):
		return fmt.Errorf("invalid deadline: %q", p.Deadline)
	case !hexPattern.MatchString(p.Signature):
		return fmt.Errorf("invalid signature encoding")
	case p.VerifyingContract != "" && !addressPattern.MatchString(p.VerifyingContract):
		return fmt.Errorf("invalid verifying contract: %q", p.VerifyingContract)
	}
	return nil
}

// ToSignedPermit unmarshals bytes to a signed permit and validates its format
func ToSignedPermit(data []byte) (*SignedPermit, error) {
	var permit SignedPermit
	if err := json.Unmarshal(data, &permit); err != nil {
		return nil, err
	}
	if err := permit.Validate(); err != nil {
		return nil, err
	}
	return &permit, nil
}
