package evm

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// MaxUint256 returns 2^256 - 1. A fresh copy is returned on each call.
func MaxUint256() *big.Int {
	return new(big.Int).Set(maxUint256)
}

// IsUint256 reports whether v fits in an unsigned 256-bit integer
func IsUint256(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(maxUint256) <= 0
}

// ParseUint256 parses a decimal string into a uint256-ranged big.Int
func ParseUint256(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer: %q", s)
	}
	if !IsUint256(v) {
		return nil, fmt.Errorf("value out of uint256 range: %s", s)
	}
	return v, nil
}

// IsValidAddress checks for a 0x-prefixed 20-byte hex address
func IsValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// NormalizeAddress returns the EIP-55 checksummed form of an address
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}

// ParseAddress parses a hex address, rejecting malformed input
func ParseAddress(address string) (common.Address, error) {
	if !IsValidAddress(address) {
		return common.Address{}, fmt.Errorf("invalid address: %q", address)
	}
	return common.HexToAddress(address), nil
}

// BytesToHex encodes bytes as 0x-prefixed hex
func BytesToHex(b []byte) string {
	return hexutil.Encode(b)
}

// HexToBytes decodes 0x-prefixed (or bare) hex
func HexToBytes(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

// ParseChainID resolves a CAIP-2 "eip155:<id>" network identifier to a chain id
func ParseChainID(network string) (*big.Int, error) {
	if config, ok := NetworkConfigs[network]; ok {
		return new(big.Int).Set(config.ChainID), nil
	}

	reference, found := strings.CutPrefix(network, "eip155:")
	if !found {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
	chainID, ok := new(big.Int).SetString(reference, 10)
	if !ok || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid eip155 chain reference: %s", network)
	}
	return chainID, nil
}

// ParseAmount converts a decimal token amount ("1.5") into base units.
// Digits beyond the token precision are truncated.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}

	whole := parts[0]
	if whole == "" {
		whole = "0"
	}
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || result.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}
	return result, nil
}

// FormatAmount renders base units as a decimal string without trailing zeros
func FormatAmount(amount *big.Int, decimals int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(amount, divisor, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := frac.String()
	fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")
	return whole.String() + "." + fracStr
}
