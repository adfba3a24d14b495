package evm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrMalformedSignature is returned for signatures that cannot be decoded
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrNonCanonicalSignature is returned for signatures outside the canonical
	// form (high s, or v other than 27/28)
	ErrNonCanonicalSignature = errors.New("non-canonical signature")

	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(crypto.S256().Params().N, 1)
)

// Signature is a recoverable secp256k1 signature in Ethereum's {v, r, s} form
type Signature struct {
	V uint8       `json:"v"`
	R common.Hash `json:"r"`
	S common.Hash `json:"s"`
}

// SplitSignature decodes a 65-byte r || s || v signature.
// A recovery id of 0/1 is normalised to 27/28.
func SplitSignature(sig []byte) (Signature, error) {
	if len(sig) != SignatureLength {
		return Signature{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, SignatureLength, len(sig))
	}

	v := sig[64]
	if v < 27 {
		v += 27
	}

	return Signature{
		V: v,
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}

// ParseSignatureHex decodes a 0x-prefixed 65-byte hex signature
func ParseSignatureHex(sigHex string) (Signature, error) {
	raw, err := HexToBytes(sigHex)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return SplitSignature(raw)
}

// Bytes returns the 65-byte r || s || v encoding
func (s Signature) Bytes() []byte {
	out := make([]byte, SignatureLength)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// Hex returns the 0x-prefixed hex encoding of Bytes
func (s Signature) Hex() string {
	return BytesToHex(s.Bytes())
}

// ValidateCanonical rejects malleable signature variants: v must be 27 or 28,
// r and s must be non-zero and below the curve order, and s must lie in the
// lower half of the curve order.
func (s Signature) ValidateCanonical() error {
	if s.V != 27 && s.V != 28 {
		return fmt.Errorf("%w: invalid v value %d", ErrNonCanonicalSignature, s.V)
	}

	r := new(big.Int).SetBytes(s.R[:])
	sv := new(big.Int).SetBytes(s.S[:])
	if r.Sign() == 0 || r.Cmp(secp256k1N) >= 0 {
		return fmt.Errorf("%w: invalid r value", ErrNonCanonicalSignature)
	}
	if sv.Sign() == 0 || sv.Cmp(secp256k1HalfN) > 0 {
		return fmt.Errorf("%w: invalid s value", ErrNonCanonicalSignature)
	}
	return nil
}

// RecoverAddress recovers the signing address from a digest and canonical signature
func RecoverAddress(digest common.Hash, sig Signature) (common.Address, error) {
	if err := sig.ValidateCanonical(); err != nil {
		return common.Address{}, err
	}

	raw := sig.Bytes()
	raw[64] -= 27

	pub, err := crypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	addr := crypto.PubkeyToAddress(*pub)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: recovered zero address", ErrMalformedSignature)
	}
	return addr, nil
}

// FlipS returns the high-s twin of a signature (s' = N - s, v flipped).
// The twin recovers to the same address, which is exactly what canonical
// validation must reject.
func FlipS(sig Signature) Signature {
	sv := new(big.Int).SetBytes(sig.S[:])
	flipped := new(big.Int).Sub(secp256k1N, sv)

	out := sig
	out.S = common.BigToHash(flipped)
	if sig.V == 27 {
		out.V = 28
	} else {
		out.V = 27
	}
	return out
}
