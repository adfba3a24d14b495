package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NonceReader reads an owner's current permit nonce
type NonceReader interface {
	Nonces(ctx context.Context, owner common.Address) (*big.Int, error)
}

// CallNonceReader reads an account's current ledger-call nonce
type CallNonceReader interface {
	CallNonces(ctx context.Context, account common.Address) (*big.Int, error)
}

// BuildPermitTypedData assembles the structured message for a permit:
// the domain, the EIP-2612 type definitions and the message fields in
// {owner, spender, value, nonce, deadline} order. No side effects.
func BuildPermitTypedData(domain TypedDataDomain, message PermitMessage) PermitTypedData {
	return PermitTypedData{
		Domain:      domain,
		Types:       GetEIP2612EIP712Types(),
		PrimaryType: PrimaryTypePermit,
		Message:     message.ToMap(),
	}
}

// BuildPermit reads the owner's current nonce and assembles the permit
// typed data for (owner, spender, value, deadline).
func BuildPermit(
	ctx context.Context,
	reader NonceReader,
	domain TypedDataDomain,
	owner common.Address,
	spender common.Address,
	value *big.Int,
	deadline *big.Int,
) (PermitMessage, PermitTypedData, error) {
	if value == nil || deadline == nil {
		return PermitMessage{}, PermitTypedData{}, fmt.Errorf("permit value and deadline are required")
	}

	nonce, err := reader.Nonces(ctx, owner)
	if err != nil {
		return PermitMessage{}, PermitTypedData{}, fmt.Errorf("failed to read permit nonce: %w", err)
	}

	message := PermitMessage{
		Owner:    owner,
		Spender:  spender,
		Value:    new(big.Int).Set(value),
		Nonce:    nonce,
		Deadline: new(big.Int).Set(deadline),
	}
	return message, BuildPermitTypedData(domain, message), nil
}

// BuildCall reads the sender's current call nonce and assembles the
// LedgerCall typed data.
func BuildCall(
	ctx context.Context,
	reader CallNonceReader,
	domain TypedDataDomain,
	operation string,
	sender, from, to common.Address,
	value *big.Int,
	deadline *big.Int,
) (CallMessage, PermitTypedData, error) {
	if value == nil || deadline == nil {
		return CallMessage{}, PermitTypedData{}, fmt.Errorf("call value and deadline are required")
	}

	nonce, err := reader.CallNonces(ctx, sender)
	if err != nil {
		return CallMessage{}, PermitTypedData{}, fmt.Errorf("failed to read call nonce: %w", err)
	}

	message := CallMessage{
		Operation: operation,
		Sender:    sender,
		From:      from,
		To:        to,
		Value:     new(big.Int).Set(value),
		Nonce:     nonce,
		Deadline:  new(big.Int).Set(deadline),
	}
	return message, PermitTypedData{
		Domain:      domain,
		Types:       GetLedgerCallEIP712Types(),
		PrimaryType: PrimaryTypeLedgerCall,
		Message:     message.ToMap(),
	}, nil
}
