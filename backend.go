package permitledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402-foundation/permitledger/mechanisms/evm"
)

// Backend is the ledger surface used by owners and relays. It is implemented
// in-process by LocalBackend and over the network by http.LedgerClient.
//
// Every mutating call is authorized by a signature: permits by the owner's
// Permit signature, everything else by the sender's LedgerCall signature.
// The submitter of a call is never trusted to name the acting account.
type Backend interface {
	TokenInfo(ctx context.Context) (TokenInfo, error)
	Domain(ctx context.Context) (evm.TypedDataDomain, error)
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Nonces(ctx context.Context, owner common.Address) (*big.Int, error)
	CallNonces(ctx context.Context, account common.Address) (*big.Int, error)

	Permit(ctx context.Context, sender common.Address, req PermitRequest) (*Receipt, error)
	Execute(ctx context.Context, req CallRequest) (*Receipt, error)
}

// LocalBackend serves a Ledger in-process
type LocalBackend struct {
	ledger *Ledger
}

// NewLocalBackend wraps ledger as a Backend
func NewLocalBackend(ledger *Ledger) *LocalBackend {
	return &LocalBackend{ledger: ledger}
}

// Ledger returns the wrapped ledger
func (b *LocalBackend) Ledger() *Ledger {
	return b.ledger
}

func (b *LocalBackend) TokenInfo(ctx context.Context) (TokenInfo, error) {
	return b.ledger.Info(), nil
}

func (b *LocalBackend) Domain(ctx context.Context) (evm.TypedDataDomain, error) {
	return b.ledger.Domain(ctx)
}

func (b *LocalBackend) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return b.ledger.BalanceOf(addr), nil
}

func (b *LocalBackend) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return b.ledger.Allowance(owner, spender), nil
}

func (b *LocalBackend) Nonces(ctx context.Context, owner common.Address) (*big.Int, error) {
	return b.ledger.Nonces(owner), nil
}

func (b *LocalBackend) Permit(ctx context.Context, sender common.Address, req PermitRequest) (*Receipt, error) {
	return b.ledger.Permit(ctx, sender, req)
}

func (b *LocalBackend) CallNonces(ctx context.Context, account common.Address) (*big.Int, error) {
	return b.ledger.CallNonces(account), nil
}

func (b *LocalBackend) Execute(ctx context.Context, req CallRequest) (*Receipt, error) {
	return b.ledger.Execute(ctx, req)
}

var (
	_ Backend             = (*LocalBackend)(nil)
	_ evm.NonceReader     = (*LocalBackend)(nil)
	_ evm.CallNonceReader = (*LocalBackend)(nil)
)
