package permitledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402-foundation/permitledger/mechanisms/evm"
	"github.com/x402-foundation/permitledger/types"
)

// DefaultCallValidity is how long a call signed by Transfer, Approve or
// TransferFrom stays valid
const DefaultCallValidity = 5 * time.Minute

// PermitClient produces signed permits on behalf of a token owner.
// The owner never submits a permit to the ledger; the returned permit is
// handed out-of-band to a relay. The same client signs the owner's own
// transfer, approve and transferFrom calls.
type PermitClient struct {
	signer       evm.ClientEvmSigner
	backend      Backend
	scheme       evm.Scheme
	clock        func() time.Time
	callValidity time.Duration
}

// ClientOption configures the client
type ClientOption func(*PermitClient)

// WithClientScheme replaces the scheme used for self-verification
func WithClientScheme(scheme evm.Scheme) ClientOption {
	return func(c *PermitClient) {
		c.scheme = scheme
	}
}

// WithClientClock sets the time source used for relative deadlines
func WithClientClock(clock func() time.Time) ClientOption {
	return func(c *PermitClient) {
		c.clock = clock
	}
}

// WithCallValidity sets the deadline window of calls signed by Transfer,
// Approve and TransferFrom
func WithCallValidity(validity time.Duration) ClientOption {
	return func(c *PermitClient) {
		c.callValidity = validity
	}
}

// NewPermitClient creates a permit client for the owner controlling signer
func NewPermitClient(signer evm.ClientEvmSigner, backend Backend, opts ...ClientOption) *PermitClient {
	c := &PermitClient{
		signer:  signer,
		backend: backend,
		scheme:  evm.NewEIP712Scheme(),
		clock:   time.Now,

		callValidity: DefaultCallValidity,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Owner returns the address permits are signed for
func (c *PermitClient) Owner() common.Address {
	return common.HexToAddress(c.signer.Address())
}

// SignPermit reads the owner's current nonce and the live domain, builds the
// permit, signs it, and checks that the signature recovers to the owner
// before returning it.
func (c *PermitClient) SignPermit(ctx context.Context, spender common.Address, value, deadline *big.Int) (*types.SignedPermit, error) {
	owner := c.Owner()

	domain, err := c.backend.Domain(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger domain: %w", err)
	}

	message, typed, err := evm.BuildPermit(ctx, c.backend, domain, owner, spender, value, deadline)
	if err != nil {
		return nil, err
	}

	raw, err := c.signer.SignTypedData(ctx, typed.Domain, typed.Types, typed.PrimaryType, typed.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign permit: %w", err)
	}
	sig, err := evm.SplitSignature(raw)
	if err != nil {
		return nil, err
	}

	digest, err := c.scheme.Hash(domain, message)
	if err != nil {
		return nil, err
	}
	recovered, err := c.scheme.Recover(digest, sig)
	if err != nil {
		return nil, fmt.Errorf("signer produced an unusable signature: %w", err)
	}
	if recovered != owner {
		return nil, NewLedgerError(ErrCodeSignerMismatch, "signature does not recover to owner", map[string]interface{}{
			"owner":     owner.Hex(),
			"recovered": recovered.Hex(),
		})
	}

	return NewSignedPermit(domain, message, sig), nil
}

// SignPermitFor signs a permit that stays valid for validity from now
func (c *PermitClient) SignPermitFor(ctx context.Context, spender common.Address, value *big.Int, validity time.Duration) (*types.SignedPermit, error) {
	deadline := big.NewInt(c.clock().Add(validity).Unix())
	return c.SignPermit(ctx, spender, value, deadline)
}

// SignCall signs a LedgerCall for op under the sender's current call nonce.
// from is ignored for transfer and approve; for approve, to is the spender.
func (c *PermitClient) SignCall(ctx context.Context, op Operation, from, to common.Address, value, deadline *big.Int) (*types.SignedCall, error) {
	sender := c.Owner()
	if op != OperationTransferFrom {
		from = sender
	}

	domain, err := c.backend.Domain(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger domain: %w", err)
	}

	message, typed, err := evm.BuildCall(ctx, c.backend, domain, string(op), sender, from, to, value, deadline)
	if err != nil {
		return nil, err
	}

	raw, err := c.signer.SignTypedData(ctx, typed.Domain, typed.Types, typed.PrimaryType, typed.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s call: %w", op, err)
	}
	sig, err := evm.SplitSignature(raw)
	if err != nil {
		return nil, err
	}

	digest, err := evm.HashLedgerCall(domain, message)
	if err != nil {
		return nil, err
	}
	recovered, err := c.scheme.Recover(digest, sig)
	if err != nil {
		return nil, fmt.Errorf("signer produced an unusable signature: %w", err)
	}
	if recovered != sender {
		return nil, NewLedgerError(ErrCodeSignerMismatch, "signature does not recover to sender", map[string]interface{}{
			"sender":    sender.Hex(),
			"recovered": recovered.Hex(),
		})
	}

	return NewSignedCall(message, sig), nil
}

// Transfer signs and submits a transfer of value to to
func (c *PermitClient) Transfer(ctx context.Context, to common.Address, value *big.Int) (*Receipt, error) {
	return c.execute(ctx, OperationTransfer, common.Address{}, to, value)
}

// Approve signs and submits allowance[owner][spender] = value
func (c *PermitClient) Approve(ctx context.Context, spender common.Address, value *big.Int) (*Receipt, error) {
	return c.execute(ctx, OperationApprove, common.Address{}, spender, value)
}

// TransferFrom signs and submits a move of value from from to to, spending
// the allowance from granted to this client's account
func (c *PermitClient) TransferFrom(ctx context.Context, from, to common.Address, value *big.Int) (*Receipt, error) {
	return c.execute(ctx, OperationTransferFrom, from, to, value)
}

func (c *PermitClient) execute(ctx context.Context, op Operation, from, to common.Address, value *big.Int) (*Receipt, error) {
	deadline := big.NewInt(c.clock().Add(c.callValidity).Unix())
	call, err := c.SignCall(ctx, op, from, to, value, deadline)
	if err != nil {
		return nil, err
	}
	req, err := ParseCallRequest(op, *call)
	if err != nil {
		return nil, err
	}
	return c.backend.Execute(ctx, req)
}
