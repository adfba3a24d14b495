package permitledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/x402-foundation/permitledger/mechanisms/evm"
	"github.com/x402-foundation/permitledger/types"
)

// RelayResult reports both steps of a completed relay
type RelayResult struct {
	ID              string
	Owner           common.Address
	Spender         common.Address
	To              common.Address
	Amount          *big.Int
	PermitReceipt   *Receipt
	TransferReceipt *Receipt
}

// ToWire converts the result to its wire form
func (r *RelayResult) ToWire() *types.RelayResponse {
	return &types.RelayResponse{
		ID:              r.ID,
		PermitReceipt:   r.PermitReceipt.ToWire(),
		TransferReceipt: r.TransferReceipt.ToWire(),
	}
}

// RelayerOption configures a Relayer
type RelayerOption func(*Relayer)

// WithRelayerLogger sets the relayer logger
func WithRelayerLogger(logger *zap.Logger) RelayerOption {
	return func(r *Relayer) {
		r.logger = logger
	}
}

// WithRelayerClientOptions configures the client that signs the relayer's
// transferFrom calls
func WithRelayerClientOptions(opts ...ClientOption) RelayerOption {
	return func(r *Relayer) {
		r.clientOpts = append(r.clientOpts, opts...)
	}
}

// Relayer submits owner-signed permits and spends the allowance they grant.
// It only relays permits whose spender is its own account: it pays for the
// permit submission and then signs the transferFrom as the spender.
//
// A failed step aborts the sequence. Nothing is retried: a retry needs a
// freshly signed permit since the nonce may have moved.
type Relayer struct {
	backend    Backend
	sender     common.Address
	account    *PermitClient
	clientOpts []ClientOption
	logger     *zap.Logger
}

// NewRelayer creates a relayer acting as the account controlling signer
func NewRelayer(backend Backend, signer evm.ClientEvmSigner, opts ...RelayerOption) *Relayer {
	r := &Relayer{
		backend: backend,
		sender:  common.HexToAddress(signer.Address()),
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}
	r.account = NewPermitClient(signer, backend, r.clientOpts...)

	return r
}

// Sender returns the relayer's account: the permit submitter and the spender
func (r *Relayer) Sender() common.Address {
	return r.sender
}

// SubmitPermit decodes and submits a signed permit
func (r *Relayer) SubmitPermit(ctx context.Context, permit types.SignedPermit) (*Receipt, error) {
	req, err := ParsePermitRequest(permit)
	if err != nil {
		return nil, &RelayError{Stage: RelayStageDecode, Err: err}
	}

	receipt, err := r.backend.Permit(ctx, r.sender, req)
	if err != nil {
		return nil, &RelayError{Stage: RelayStagePermit, Err: err}
	}
	return receipt, nil
}

// ExecuteTransferFrom moves amount from owner to to, spending the allowance
// owner granted the relayer
func (r *Relayer) ExecuteTransferFrom(ctx context.Context, owner, to common.Address, amount *big.Int) (*Receipt, error) {
	receipt, err := r.account.TransferFrom(ctx, owner, to, amount)
	if err != nil {
		return nil, &RelayError{Stage: RelayStageTransferFrom, Err: err}
	}
	return receipt, nil
}

// Relay submits the permit and, only once it has been consumed, moves amount
// from the owner to to. A permit naming any spender other than the relayer
// is refused before submission.
func (r *Relayer) Relay(ctx context.Context, permit types.SignedPermit, to common.Address, amount *big.Int) (*RelayResult, error) {
	id := uuid.NewString()
	logger := r.logger.With(zap.String("relay_id", id))

	if amount == nil {
		return nil, &RelayError{Stage: RelayStageDecode, Err: fmt.Errorf("transfer amount is required")}
	}
	if !common.IsHexAddress(permit.Spender) || common.HexToAddress(permit.Spender) != r.sender {
		err := &RelayError{Stage: RelayStageDecode, Err: NewLedgerError(ErrCodeInvalidSpender,
			"permit spender is not the relayer", map[string]interface{}{
				"spender": permit.Spender,
				"relayer": r.sender.Hex(),
			})}
		logger.Warn("relay refused", zap.Error(err))
		return nil, err
	}

	permitReceipt, err := r.SubmitPermit(ctx, permit)
	if err != nil {
		logger.Warn("relay aborted", zap.Error(err))
		return nil, err
	}

	owner := common.HexToAddress(permit.Owner)
	spender := common.HexToAddress(permit.Spender)
	logger.Info("permit submitted",
		zap.String("owner", owner.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("tx", permitReceipt.TxHash.Hex()),
	)

	transferReceipt, err := r.ExecuteTransferFrom(ctx, owner, to, amount)
	if err != nil {
		logger.Warn("relay aborted", zap.Error(err))
		return nil, err
	}
	logger.Info("transfer executed",
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()),
		zap.String("tx", transferReceipt.TxHash.Hex()),
	)

	return &RelayResult{
		ID:              id,
		Owner:           owner,
		Spender:         spender,
		To:              to,
		Amount:          new(big.Int).Set(amount),
		PermitReceipt:   permitReceipt,
		TransferReceipt: transferReceipt,
	}, nil
}
