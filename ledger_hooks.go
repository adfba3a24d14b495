package permitledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ============================================================================
// Ledger Hook Context Types
// ============================================================================

// PermitContext contains information passed to permit hooks
type PermitContext struct {
	Ctx       context.Context
	Sender    common.Address
	Request   PermitRequest
	Timestamp time.Time
}

// PermitResultContext contains permit operation result and context
type PermitResultContext struct {
	PermitContext
	Receipt  *Receipt
	Duration time.Duration
}

// PermitFailureContext contains permit operation failure and context
type PermitFailureContext struct {
	PermitContext
	Error    error
	Duration time.Duration
}

// TransferContext contains information passed to transfer hooks.
// It is shared by transfer, transferFrom and approve; for approve, From is
// the owner and To the spender.
type TransferContext struct {
	Ctx       context.Context
	Operation Operation
	Sender    common.Address
	From      common.Address
	To        common.Address
	Value     *big.Int
	Timestamp time.Time
}

// TransferResultContext contains transfer operation result and context
type TransferResultContext struct {
	TransferContext
	Receipt  *Receipt
	Duration time.Duration
}

// TransferFailureContext contains transfer operation failure and context
type TransferFailureContext struct {
	TransferContext
	Error    error
	Duration time.Duration
}

// ============================================================================
// Ledger Hook Result Types
// ============================================================================

// BeforeHookResult represents the result of a "before" hook
// If Abort is true, the operation will be aborted with the given Reason
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// ============================================================================
// Ledger Hook Function Types
// ============================================================================

// BeforePermitHook is called before a permit is verified.
// If it returns a result with Abort=true, the permit is rejected with
// ErrAborted before it reaches the ledger and no gas is charged.
type BeforePermitHook func(PermitContext) (*BeforeHookResult, error)

// AfterPermitHook is called after a permit was consumed.
// Any error returned will be logged but will not affect the result
type AfterPermitHook func(PermitResultContext) error

// OnPermitFailureHook is called when a permit is rejected
type OnPermitFailureHook func(PermitFailureContext) error

// BeforeTransferHook is called before transfer, transferFrom and approve.
// Abort semantics match BeforePermitHook.
type BeforeTransferHook func(TransferContext) (*BeforeHookResult, error)

// AfterTransferHook is called after a successful transfer, transferFrom or approve
type AfterTransferHook func(TransferResultContext) error

// OnTransferFailureHook is called when a transfer, transferFrom or approve fails
type OnTransferFailureHook func(TransferFailureContext) error
