package permitledger

import "fmt"

// LedgerError represents a ledger-specific error.
// Two LedgerErrors match under errors.Is when their codes are equal, so
// callers compare against the sentinels below.
type LedgerError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is a LedgerError with the same code
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Common error codes
const (
	ErrCodeExpired               = "expired"
	ErrCodeInvalidSignature      = "invalid_signature"
	ErrCodeSignerMismatch        = "signer_mismatch"
	ErrCodeInsufficientAllowance = "insufficient_allowance"
	ErrCodeInsufficientBalance   = "insufficient_balance"
	ErrCodeInvalidAmount         = "invalid_amount"
	ErrCodeInvalidReceiver       = "invalid_receiver"
	ErrCodeInvalidSpender        = "invalid_spender"
	ErrCodeInvalidSender         = "invalid_sender"
	ErrCodeInvalidOperation      = "invalid_operation"
	ErrCodeAborted               = "aborted"
	ErrCodeIdempotencyConflict   = "idempotency_conflict"
	ErrCodeChainUnavailable      = "chain_unavailable"
)

// Sentinels for errors.Is matching
var (
	ErrExpired               = &LedgerError{Code: ErrCodeExpired, Message: "permit deadline has passed"}
	ErrInvalidSignature      = &LedgerError{Code: ErrCodeInvalidSignature, Message: "invalid signature"}
	ErrSignerMismatch        = &LedgerError{Code: ErrCodeSignerMismatch, Message: "recovered signer does not match owner"}
	ErrInsufficientAllowance = &LedgerError{Code: ErrCodeInsufficientAllowance, Message: "insufficient allowance"}
	ErrInsufficientBalance   = &LedgerError{Code: ErrCodeInsufficientBalance, Message: "insufficient balance"}
	ErrInvalidAmount         = &LedgerError{Code: ErrCodeInvalidAmount, Message: "amount out of uint256 range"}
	ErrInvalidReceiver       = &LedgerError{Code: ErrCodeInvalidReceiver, Message: "invalid receiver"}
	ErrInvalidSpender        = &LedgerError{Code: ErrCodeInvalidSpender, Message: "invalid spender"}
	ErrInvalidSender         = &LedgerError{Code: ErrCodeInvalidSender, Message: "invalid sender"}
	ErrInvalidOperation      = &LedgerError{Code: ErrCodeInvalidOperation, Message: "operation cannot be signed as a call"}
	ErrAborted               = &LedgerError{Code: ErrCodeAborted, Message: "operation aborted by hook"}
	ErrIdempotencyConflict   = &LedgerError{Code: ErrCodeIdempotencyConflict, Message: "idempotency key reused for a different relay"}
	ErrChainUnavailable      = &LedgerError{Code: ErrCodeChainUnavailable, Message: "chain id unavailable"}
)

// NewLedgerError creates a new ledger error
func NewLedgerError(code, message string, details map[string]interface{}) *LedgerError {
	return &LedgerError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// RelayStage names the step of a relay sequence that failed
type RelayStage string

const (
	RelayStageDecode       RelayStage = "decode"
	RelayStagePermit       RelayStage = "permit"
	RelayStageTransferFrom RelayStage = "transferFrom"
)

// RelayError reports the stage at which a relay sequence aborted
type RelayError struct {
	Stage RelayStage
	Err   error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay failed at %s: %v", e.Stage, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}
