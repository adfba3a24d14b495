package http

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/x402-foundation/permitledger"
	"github.com/x402-foundation/permitledger/mechanisms/evm"
	"github.com/x402-foundation/permitledger/types"
)

// Error codes produced by the HTTP layer itself
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeRelayDisabled  = "relay_disabled"
	ErrCodeInternal       = "internal_error"
)

// Response is a status code and JSON body, written by the framework adapter
type Response struct {
	Status int
	Body   interface{}
}

// RelayExecutor runs the permit-then-transferFrom sequence
type RelayExecutor interface {
	Relay(ctx context.Context, permit types.SignedPermit, to common.Address, amount *big.Int) (*permitledger.RelayResult, error)
}

// KeyedRelayExecutor additionally deduplicates relays by a caller key
type KeyedRelayExecutor interface {
	RelayExecutor
	RelayWithKey(ctx context.Context, key string, permit types.SignedPermit, to common.Address, amount *big.Int) (*permitledger.RelayResult, error)
}

// HandlerOption configures Handlers
type HandlerOption func(*Handlers)

// WithRelay enables POST /relay
func WithRelay(relay RelayExecutor) HandlerOption {
	return func(h *Handlers) {
		h.relay = relay
	}
}

// WithHandlerLogger sets the logger used for unexpected errors
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Handlers implements the ledger API independent of any web framework
type Handlers struct {
	backend permitledger.Backend
	relay   RelayExecutor
	logger  *zap.Logger
}

// NewHandlers creates handlers over backend
func NewHandlers(backend permitledger.Backend, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		backend: backend,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health reports liveness
func (h *Handlers) Health() Response {
	return Response{Status: http.StatusOK, Body: map[string]string{"status": "ok"}}
}

// TokenInfo serves GET /token
func (h *Handlers) TokenInfo(ctx context.Context) Response {
	info, err := h.backend.TokenInfo(ctx)
	if err != nil {
		return h.errorResponse(err)
	}
	return Response{Status: http.StatusOK, Body: info.ToWire()}
}

// Domain serves GET /domain with the live chain id
func (h *Handlers) Domain(ctx context.Context) Response {
	domain, err := h.backend.Domain(ctx)
	if err != nil {
		return h.errorResponse(err)
	}
	separator, err := evm.HashDomain(domain)
	if err != nil {
		return h.errorResponse(err)
	}
	return Response{Status: http.StatusOK, Body: types.Domain{
		Name:              domain.Name,
		Version:           domain.Version,
		ChainID:           domain.ChainID.String(),
		VerifyingContract: evm.NormalizeAddress(domain.VerifyingContract),
		Separator:         separator.Hex(),
	}}
}

// BalanceOf serves GET /balances/:address
func (h *Handlers) BalanceOf(ctx context.Context, address string) Response {
	addr, errResp := parseAddressParam("address", address)
	if errResp != nil {
		return *errResp
	}
	return h.amount(h.backend.BalanceOf(ctx, addr))
}

// Allowance serves GET /allowances/:owner/:spender
func (h *Handlers) Allowance(ctx context.Context, owner, spender string) Response {
	ownerAddr, errResp := parseAddressParam("owner", owner)
	if errResp != nil {
		return *errResp
	}
	spenderAddr, errResp := parseAddressParam("spender", spender)
	if errResp != nil {
		return *errResp
	}
	return h.amount(h.backend.Allowance(ctx, ownerAddr, spenderAddr))
}

// Nonces serves GET /nonces/:address
func (h *Handlers) Nonces(ctx context.Context, address string) Response {
	addr, errResp := parseAddressParam("address", address)
	if errResp != nil {
		return *errResp
	}
	return h.amount(h.backend.Nonces(ctx, addr))
}

// CallNonces serves GET /callNonces/:address
func (h *Handlers) CallNonces(ctx context.Context, address string) Response {
	addr, errResp := parseAddressParam("address", address)
	if errResp != nil {
		return *errResp
	}
	return h.amount(h.backend.CallNonces(ctx, addr))
}

// Permit serves POST /permit. sender pays for the call; the permit itself
// is authorized by the owner's signature.
func (h *Handlers) Permit(ctx context.Context, sender string, body []byte) Response {
	senderAddr, errResp := parseSender(sender)
	if errResp != nil {
		return *errResp
	}

	var permit types.SignedPermit
	if errResp := decodeBody(PermitSchema, body, &permit); errResp != nil {
		return *errResp
	}
	req, err := permitledger.ParsePermitRequest(permit)
	if err != nil {
		return badRequest(ErrCodeInvalidRequest, err.Error())
	}

	return h.receipt(h.backend.Permit(ctx, senderAddr, req))
}

// Transfer serves POST /transfer. The body is a call signed by the sender.
func (h *Handlers) Transfer(ctx context.Context, body []byte) Response {
	return h.execute(ctx, permitledger.OperationTransfer, CallSchema, body)
}

// TransferFrom serves POST /transferFrom. The body is a call signed by the spender.
func (h *Handlers) TransferFrom(ctx context.Context, body []byte) Response {
	return h.execute(ctx, permitledger.OperationTransferFrom, TransferFromCallSchema, body)
}

// Approve serves POST /approve. The body is a call signed by the owner, with
// to naming the spender.
func (h *Handlers) Approve(ctx context.Context, body []byte) Response {
	return h.execute(ctx, permitledger.OperationApprove, CallSchema, body)
}

func (h *Handlers) execute(ctx context.Context, op permitledger.Operation, schema *gojsonschema.Schema, body []byte) Response {
	var call types.SignedCall
	if errResp := decodeBody(schema, body, &call); errResp != nil {
		return *errResp
	}
	req, err := permitledger.ParseCallRequest(op, call)
	if err != nil {
		return badRequest(ErrCodeInvalidRequest, err.Error())
	}

	return h.receipt(h.backend.Execute(ctx, req))
}

// Relay serves POST /relay. idempotencyKey overrides the body field when set.
func (h *Handlers) Relay(ctx context.Context, idempotencyKey string, body []byte) Response {
	if h.relay == nil {
		return Response{Status: http.StatusNotImplemented, Body: types.ErrorResponse{
			Code:    ErrCodeRelayDisabled,
			Message: "relay is not configured on this server",
		}}
	}

	var req types.RelayRequest
	if errResp := decodeBody(RelaySchema, body, &req); errResp != nil {
		return *errResp
	}
	amount, err := evm.ParseUint256(req.Amount)
	if err != nil {
		return badRequest(ErrCodeInvalidRequest, err.Error())
	}
	to := common.HexToAddress(req.To)

	key := req.IdempotencyKey
	if idempotencyKey != "" {
		key = idempotencyKey
	}

	var result *permitledger.RelayResult
	if keyed, ok := h.relay.(KeyedRelayExecutor); ok && key != "" {
		result, err = keyed.RelayWithKey(ctx, key, req.Permit, to, amount)
	} else {
		result, err = h.relay.Relay(ctx, req.Permit, to, amount)
	}
	if err != nil {
		return h.errorResponse(err)
	}
	return Response{Status: http.StatusOK, Body: result.ToWire()}
}

func (h *Handlers) amount(value *big.Int, err error) Response {
	if err != nil {
		return h.errorResponse(err)
	}
	return Response{Status: http.StatusOK, Body: types.AmountResponse{Value: value.String()}}
}

func (h *Handlers) receipt(receipt *permitledger.Receipt, err error) Response {
	if err != nil {
		return h.errorResponse(err)
	}
	return Response{Status: http.StatusOK, Body: receipt.ToWire()}
}

func (h *Handlers) errorResponse(err error) Response {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("ledger request failed", zap.Error(err))
	}
	return Response{Status: status, Body: ErrorBody(err)}
}

// StatusForError maps ledger errors onto HTTP status codes
func StatusForError(err error) int {
	var relayErr *permitledger.RelayError
	if errors.As(err, &relayErr) && relayErr.Stage == permitledger.RelayStageDecode {
		return http.StatusBadRequest
	}

	var ledgerErr *permitledger.LedgerError
	if !errors.As(err, &ledgerErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}

	switch ledgerErr.Code {
	case permitledger.ErrCodeInvalidAmount,
		permitledger.ErrCodeInvalidOperation,
		permitledger.ErrCodeInvalidReceiver,
		permitledger.ErrCodeInvalidSpender,
		permitledger.ErrCodeInvalidSender:
		return http.StatusBadRequest
	case permitledger.ErrCodeExpired,
		permitledger.ErrCodeInvalidSignature,
		permitledger.ErrCodeSignerMismatch:
		return http.StatusUnauthorized
	case permitledger.ErrCodeInsufficientAllowance,
		permitledger.ErrCodeInsufficientBalance:
		return http.StatusPaymentRequired
	case permitledger.ErrCodeAborted,
		permitledger.ErrCodeIdempotencyConflict:
		return http.StatusConflict
	case permitledger.ErrCodeChainUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody converts an error into the JSON error body
func ErrorBody(err error) types.ErrorResponse {
	body := types.ErrorResponse{Code: ErrCodeInternal, Message: err.Error()}

	var relayErr *permitledger.RelayError
	if errors.As(err, &relayErr) {
		body.Stage = string(relayErr.Stage)
		if relayErr.Stage == permitledger.RelayStageDecode {
			body.Code = ErrCodeInvalidRequest
		}
	}

	var ledgerErr *permitledger.LedgerError
	if errors.As(err, &ledgerErr) {
		body.Code = ledgerErr.Code
		body.Message = ledgerErr.Message
		body.Details = ledgerErr.Details
	}
	return body
}

func decodeBody(schema *gojsonschema.Schema, body []byte, v interface{}) *Response {
	if err := ValidateBody(schema, body); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return &Response{Status: http.StatusUnprocessableEntity, Body: types.ErrorResponse{
				Code:    ErrCodeInvalidRequest,
				Message: "request body failed validation",
				Details: map[string]interface{}{"errors": validationErr.Errors},
			}}
		}
		resp := badRequest(ErrCodeBadRequest, err.Error())
		return &resp
	}
	if err := json.Unmarshal(body, v); err != nil {
		resp := badRequest(ErrCodeBadRequest, err.Error())
		return &resp
	}
	return nil
}

func parseSender(sender string) (common.Address, *Response) {
	if sender == "" {
		resp := badRequest(ErrCodeBadRequest, "missing "+HeaderSender+" header")
		return common.Address{}, &resp
	}
	return parseAddressParam(HeaderSender, sender)
}

func parseAddressParam(name, value string) (common.Address, *Response) {
	addr, err := evm.ParseAddress(value)
	if err != nil {
		resp := badRequest(ErrCodeBadRequest, "invalid "+name+": "+err.Error())
		return common.Address{}, &resp
	}
	return addr, nil
}

func badRequest(code, message string) Response {
	return Response{Status: http.StatusBadRequest, Body: types.ErrorResponse{Code: code, Message: message}}
}
