package permitledger

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402-foundation/permitledger/mechanisms/evm"
	"github.com/x402-foundation/permitledger/types"
)

// Operation identifies a mutating ledger call
type Operation string

const (
	OperationPermit       Operation = "permit"
	OperationTransfer     Operation = "transfer"
	OperationTransferFrom Operation = "transferFrom"
	OperationApprove      Operation = "approve"
)

// Execution cost charged to the sender of each mutating call
const (
	GasPermit       uint64 = 50000
	GasTransferFrom uint64 = 40000
	GasTransfer     uint64 = 35000
	GasApprove      uint64 = 30000
)

// GasCost returns the fixed execution cost of an operation
func (o Operation) GasCost() uint64 {
	switch o {
	case OperationPermit:
		return GasPermit
	case OperationTransferFrom:
		return GasTransferFrom
	case OperationTransfer:
		return GasTransfer
	case OperationApprove:
		return GasApprove
	default:
		return 0
	}
}

// PermitRequest carries the arguments of submitAuthorization. The nonce is
// deliberately absent: the ledger always verifies against the owner's
// current nonce.
type PermitRequest struct {
	Owner     common.Address
	Spender   common.Address
	Value     *big.Int
	Deadline  *big.Int
	Signature evm.Signature
}

// CallRequest is a transfer, approve or transferFrom authorized by the
// sender's LedgerCall signature rather than by who submits it. The call
// nonce is absent for the same reason as in PermitRequest.
type CallRequest struct {
	Operation Operation
	Sender    common.Address
	From      common.Address
	To        common.Address
	Value     *big.Int
	Deadline  *big.Int
	Signature evm.Signature
}

// Receipt is the outcome of a successful mutating call
type Receipt struct {
	TxHash    common.Hash    `json:"txHash"`
	Sequence  uint64         `json:"sequence"`
	Operation Operation      `json:"operation"`
	Sender    common.Address `json:"sender"`
	GasUsed   uint64         `json:"gasUsed"`
	Timestamp time.Time      `json:"timestamp"`
}

// ToWire converts the receipt to its wire form
func (r *Receipt) ToWire() *types.Receipt {
	if r == nil {
		return nil
	}
	return &types.Receipt{
		TxHash:    r.TxHash.Hex(),
		Sequence:  r.Sequence,
		Operation: string(r.Operation),
		Sender:    r.Sender.Hex(),
		GasUsed:   r.GasUsed,
		Timestamp: r.Timestamp.Unix(),
	}
}

// TokenInfo describes the token served by a ledger
type TokenInfo struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
	Address     common.Address
}

// ToWire converts the token info to its wire form
func (t TokenInfo) ToWire() types.TokenInfo {
	return types.TokenInfo{
		Name:        t.Name,
		Symbol:      t.Symbol,
		Decimals:    t.Decimals,
		TotalSupply: t.TotalSupply.String(),
		Address:     t.Address.Hex(),
	}
}

// NewSignedPermit packages a signed permit for out-of-band transmission
func NewSignedPermit(domain evm.TypedDataDomain, message evm.PermitMessage, sig evm.Signature) *types.SignedPermit {
	permit := &types.SignedPermit{
		Owner:             message.Owner.Hex(),
		Spender:           message.Spender.Hex(),
		Value:             message.Value.String(),
		Nonce:             message.Nonce.String(),
		Deadline:          message.Deadline.String(),
		Signature:         sig.Hex(),
		VerifyingContract: evm.NormalizeAddress(domain.VerifyingContract),
	}
	if domain.ChainID != nil {
		permit.ChainID = domain.ChainID.String()
	}
	return permit
}

// ParsePermitRequest decodes a wire permit into the arguments of Permit
func ParsePermitRequest(permit types.SignedPermit) (PermitRequest, error) {
	if err := permit.Validate(); err != nil {
		return PermitRequest{}, err
	}

	value, err := evm.ParseUint256(permit.Value)
	if err != nil {
		return PermitRequest{}, fmt.Errorf("invalid value: %w", err)
	}
	deadline, err := evm.ParseUint256(permit.Deadline)
	if err != nil {
		return PermitRequest{}, fmt.Errorf("invalid deadline: %w", err)
	}
	sig, err := evm.ParseSignatureHex(permit.Signature)
	if err != nil {
		return PermitRequest{}, err
	}

	return PermitRequest{
		Owner:     common.HexToAddress(permit.Owner),
		Spender:   common.HexToAddress(permit.Spender),
		Value:     value,
		Deadline:  deadline,
		Signature: sig,
	}, nil
}

// NewSignedCall packages a signed ledger call for submission
func NewSignedCall(message evm.CallMessage, sig evm.Signature) *types.SignedCall {
	return &types.SignedCall{
		Sender:    message.Sender.Hex(),
		From:      message.From.Hex(),
		To:        message.To.Hex(),
		Value:     message.Value.String(),
		Nonce:     message.Nonce.String(),
		Deadline:  message.Deadline.String(),
		Signature: sig.Hex(),
	}
}

// ParseCallRequest decodes a wire call for op into the arguments of Execute
func ParseCallRequest(op Operation, call types.SignedCall) (CallRequest, error) {
	if err := call.Validate(); err != nil {
		return CallRequest{}, err
	}

	value, err := evm.ParseUint256(call.Value)
	if err != nil {
		return CallRequest{}, fmt.Errorf("invalid value: %w", err)
	}
	deadline, err := evm.ParseUint256(call.Deadline)
	if err != nil {
		return CallRequest{}, fmt.Errorf("invalid deadline: %w", err)
	}
	sig, err := evm.ParseSignatureHex(call.Signature)
	if err != nil {
		return CallRequest{}, err
	}

	req := CallRequest{
		Operation: op,
		Sender:    common.HexToAddress(call.Sender),
		To:        common.HexToAddress(call.To),
		Value:     value,
		Deadline:  deadline,
		Signature: sig,
	}
	if call.From != "" {
		req.From = common.HexToAddress(call.From)
	}
	return req, nil
}
