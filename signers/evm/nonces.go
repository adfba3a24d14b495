package evm

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	permitevm "github.com/x402-foundation/permitledger/mechanisms/evm"
)

// ContractCaller is the read-only subset of an RPC client needed to query a
// deployed token. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ContractNonceReader reads EIP-2612 nonces from a token contract via eth_call,
// so permits can be built against an on-chain deployment instead of the
// in-process ledger.
type ContractNonceReader struct {
	caller   ContractCaller
	contract common.Address
	abi      abi.ABI
}

// NewContractNonceReader creates a nonce reader for the token at contract
func NewContractNonceReader(caller ContractCaller, contract string) (*ContractNonceReader, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is required")
	}
	address, err := permitevm.ParseAddress(contract)
	if err != nil {
		return nil, err
	}

	parsed, err := abi.JSON(bytes.NewReader(permitevm.EIP2612NoncesABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return &ContractNonceReader{
		caller:   caller,
		contract: address,
		abi:      parsed,
	}, nil
}

// Nonces returns the owner's current permit nonce at the latest block
func (r *ContractNonceReader) Nonces(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := r.abi.Pack(permitevm.FunctionNonces, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}

	outputs, err := r.abi.Unpack(permitevm.FunctionNonces, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected nonces output count: %d", len(outputs))
	}

	nonce, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonces output type %T", outputs[0])
	}
	return nonce, nil
}

var _ permitevm.NonceReader = (*ContractNonceReader)(nil)
