package permitledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/x402-foundation/permitledger/mechanisms/evm"
)

// LedgerConfig describes the token a Ledger serves
type LedgerConfig struct {
	Name     string
	Symbol   string
	Decimals uint8 // zero selects evm.DefaultDecimals

	// Version is the EIP-712 domain version, "1" when empty
	Version string

	// InitialSupply is credited to Deployer at creation
	InitialSupply *big.Int
	Deployer      common.Address

	// VerifyingContract is the ledger identity bound into every permit.
	// When zero it is derived as the first contract created by Deployer.
	VerifyingContract common.Address
}

// ChainIDProvider reports the chain id of the execution environment
type ChainIDProvider interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// ChainIDFunc adapts a function to ChainIDProvider
type ChainIDFunc func(ctx context.Context) (*big.Int, error)

// ChainID implements ChainIDProvider
func (f ChainIDFunc) ChainID(ctx context.Context) (*big.Int, error) {
	return f(ctx)
}

// StaticChainID returns a provider that always reports id
func StaticChainID(id *big.Int) ChainIDProvider {
	fixed := new(big.Int).Set(id)
	return ChainIDFunc(func(context.Context) (*big.Int, error) {
		return new(big.Int).Set(fixed), nil
	})
}

// LedgerOption configures a Ledger
type LedgerOption func(*Ledger)

// WithChainID sets the chain id source. Defaults to the Hardhat chain (31337).
func WithChainID(provider ChainIDProvider) LedgerOption {
	return func(l *Ledger) {
		l.chainID = provider
	}
}

// WithClock sets the time source used for deadline checks
func WithClock(clock func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithScheme replaces the hashing and recovery scheme
func WithScheme(scheme evm.Scheme) LedgerOption {
	return func(l *Ledger) {
		l.scheme = scheme
	}
}

// WithLogger sets the ledger logger
func WithLogger(logger *zap.Logger) LedgerOption {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// Ledger is an EIP-2612 token ledger: balances, allowances and per-owner
// permit nonces behind a single lock, so every mutating call is serializable.
type Ledger struct {
	name     string
	symbol   string
	version  string
	decimals uint8
	address  common.Address

	chainID ChainIDProvider
	clock   func() time.Time
	scheme  evm.Scheme
	logger  *zap.Logger

	mu          sync.RWMutex
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	nonces      map[common.Address]*big.Int
	callNonces  map[common.Address]*big.Int
	gasSpent    map[common.Address]uint64
	sequence    uint64

	// Lifecycle hooks
	hooksMu                sync.RWMutex
	beforePermitHooks      []BeforePermitHook
	afterPermitHooks       []AfterPermitHook
	onPermitFailureHooks   []OnPermitFailureHook
	beforeTransferHooks    []BeforeTransferHook
	afterTransferHooks     []AfterTransferHook
	onTransferFailureHooks []OnTransferFailureHook
}

// NewLedger creates a ledger and credits the initial supply to the deployer
func NewLedger(cfg LedgerConfig, opts ...LedgerOption) (*Ledger, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("token name is required")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("token symbol is required")
	}
	if cfg.Deployer == (common.Address{}) {
		return nil, fmt.Errorf("deployer address is required")
	}
	if !evm.IsUint256(cfg.InitialSupply) {
		return nil, fmt.Errorf("initial supply must be a uint256, got %v", cfg.InitialSupply)
	}

	l := &Ledger{
		name:        cfg.Name,
		symbol:      cfg.Symbol,
		version:     cfg.Version,
		decimals:    cfg.Decimals,
		address:     cfg.VerifyingContract,
		chainID:     StaticChainID(evm.ChainIDHardhat),
		clock:       time.Now,
		scheme:      evm.NewEIP712Scheme(),
		logger:      zap.NewNop(),
		totalSupply: new(big.Int).Set(cfg.InitialSupply),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		nonces:      make(map[common.Address]*big.Int),
		callNonces:  make(map[common.Address]*big.Int),
		gasSpent:    make(map[common.Address]uint64),
	}
	if l.version == "" {
		l.version = evm.DefaultPermitVersion
	}
	if l.decimals == 0 {
		l.decimals = evm.DefaultDecimals
	}
	if l.address == (common.Address{}) {
		l.address = crypto.CreateAddress(cfg.Deployer, 0)
	}

	for _, opt := range opts {
		opt(l)
	}

	l.balances[cfg.Deployer] = new(big.Int).Set(cfg.InitialSupply)

	l.logger.Info("ledger created",
		zap.String("name", l.name),
		zap.String("symbol", l.symbol),
		zap.String("address", l.address.Hex()),
		zap.String("deployer", cfg.Deployer.Hex()),
		zap.String("supply", l.totalSupply.String()),
	)
	return l, nil
}

// ============================================================================
// Hook Registration Methods
// ============================================================================

func (l *Ledger) OnBeforePermit(hook BeforePermitHook) *Ledger {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.beforePermitHooks = append(l.beforePermitHooks, hook)
	return l
}

func (l *Ledger) OnAfterPermit(hook AfterPermitHook) *Ledger {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.afterPermitHooks = append(l.afterPermitHooks, hook)
	return l
}

func (l *Ledger) OnPermitFailure(hook OnPermitFailureHook) *Ledger {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.onPermitFailureHooks = append(l.onPermitFailureHooks, hook)
	return l
}

func (l *Ledger) OnBeforeTransfer(hook BeforeTransferHook) *Ledger {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.beforeTransferHooks = append(l.beforeTransferHooks, hook)
	return l
}

func (l *Ledger) OnAfterTransfer(hook AfterTransferHook) *Ledger {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.afterTransferHooks = append(l.afterTransferHooks, hook)
	return l
}

func (l *Ledger) OnTransferFailure(hook OnTransferFailureHook) *Ledger {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.onTransferFailureHooks = append(l.onTransferFailureHooks, hook)
	return l
}

// ============================================================================
// Read Methods
// ============================================================================

func (l *Ledger) Name() string   { return l.name }
func (l *Ledger) Symbol() string { return l.symbol }
func (l *Ledger) Decimals() uint8 {
	return l.decimals
}

// Address returns the verifying-contract identity of the ledger
func (l *Ledger) Address() common.Address {
	return l.address
}

// TotalSupply returns the sum of all balances
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalSupply)
}

// BalanceOf returns the balance of addr
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyOrZero(l.balances[addr])
}

// Allowance returns the remaining amount spender may move from owner
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyOrZero(l.allowanceLocked(owner, spender))
}

// Nonces returns the owner's current permit nonce
func (l *Ledger) Nonces(owner common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyOrZero(l.nonces[owner])
}

// CallNonces returns the account's current signed-call nonce
func (l *Ledger) CallNonces(account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyOrZero(l.callNonces[account])
}

// GasSpent returns the total execution cost charged to addr
func (l *Ledger) GasSpent(addr common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.gasSpent[addr]
}

// Info returns the token metadata and current supply
func (l *Ledger) Info() TokenInfo {
	return TokenInfo{
		Name:        l.name,
		Symbol:      l.symbol,
		Decimals:    l.decimals,
		TotalSupply: l.TotalSupply(),
		Address:     l.address,
	}
}

// Domain returns the EIP-712 domain with the live chain id
func (l *Ledger) Domain(ctx context.Context) (evm.TypedDataDomain, error) {
	chainID, err := l.chainID.ChainID(ctx)
	if err != nil {
		return evm.TypedDataDomain{}, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return evm.TypedDataDomain{}, fmt.Errorf("%w: invalid chain id %v", ErrChainUnavailable, chainID)
	}

	return evm.TypedDataDomain{
		Name:              l.name,
		Version:           l.version,
		ChainID:           chainID,
		VerifyingContract: l.address.Hex(),
	}, nil
}

// DomainSeparator returns the EIP-712 domain separator under the live chain id
func (l *Ledger) DomainSeparator(ctx context.Context) (common.Hash, error) {
	domain, err := l.Domain(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return evm.HashDomain(domain)
}

// ============================================================================
// Mutating Methods
// ============================================================================

// Permit verifies an owner-signed authorization and, if valid, consumes the
// owner's nonce and sets allowance[owner][spender] = value in one step.
//
// Checks, in order: deadline (inclusive), message reconstruction with the
// owner's current nonce and the live domain, canonical signature recovery,
// recovered address equals owner. Any failure leaves nonces and allowances
// untouched; the execution cost is still charged to sender.
func (l *Ledger) Permit(ctx context.Context, sender common.Address, req PermitRequest) (*Receipt, error) {
	start := time.Now()
	hookCtx := PermitContext{
		Ctx:       ctx,
		Sender:    sender,
		Request:   req,
		Timestamp: start,
	}

	l.hooksMu.RLock()
	beforeHooks := l.beforePermitHooks
	l.hooksMu.RUnlock()
	for _, hook := range beforeHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Abort {
			return nil, NewLedgerError(ErrCodeAborted, result.Reason, nil)
		}
	}

	receipt, err := l.permit(ctx, sender, req)
	if err != nil {
		l.logger.Debug("permit rejected",
			zap.String("owner", req.Owner.Hex()),
			zap.String("spender", req.Spender.Hex()),
			zap.Error(err),
		)

		failureCtx := PermitFailureContext{PermitContext: hookCtx, Error: err, Duration: time.Since(start)}
		l.hooksMu.RLock()
		failureHooks := l.onPermitFailureHooks
		l.hooksMu.RUnlock()
		for _, hook := range failureHooks {
			if hookErr := hook(failureCtx); hookErr != nil {
				l.logger.Warn("permit failure hook error", zap.Error(hookErr))
			}
		}
		return nil, err
	}

	l.logger.Debug("permit consumed",
		zap.String("owner", req.Owner.Hex()),
		zap.String("spender", req.Spender.Hex()),
		zap.String("value", req.Value.String()),
		zap.Uint64("sequence", receipt.Sequence),
	)

	resultCtx := PermitResultContext{PermitContext: hookCtx, Receipt: receipt, Duration: time.Since(start)}
	l.hooksMu.RLock()
	afterHooks := l.afterPermitHooks
	l.hooksMu.RUnlock()
	for _, hook := range afterHooks {
		if hookErr := hook(resultCtx); hookErr != nil {
			l.logger.Warn("after permit hook error", zap.Error(hookErr))
		}
	}
	return receipt, nil
}

func (l *Ledger) permit(ctx context.Context, sender common.Address, req PermitRequest) (*Receipt, error) {
	if sender == (common.Address{}) {
		return nil, ErrInvalidSender
	}

	// Read the live domain before taking the lock; chain id lookups may block.
	domain, err := l.Domain(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.chargeLocked(sender, OperationPermit)
	now := l.clock()

	// 1. Deadline is inclusive
	if err := checkDeadline(now, req.Deadline, "permit"); err != nil {
		return nil, err
	}

	if req.Owner == (common.Address{}) {
		return nil, NewLedgerError(ErrCodeInvalidSender, "permit owner is the zero address", nil)
	}
	if req.Spender == (common.Address{}) {
		return nil, NewLedgerError(ErrCodeInvalidSpender, "permit spender is the zero address", nil)
	}
	if !evm.IsUint256(req.Value) {
		return nil, NewLedgerError(ErrCodeInvalidAmount, "permit value out of uint256 range", nil)
	}

	// 2. Rebuild the message with the current nonce
	nonce := copyOrZero(l.nonces[req.Owner])
	message := evm.PermitMessage{
		Owner:    req.Owner,
		Spender:  req.Spender,
		Value:    req.Value,
		Nonce:    nonce,
		Deadline: req.Deadline,
	}
	digest, err := l.scheme.Hash(domain, message)
	if err != nil {
		return nil, NewLedgerError(ErrCodeInvalidSignature, err.Error(), nil)
	}

	// 3. Recover
	signer, err := l.scheme.Recover(digest, req.Signature)
	if err != nil {
		return nil, NewLedgerError(ErrCodeInvalidSignature, err.Error(), nil)
	}

	// 4. Owner match
	if signer != req.Owner {
		return nil, NewLedgerError(ErrCodeSignerMismatch, "recovered signer does not match owner", map[string]interface{}{
			"owner":     req.Owner.Hex(),
			"recovered": signer.Hex(),
			"nonce":     nonce.String(),
		})
	}

	// 5. Commit
	l.nonces[req.Owner] = nonce.Add(nonce, big.NewInt(1))
	l.setAllowanceLocked(req.Owner, req.Spender, req.Value)

	return l.receiptLocked(OperationPermit, sender, now,
		req.Owner.Bytes(), req.Spender.Bytes(), common.BigToHash(req.Value).Bytes(), req.Signature.Bytes()), nil
}

// TransferFrom moves value from from to to using spender's allowance.
// An allowance of evm.MaxUint256 is unlimited and is not decremented.
func (l *Ledger) TransferFrom(ctx context.Context, spender, from, to common.Address, value *big.Int) (*Receipt, error) {
	return l.runTransfer(TransferContext{
		Ctx:       ctx,
		Operation: OperationTransferFrom,
		Sender:    spender,
		From:      from,
		To:        to,
		Value:     value,
	}, l.direct(l.transferFromLocked))
}

// Transfer moves value from from (the sender) to to
func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, value *big.Int) (*Receipt, error) {
	return l.runTransfer(TransferContext{
		Ctx:       ctx,
		Operation: OperationTransfer,
		Sender:    from,
		From:      from,
		To:        to,
		Value:     value,
	}, l.direct(l.transferLocked))
}

// Approve sets allowance[owner][spender] = value, exactly as a consumed permit does
func (l *Ledger) Approve(ctx context.Context, owner, spender common.Address, value *big.Int) (*Receipt, error) {
	return l.runTransfer(TransferContext{
		Ctx:       ctx,
		Operation: OperationApprove,
		Sender:    owner,
		From:      owner,
		To:        spender,
		Value:     value,
	}, l.direct(l.approveLocked))
}

// Execute runs a transfer, approve or transferFrom authorized by the sender's
// LedgerCall signature. The signature is checked like a permit's: deadline,
// message rebuilt with the sender's current call nonce and the live domain,
// canonical recovery, recovered address equals sender. The call nonce is
// consumed only when the operation itself succeeds.
func (l *Ledger) Execute(ctx context.Context, req CallRequest) (*Receipt, error) {
	var op lockedOp
	switch req.Operation {
	case OperationTransfer:
		op = l.transferLocked
	case OperationApprove:
		op = l.approveLocked
	case OperationTransferFrom:
		op = l.transferFromLocked
	default:
		return nil, NewLedgerError(ErrCodeInvalidOperation, fmt.Sprintf("%q cannot be signed as a call", req.Operation), nil)
	}

	if req.From == (common.Address{}) && req.Operation != OperationTransferFrom {
		req.From = req.Sender
	}
	if req.From != req.Sender && req.Operation != OperationTransferFrom {
		return nil, NewLedgerError(ErrCodeInvalidSender, "from must be the sender", map[string]interface{}{
			"sender": req.Sender.Hex(),
			"from":   req.From.Hex(),
		})
	}

	domain, err := l.Domain(ctx)
	if err != nil {
		return nil, err
	}

	return l.runTransfer(TransferContext{
		Ctx:       ctx,
		Operation: req.Operation,
		Sender:    req.Sender,
		From:      req.From,
		To:        req.To,
		Value:     req.Value,
	}, l.signed(domain, req, op))
}

func (l *Ledger) runTransfer(hookCtx TransferContext, op func(TransferContext) (*Receipt, error)) (*Receipt, error) {
	start := time.Now()
	hookCtx.Timestamp = start

	l.hooksMu.RLock()
	beforeHooks := l.beforeTransferHooks
	l.hooksMu.RUnlock()
	for _, hook := range beforeHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Abort {
			return nil, NewLedgerError(ErrCodeAborted, result.Reason, nil)
		}
	}

	receipt, err := op(hookCtx)
	if err != nil {
		l.logger.Debug("transfer rejected",
			zap.String("operation", string(hookCtx.Operation)),
			zap.String("from", hookCtx.From.Hex()),
			zap.String("to", hookCtx.To.Hex()),
			zap.Error(err),
		)

		failureCtx := TransferFailureContext{TransferContext: hookCtx, Error: err, Duration: time.Since(start)}
		l.hooksMu.RLock()
		failureHooks := l.onTransferFailureHooks
		l.hooksMu.RUnlock()
		for _, hook := range failureHooks {
			if hookErr := hook(failureCtx); hookErr != nil {
				l.logger.Warn("transfer failure hook error", zap.Error(hookErr))
			}
		}
		return nil, err
	}

	resultCtx := TransferResultContext{TransferContext: hookCtx, Receipt: receipt, Duration: time.Since(start)}
	l.hooksMu.RLock()
	afterHooks := l.afterTransferHooks
	l.hooksMu.RUnlock()
	for _, hook := range afterHooks {
		if hookErr := hook(resultCtx); hookErr != nil {
			l.logger.Warn("after transfer hook error", zap.Error(hookErr))
		}
	}
	return receipt, nil
}

// lockedOp applies one operation; callers hold l.mu and have charged gas
type lockedOp func(TransferContext) (*Receipt, error)

// direct runs op for a sender that is trusted to be who it says it is
func (l *Ledger) direct(op lockedOp) func(TransferContext) (*Receipt, error) {
	return func(tc TransferContext) (*Receipt, error) {
		if tc.Sender == (common.Address{}) {
			return nil, ErrInvalidSender
		}

		l.mu.Lock()
		defer l.mu.Unlock()

		l.chargeLocked(tc.Sender, tc.Operation)
		return op(tc)
	}
}

// signed runs op only if req carries a valid LedgerCall signature by its sender
func (l *Ledger) signed(domain evm.TypedDataDomain, req CallRequest, op lockedOp) func(TransferContext) (*Receipt, error) {
	return func(tc TransferContext) (*Receipt, error) {
		if tc.Sender == (common.Address{}) {
			return nil, ErrInvalidSender
		}

		l.mu.Lock()
		defer l.mu.Unlock()

		l.chargeLocked(tc.Sender, tc.Operation)
		now := l.clock()

		if err := checkDeadline(now, req.Deadline, "call"); err != nil {
			return nil, err
		}
		if !evm.IsUint256(req.Value) {
			return nil, ErrInvalidAmount
		}

		nonce := copyOrZero(l.callNonces[req.Sender])
		digest, err := evm.HashLedgerCall(domain, evm.CallMessage{
			Operation: string(req.Operation),
			Sender:    req.Sender,
			From:      req.From,
			To:        req.To,
			Value:     req.Value,
			Nonce:     nonce,
			Deadline:  req.Deadline,
		})
		if err != nil {
			return nil, NewLedgerError(ErrCodeInvalidSignature, err.Error(), nil)
		}
		signer, err := l.scheme.Recover(digest, req.Signature)
		if err != nil {
			return nil, NewLedgerError(ErrCodeInvalidSignature, err.Error(), nil)
		}
		if signer != req.Sender {
			return nil, NewLedgerError(ErrCodeSignerMismatch, "recovered signer does not match sender", map[string]interface{}{
				"sender":    req.Sender.Hex(),
				"recovered": signer.Hex(),
				"nonce":     nonce.String(),
			})
		}

		receipt, err := op(tc)
		if err != nil {
			return nil, err
		}
		l.callNonces[req.Sender] = nonce.Add(nonce, big.NewInt(1))
		return receipt, nil
	}
}

func (l *Ledger) transferFromLocked(tc TransferContext) (*Receipt, error) {
	if err := validateMove(tc.From, tc.To, tc.Value); err != nil {
		return nil, err
	}

	allowance := copyOrZero(l.allowanceLocked(tc.From, tc.Sender))
	if allowance.Cmp(tc.Value) < 0 {
		return nil, NewLedgerError(ErrCodeInsufficientAllowance, "insufficient allowance", map[string]interface{}{
			"allowance": allowance.String(),
			"value":     tc.Value.String(),
		})
	}
	balance := copyOrZero(l.balances[tc.From])
	if balance.Cmp(tc.Value) < 0 {
		return nil, NewLedgerError(ErrCodeInsufficientBalance, "insufficient balance", map[string]interface{}{
			"balance": balance.String(),
			"value":   tc.Value.String(),
		})
	}

	if allowance.Cmp(evm.MaxUint256()) != 0 {
		l.setAllowanceLocked(tc.From, tc.Sender, allowance.Sub(allowance, tc.Value))
	}
	l.moveLocked(tc.From, tc.To, tc.Value)

	return l.receiptLocked(OperationTransferFrom, tc.Sender, l.clock(),
		tc.From.Bytes(), tc.To.Bytes(), common.BigToHash(tc.Value).Bytes()), nil
}

func (l *Ledger) transferLocked(tc TransferContext) (*Receipt, error) {
	if err := validateMove(tc.From, tc.To, tc.Value); err != nil {
		return nil, err
	}

	balance := copyOrZero(l.balances[tc.From])
	if balance.Cmp(tc.Value) < 0 {
		return nil, NewLedgerError(ErrCodeInsufficientBalance, "insufficient balance", map[string]interface{}{
			"balance": balance.String(),
			"value":   tc.Value.String(),
		})
	}
	l.moveLocked(tc.From, tc.To, tc.Value)

	return l.receiptLocked(OperationTransfer, tc.Sender, l.clock(),
		tc.To.Bytes(), common.BigToHash(tc.Value).Bytes()), nil
}

func (l *Ledger) approveLocked(tc TransferContext) (*Receipt, error) {
	if tc.To == (common.Address{}) {
		return nil, ErrInvalidSpender
	}
	if !evm.IsUint256(tc.Value) {
		return nil, ErrInvalidAmount
	}
	l.setAllowanceLocked(tc.From, tc.To, tc.Value)

	return l.receiptLocked(OperationApprove, tc.Sender, l.clock(),
		tc.To.Bytes(), common.BigToHash(tc.Value).Bytes()), nil
}

// ============================================================================
// Internal helpers (callers hold l.mu)
// ============================================================================

// checkDeadline rejects a missing or out-of-range deadline and one that has passed
func checkDeadline(now time.Time, deadline *big.Int, kind string) error {
	if !evm.IsUint256(deadline) {
		return NewLedgerError(ErrCodeInvalidAmount, kind+" deadline out of uint256 range", nil)
	}
	if big.NewInt(now.Unix()).Cmp(deadline) > 0 {
		return NewLedgerError(ErrCodeExpired, kind+" deadline has passed", map[string]interface{}{
			"deadline": deadline.String(),
			"now":      now.Unix(),
		})
	}
	return nil
}

func validateMove(from, to common.Address, value *big.Int) error {
	if from == (common.Address{}) {
		return ErrInvalidSender
	}
	if to == (common.Address{}) {
		return ErrInvalidReceiver
	}
	if !evm.IsUint256(value) {
		return ErrInvalidAmount
	}
	return nil
}

func (l *Ledger) chargeLocked(sender common.Address, op Operation) {
	l.gasSpent[sender] += op.GasCost()
}

func (l *Ledger) allowanceLocked(owner, spender common.Address) *big.Int {
	if spenders, ok := l.allowances[owner]; ok {
		return spenders[spender]
	}
	return nil
}

func (l *Ledger) setAllowanceLocked(owner, spender common.Address, value *big.Int) {
	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		l.allowances[owner] = spenders
	}
	spenders[spender] = new(big.Int).Set(value)
}

func (l *Ledger) moveLocked(from, to common.Address, value *big.Int) {
	l.balances[from] = new(big.Int).Sub(copyOrZero(l.balances[from]), value)
	l.balances[to] = new(big.Int).Add(copyOrZero(l.balances[to]), value)
}

func (l *Ledger) receiptLocked(op Operation, sender common.Address, now time.Time, args ...[]byte) *Receipt {
	l.sequence++

	// the timestamp keeps hashes distinct across restarts that reuse sequences
	seq := make([]byte, 16)
	binary.BigEndian.PutUint64(seq, l.sequence)
	binary.BigEndian.PutUint64(seq[8:], uint64(now.UnixNano()))
	parts := append([][]byte{[]byte(op), l.address.Bytes(), sender.Bytes(), seq}, args...)

	return &Receipt{
		TxHash:    crypto.Keccak256Hash(parts...),
		Sequence:  l.sequence,
		Operation: op,
		Sender:    sender,
		GasUsed:   op.GasCost(),
		Timestamp: now,
	}
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
