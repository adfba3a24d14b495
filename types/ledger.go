package types

import "fmt"

// TokenInfo describes the token served by a ledger
type TokenInfo struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
	Address     string `json:"address"`
}

// Domain is the EIP-712 domain a ledger verifies permits under
type Domain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           string `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
	Separator         string `json:"separator,omitempty"`
}

// Receipt is the outcome of a successful mutating call
type Receipt struct {
	TxHash    string `json:"txHash"`
	Sequence  uint64 `json:"sequence"`
	Operation string `json:"operation"`
	Sender    string `json:"sender"`
	GasUsed   uint64 `json:"gasUsed"`
	Timestamp int64  `json:"timestamp"`
}

// AmountResponse carries a single uint256 read (balance, allowance, nonce)
type AmountResponse struct {
	Value string `json:"value"`
}

// SignedCall is a transfer, approve or transferFrom authorized by its
// sender's LedgerCall signature. The operation is given by the route. For
// approve To is the spender; From defaults to Sender except on transferFrom.
type SignedCall struct {
	Sender    string `json:"sender"`
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Value     string `json:"value"`
	Nonce     string `json:"nonce,omitempty"`
	Deadline  string `json:"deadline"`
	Signature string `json:"signature"`
}

// RelayRequest asks a relay to submit a permit and then move Amount to To
type RelayRequest struct {
	Permit         SignedPermit `json:"permit"`
	To             string       `json:"to"`
	Amount         string       `json:"amount"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
}

// RelayResponse reports both receipts of a completed relay
type RelayResponse struct {
	ID              string   `json:"id"`
	PermitReceipt   *Receipt `json:"permitReceipt"`
	TransferReceipt *Receipt `json:"transferReceipt"`
}

// ErrorResponse is the JSON error body returned by the ledger API
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Stage   string                 `json:"stage,omitempty"`
}

// Validate checks the wire format of a signed call. It does not verify the
// signature itself.
func (c SignedCall) Validate() error {
	switch {
	case !addressPattern.MatchString(c.Sender):
		return fmt.Errorf("invalid sender address: %q", c.Sender)
	case c.From != "" && !addressPattern.MatchString(c.From):
		return fmt.Errorf("invalid from address: %q", c.From)
	case !addressPattern.MatchString(c.To):
		return fmt.Errorf("invalid to address: %q", c.To)
	case !numericPattern.MatchString(c.Value):
		return fmt.Errorf("invalid value: %q", c.Value)
	case c.Nonce != "" && !numericPattern.MatchString(c.Nonce):
		return fmt.Errorf("invalid nonce: %q", c.Nonce)
	case !numericPattern.MatchString(c.Deadline):
		return fmt.Errorf("invalid deadline: %q", c.Deadline)
	case !hexPattern.MatchString(c.Signature):
		return fmt.Errorf("invalid signature encoding")
	}
	return nil
}
