// Package journal keeps an append-only record of executed ledger operations.
package journal

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/x402-foundation/permitledger"
)

// Entry is one executed operation
type Entry struct {
	Sequence  uint64    `json:"sequence"`
	TxHash    string    `json:"txHash"`
	Operation string    `json:"operation"`
	Sender    string    `json:"sender"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Value     string    `json:"value"`
	GasUsed   uint64    `json:"gasUsed"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal stores entries keyed by transaction hash. Appending the same
// hash twice is a no-op. Sequences restart with the ledger and may repeat.
type Journal interface {
	Append(ctx context.Context, entry Entry) error
	// List returns up to limit entries, newest first
	List(ctx context.Context, limit int) ([]Entry, error)
	Close()
}

// NewEntry builds an entry from a receipt and the operation parties.
// For permit and approve, from is the owner and to the spender.
func NewEntry(receipt *permitledger.Receipt, from, to string, value *big.Int) Entry {
	v := "0"
	if value != nil {
		v = value.String()
	}
	return Entry{
		Sequence:  receipt.Sequence,
		TxHash:    receipt.TxHash.Hex(),
		Operation: string(receipt.Operation),
		Sender:    receipt.Sender.Hex(),
		From:      from,
		To:        to,
		Value:     v,
		GasUsed:   receipt.GasUsed,
		Timestamp: receipt.Timestamp,
	}
}

// Attach records every successful ledger operation in j. Write failures are
// logged and never affect the operation result.
func Attach(ledger *permitledger.Ledger, j Journal, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	record := func(ctx context.Context, entry Entry) error {
		if err := j.Append(context.WithoutCancel(ctx), entry); err != nil {
			logger.Error("failed to journal operation",
				zap.Uint64("sequence", entry.Sequence),
				zap.String("operation", entry.Operation),
				zap.Error(err),
			)
			return err
		}
		return nil
	}

	ledger.
		OnAfterPermit(func(pc permitledger.PermitResultContext) error {
			req := pc.Request
			return record(ctxOrBackground(pc.Ctx), NewEntry(pc.Receipt, req.Owner.Hex(), req.Spender.Hex(), req.Value))
		}).
		OnAfterTransfer(func(tc permitledger.TransferResultContext) error {
			return record(ctxOrBackground(tc.Ctx), NewEntry(tc.Receipt, tc.From.Hex(), tc.To.Hex(), tc.Value))
		})
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
