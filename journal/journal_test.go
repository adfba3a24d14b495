package journal

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/x402-foundation/permitledger"
)

var (
	owner   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	spender = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func newLedger(t *testing.T) *permitledger.Ledger {
	t.Helper()
	ledger, err := permitledger.NewLedger(permitledger.LedgerConfig{
		Name:          "Token",
		Symbol:        "TKN",
		InitialSupply: big.NewInt(10),
		Deployer:      owner,
	})
	require.NoError(t, err)
	return ledger
}

func TestMemoryJournal(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()

	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, j.Append(ctx, Entry{Sequence: seq, TxHash: fmt.Sprintf("0x%02x", seq), Operation: "transfer"}))
	}
	require.NoError(t, j.Append(ctx, Entry{Sequence: 2, TxHash: "0x02", Operation: "approve"}))

	entries, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(3), entries[0].Sequence)
	assert.Equal(t, "transfer", entries[1].Operation, "duplicate tx hash must not overwrite")

	entries, err = j.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryJournalKeepsReusedSequences(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	start := time.Unix(1_700_000_000, 0)

	// a restarted ledger numbers its receipts from 1 again
	require.NoError(t, j.Append(ctx, Entry{Sequence: 1, TxHash: "0xaa", Operation: "transfer", Timestamp: start}))
	require.NoError(t, j.Append(ctx, Entry{Sequence: 1, TxHash: "0xbb", Operation: "approve", Timestamp: start.Add(time.Hour)}))

	entries, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0xbb", entries[0].TxHash, "newest first")
	assert.Equal(t, "0xaa", entries[1].TxHash)
}

func TestAttachAcrossLedgerRestart(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()

	for run := 0; run < 2; run++ {
		ledger := newLedger(t)
		Attach(ledger, j, nil)
		receipt, err := ledger.Transfer(ctx, owner, spender, big.NewInt(1))
		require.NoError(t, err)
		require.Equal(t, uint64(1), receipt.Sequence)
	}

	entries, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].TxHash, entries[1].TxHash)
}

func TestAttachRecordsSuccessfulOperations(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	j := NewMemoryJournal()
	Attach(ledger, j, nil)

	approve, err := ledger.Approve(ctx, owner, spender, big.NewInt(5))
	require.NoError(t, err)
	_, err = ledger.TransferFrom(ctx, spender, owner, spender, big.NewInt(2))
	require.NoError(t, err)
	_, err = ledger.Transfer(ctx, owner, spender, big.NewInt(100))
	require.Error(t, err)

	entries, err := j.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	last := entries[0]
	assert.Equal(t, "transferFrom", last.Operation)
	assert.Equal(t, spender.Hex(), last.Sender)
	assert.Equal(t, owner.Hex(), last.From)
	assert.Equal(t, "2", last.Value)
	assert.Equal(t, permitledger.GasTransferFrom, last.GasUsed)

	first := entries[1]
	assert.Equal(t, approve.TxHash.Hex(), first.TxHash)
	assert.Equal(t, spender.Hex(), first.To)
}

type failingJournal struct{ MemoryJournal }

func (failingJournal) Append(context.Context, Entry) error {
	return errors.New("disk full")
}

func TestAttachLogsWriteFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	ledger := newLedger(t)
	Attach(ledger, &failingJournal{}, zap.New(core))

	_, err := ledger.Transfer(context.Background(), owner, spender, big.NewInt(1))
	require.NoError(t, err, "journal errors never fail the operation")

	require.Equal(t, 1, logs.FilterMessage("failed to journal operation").Len())
}

func TestNewEntry(t *testing.T) {
	receipt := &permitledger.Receipt{
		Sequence:  7,
		Operation: permitledger.OperationPermit,
		Sender:    spender,
		GasUsed:   permitledger.GasPermit,
		Timestamp: time.Unix(1_700_000_000, 0),
	}
	e := NewEntry(receipt, owner.Hex(), spender.Hex(), nil)
	assert.Equal(t, "0", e.Value)
	assert.Equal(t, "permit", e.Operation)
	assert.Equal(t, uint64(7), e.Sequence)
}

func TestPostgresJournal(t *testing.T) {
	dsn := os.Getenv("PERMIT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PERMIT_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	j, err := NewPostgresJournal(ctx, dsn, "journal_test_"+time.Now().Format("150405"))
	require.NoError(t, err)
	defer j.Close()

	entry := Entry{Sequence: 1, TxHash: "0x01", Operation: "transfer", Sender: owner.Hex(),
		From: owner.Hex(), To: spender.Hex(), Value: "1", GasUsed: 35000, Timestamp: time.Now().UTC()}
	require.NoError(t, j.Append(ctx, entry))
	require.NoError(t, j.Append(ctx, entry))

	entries, err := j.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "transfer", entries[0].Operation)

	// same sequence from a restarted ledger, new tx hash
	restarted := entry
	restarted.TxHash = "0x02"
	restarted.Timestamp = entry.Timestamp.Add(time.Second)
	require.NoError(t, j.Append(ctx, restarted))

	entries, err = j.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0x02", entries[0].TxHash)
	assert.Equal(t, "0x01", entries[1].TxHash)
}
