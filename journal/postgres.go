package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJournal stores entries in a single Postgres table
type PostgresJournal struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresJournal connects to dsn and creates the table if needed
func NewPostgresJournal(ctx context.Context, dsn, table string) (*PostgresJournal, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse journal DSN: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create journal pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal database unreachable: %w", err)
	}

	j := &PostgresJournal{pool: pool, table: pgx.Identifier{table}.Sanitize()}
	if err := j.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return j, nil
}

func (j *PostgresJournal) migrate(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+j.table+` (
		tx_hash    TEXT PRIMARY KEY,
		sequence   BIGINT NOT NULL,
		operation  TEXT NOT NULL,
		sender     TEXT NOT NULL,
		from_addr  TEXT NOT NULL,
		to_addr    TEXT NOT NULL,
		value      TEXT NOT NULL,
		gas_used   BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create journal table: %w", err)
	}
	return nil
}

func (j *PostgresJournal) Append(ctx context.Context, e Entry) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO `+j.table+` (sequence, tx_hash, operation, sender, from_addr, to_addr, value, gas_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tx_hash) DO NOTHING`,
		int64(e.Sequence), e.TxHash, e.Operation, e.Sender, e.From, e.To, e.Value, int64(e.GasUsed), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry %s: %w", e.TxHash, err)
	}
	return nil
}

func (j *PostgresJournal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.pool.Query(ctx,
		`SELECT sequence, tx_hash, operation, sender, from_addr, to_addr, value, gas_used, created_at
		 FROM `+j.table+` ORDER BY created_at DESC, sequence DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e        Entry
			seq, gas int64
		)
		if err := row.Scan(&seq, &e.TxHash, &e.Operation, &e.Sender, &e.From, &e.To, &e.Value, &gas, &e.Timestamp); err != nil {
			return Entry{}, err
		}
		e.Sequence = uint64(seq)
		e.GasUsed = uint64(gas)
		return e, nil
	})
}

func (j *PostgresJournal) Close() {
	j.pool.Close()
}
