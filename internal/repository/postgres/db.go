package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/museyou/gongu-go/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in a serializable transaction, retrying serialization
// failures and deadlocks up to txRetries times.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	var err error
	for attempt := 0; attempt <= txRetries; attempt++ {
		err = s.runTxOnce(ctx, txOpts, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}

	return err
}

const txRetries = 3

func (s *Store) runTxOnce(
	ctx context.Context,
	opts pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) GroupPurchases() repository.GroupPurchaseRepository {
	return &GroupPurchaseRepo{store: s, pool: s.pool}
}

func (s *Store) Performances() repository.PerformanceRepository {
	return &PerformanceRepo{pool: s.pool}
}
