package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"media-generation-jobs/internal/domain"
	"media-generation-jobs/internal/domain/ports/repository"
)

var _ repository.BalanceLedger = (*ledgerRepo)(nil)

type ledgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *ledgerRepo {
	return &ledgerRepo{pool: pool}
}

func (r *ledgerRepo) Balance(ctx context.Context, tx repository.Tx, ownerID string) (int64, error) {
	const q = `SELECT balance FROM balances WHERE owner_id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, ownerID)
	if err != nil {
		return 0, err
	}
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, domain.ErrReadDatabaseRow
	}
	return balance, nil
}

// Reserve deducts in a single guarded statement. The floor check and the
// decrement are one atomic write, so concurrent reservations cannot both
// spend the same balance.
func (r *ledgerRepo) Reserve(ctx context.Context, tx repository.Tx, ownerID string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidArgument
	}
	const q = `
UPDATE balances
   SET balance = balance - $2, updated_at = now()
 WHERE owner_id = $1 AND balance >= $2;`
	tag, err := execSQL(ctx, r.pool, tx, q, ownerID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Balance(ctx, tx, ownerID); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrInsufficientBalance
	}
	return nil
}

func (r *ledgerRepo) Credit(ctx context.Context, tx repository.Tx, ownerID string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO balances (owner_id, balance, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (owner_id) DO UPDATE SET
  balance = balances.balance + EXCLUDED.balance,
  updated_at = now();`
	_, err := execSQL(ctx, r.pool, tx, q, ownerID, amount)
	return err
}
