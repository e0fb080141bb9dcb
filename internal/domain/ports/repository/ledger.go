package repository

import "context"

// BalanceLedger is the accounting collaborator. Reserve must be atomic with
// respect to concurrent reservations for the same owner: two racing calls may
// never both pass a stale balance check.
type BalanceLedger interface {
	Balance(ctx context.Context, tx Tx, ownerID string) (int64, error)
	// Reserve deducts amount from the owner's balance, failing with
	// domain.ErrInsufficientBalance when the floor would be crossed.
	Reserve(ctx context.Context, tx Tx, ownerID string, amount int64) error
	Credit(ctx context.Context, tx Tx, ownerID string, amount int64) error
}
