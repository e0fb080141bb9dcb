package repository

import (
	"context"
	"time"

	"media-generation-jobs/internal/domain/model"
)

type JobRepository interface {
	// Save inserts or updates a job record. Terminal rows are only ever
	// rewritten with identical terminal state (idempotent reconciliation).
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// ListByOwner returns non-deleted jobs newest first, optionally filtered
	// by tool. tool == "" means all tools.
	ListByOwner(ctx context.Context, tx Tx, ownerID string, tool model.ToolKind, limit int) ([]*model.Job, error)
	// FindStuckProcessing returns jobs still in 'processing' whose last
	// update is older than the cutoff.
	FindStuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*model.Job, error)
	SoftDelete(ctx context.Context, tx Tx, id string) error
}
