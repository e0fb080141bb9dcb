package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"media-generation-jobs/internal/domain"
	"media-generation-jobs/internal/domain/model"
	"media-generation-jobs/internal/domain/ports/adapter"
	"media-generation-jobs/internal/domain/ports/repository"
)

// Compile-time check
var _ JobsUseCase = (*jobsUC)(nil)

type JobsUseCase interface {
	Get(ctx context.Context, ownerID, jobID string) (*model.Job, error)
	List(ctx context.Context, ownerID string, tool model.ToolKind, limit int) ([]*model.Job, error)
	// Delete soft-deletes a job. Terminal state is untouched; a deleted job
	// is never reanimated.
	Delete(ctx context.Context, ownerID, jobID string) error
}

type jobsUC struct {
	jobs     repository.JobRepository
	notifier adapter.JobNotifier
	log      *zerolog.Logger
}

func NewJobsUseCase(jobs repository.JobRepository, notifier adapter.JobNotifier, logger *zerolog.Logger) *jobsUC {
	l := logger.With().Str("component", "JobsUC").Logger()
	return &jobsUC{jobs: jobs, notifier: notifier, log: &l}
}

func (uc *jobsUC) Get(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID || job.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (uc *jobsUC) List(ctx context.Context, ownerID string, tool model.ToolKind, limit int) ([]*model.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return uc.jobs.ListByOwner(ctx, repository.NoTX, ownerID, tool, limit)
}

func (uc *jobsUC) Delete(ctx context.Context, ownerID, jobID string) error {
	job, err := uc.Get(ctx, ownerID, jobID)
	if err != nil {
		return err
	}
	if err := uc.jobs.SoftDelete(ctx, repository.NoTX, jobID); err != nil {
		return err
	}
	if uc.notifier != nil {
		if err := uc.notifier.Publish(ctx, model.NewJobDeleteEvent(job)); err != nil {
			uc.log.Warn().Err(err).Str("job_id", jobID).Msg("publish delete event failed")
		}
	}
	return nil
}
