package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"media-generation-jobs/internal/domain"
	"media-generation-jobs/internal/domain/errclass"
	"media-generation-jobs/internal/domain/model"
	"media-generation-jobs/internal/domain/ports/adapter"
	"media-generation-jobs/internal/domain/ports/repository"
	"media-generation-jobs/internal/infra/metrics"
)

// Compile-time check
var _ SubmitUseCase = (*submitUC)(nil)

type SubmitUseCase interface {
	// Submit validates, reserves balance, creates the job and forwards it to
	// the provider. On synchronous rejection the returned job is already
	// failed and the error wraps domain.ErrProviderRejected; the balance
	// deduction stands either way (no automatic refunds).
	Submit(ctx context.Context, ownerID string, tool model.ToolKind, params map[string]any) (*model.Job, error)
	// Retry re-submits a failed, retryable job from its stored input
	// snapshot as a fresh job.
	Retry(ctx context.Context, ownerID, jobID string) (*model.Job, error)
}

// SubmissionLimiter throttles submissions per owner.
type SubmissionLimiter interface {
	Allow(ctx context.Context, ownerID string) (bool, error)
}

type submitUC struct {
	jobs     repository.JobRepository
	ledger   repository.BalanceLedger
	tm       repository.TransactionManager
	tools    *model.ToolRegistry
	provider adapter.GenerationProvider
	signer   adapter.CallbackSigner
	notifier adapter.JobNotifier
	limiter  SubmissionLimiter
	log      *zerolog.Logger
}

func NewSubmitUseCase(
	jobs repository.JobRepository,
	ledger repository.BalanceLedger,
	tm repository.TransactionManager,
	tools *model.ToolRegistry,
	provider adapter.GenerationProvider,
	signer adapter.CallbackSigner,
	notifier adapter.JobNotifier,
	limiter SubmissionLimiter,
	logger *zerolog.Logger,
) *submitUC {
	l := logger.With().Str("component", "SubmitUC").Logger()
	return &submitUC{
		jobs:     jobs,
		ledger:   ledger,
		tm:       tm,
		tools:    tools,
		provider: provider,
		signer:   signer,
		notifier: notifier,
		limiter:  limiter,
		log:      &l,
	}
}

func (uc *submitUC) Submit(ctx context.Context, ownerID string, tool model.ToolKind, params map[string]any) (*model.Job, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required: %w", domain.ErrInvalidArgument)
	}
	// Validation rejects locally: no job created, no balance touched.
	if err := uc.tools.Validate(tool, params); err != nil {
		return nil, err
	}
	spec, _ := uc.tools.Get(tool)

	if uc.limiter != nil {
		ok, err := uc.limiter.Allow(ctx, ownerID)
		if err != nil {
			uc.log.Warn().Err(err).Str("owner_id", ownerID).Msg("rate limiter unavailable, allowing")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	cost := spec.Cost(params)
	job := model.NewJob(ownerID, tool, params, cost)
	job.Provider = uc.provider.Name()

	// Reserve and insert atomically so two racing submissions by the same
	// owner cannot both pass a stale balance check.
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.ledger.Reserve(ctx, tx, ownerID, cost); err != nil {
			return err
		}
		return uc.jobs.Save(ctx, tx, job)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			metrics.IncReserveRejected()
		}
		return nil, err
	}
	uc.publish(ctx, model.NewJobEvent(model.JobEventInsert, job))

	return uc.forward(ctx, job)
}

func (uc *submitUC) Retry(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	prev, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, err
	}
	if prev.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	if !prev.Retryable() {
		return nil, domain.ErrNotRetryable
	}
	return uc.Submit(ctx, ownerID, prev.Tool, prev.InputSnapshot)
}

// forward hands the pending job to the provider's queue. Any failure here,
// network included, terminates the job as failed rather than leaving it
// pending forever.
func (uc *submitUC) forward(ctx context.Context, job *model.Job) (*model.Job, error) {
	callbackURL, err := uc.signer.URLFor(job.ID)
	if err != nil {
		return uc.reject(ctx, job, errclass.ClassifyErr(err), err.Error())
	}

	timer := metrics.ObserveProviderCall(string(job.Tool))
	ack, err := uc.provider.Submit(ctx, adapter.SubmitRequest{
		Tool:        job.Tool,
		Params:      job.InputSnapshot,
		CallbackURL: callbackURL,
	})
	timer(err == nil)

	if err != nil {
		var pe *adapter.ProviderError
		if errors.As(err, &pe) {
			return uc.reject(ctx, job, errclass.Classify(pe.Body, pe.StatusCode), pe.Body)
		}
		return uc.reject(ctx, job, errclass.ClassifyErr(err), err.Error())
	}
	if ack == nil || ack.Handle == "" {
		c := errclass.Classify("provider acknowledgment missing tracking handle", 0)
		return uc.reject(ctx, job, c, "")
	}

	if err := job.MarkProcessing(ack.Handle); err != nil {
		return nil, err
	}
	if err := uc.jobs.Save(ctx, repository.NoTX, job); err != nil {
		return nil, err
	}
	uc.publish(ctx, model.NewJobEvent(model.JobEventUpdate, job))
	uc.log.Info().Str("job_id", job.ID).Str("handle", job.ProviderHandle).Msg("job queued at provider")
	return job, nil
}

func (uc *submitUC) reject(ctx context.Context, job *model.Job, c errclass.ClassifiedError, raw string) (*model.Job, error) {
	if err := job.Fail(model.DetailFrom(c, raw)); err != nil {
		return nil, err
	}
	if err := uc.jobs.Save(ctx, repository.NoTX, job); err != nil {
		return nil, err
	}
	metrics.IncJobTerminal(string(model.JobStatusFailed), string(c.Kind))
	uc.publish(ctx, model.NewJobEvent(model.JobEventUpdate, job))
	uc.log.Warn().
		Str("job_id", job.ID).
		Str("kind", string(c.Kind)).
		Int("status_code", c.StatusCode).
		Msg("provider rejected submission")
	return job, fmt.Errorf("%s: %w", c.UserMessage, domain.ErrProviderRejected)
}

func (uc *submitUC) publish(ctx context.Context, ev model.JobEvent) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.Publish(ctx, ev); err != nil {
		uc.log.Warn().Err(err).Str("job_id", ev.JobID).Msg("publish job event failed")
	}
}
