package usecase

import (
	"context"
	"errors"
	"time"

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
var _ ReconcileUseCase = (*reconcileUC)(nil)

// WebhookPayload is the provider's completion callback body. Success carries
// one or more output locations; failure carries an error message and/or an
// upstream status code.
type WebhookPayload struct {
	Status     string   `json:"status"`
	Outputs    []string `json:"outputs,omitempty"`
	Output     string   `json:"output,omitempty"`
	Error      string   `json:"error,omitempty"`
	StatusCode int      `json:"status_code,omitempty"`
}

// OutputRefs normalizes the single/plural output encodings.
func (p WebhookPayload) OutputRefs() []string {
	if len(p.Outputs) > 0 {
		return p.Outputs
	}
	if p.Output != "" {
		return []string{p.Output}
	}
	return nil
}

type ReconcileUseCase interface {
	// Reconcile applies a webhook payload to the referenced job. Idempotent:
	// unknown jobs and jobs already terminal are a no-op, so duplicate or
	// late deliveries are harmless.
	Reconcile(ctx context.Context, jobID string, payload WebhookPayload) error
	// ReapStuck fails jobs stuck in processing since before the cutoff with
	// a retryable timeout. Returns the number of jobs transitioned.
	ReapStuck(ctx context.Context, cutoff time.Time) (int, error)
}

type reconcileUC struct {
	jobs     repository.JobRepository
	tm       repository.TransactionManager
	notifier adapter.JobNotifier
	log      *zerolog.Logger
}

func NewReconcileUseCase(
	jobs repository.JobRepository,
	tm repository.TransactionManager,
	notifier adapter.JobNotifier,
	logger *zerolog.Logger,
) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{jobs: jobs, tm: tm, notifier: notifier, log: &l}
}

func (uc *reconcileUC) Reconcile(ctx context.Context, jobID string, payload WebhookPayload) error {
	var updated *model.Job

	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := uc.jobs.FindByID(ctx, tx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				uc.log.Warn().Str("job_id", jobID).Msg("webhook for unknown job, ignoring")
				metrics.IncWebhook("unknown_job")
				return nil
			}
			return err
		}
		if job.Status.Terminal() {
			// Providers may deliver the same webhook more than once, or
			// late after the reaper already settled the job.
			metrics.IncWebhook("duplicate")
			return nil
		}

		if err := uc.apply(job, payload); err != nil {
			return err
		}
		if err := uc.jobs.Save(ctx, tx, job); err != nil {
			return err
		}
		updated = job
		return nil
	})
	if err != nil {
		return err
	}

	if updated != nil {
		uc.publish(ctx, model.NewJobEvent(model.JobEventUpdate, updated))
	}
	return nil
}

// apply moves the job to its terminal state. A payload missing the
// success/failure discriminant, or a success without an output reference,
// still terminates the job (as Unknown) rather than leaving it ambiguous.
func (uc *reconcileUC) apply(job *model.Job, payload WebhookPayload) error {
	switch payload.Status {
	case "completed", "succeeded", "success":
		outputs := payload.OutputRefs()
		if len(outputs) == 0 {
			uc.log.Error().Str("job_id", job.ID).Msg("success webhook without output reference")
			return uc.failJob(job, errclass.Classify("success payload missing output reference", 0), "")
		}
		if err := job.Complete(outputs); err != nil {
			return err
		}
		metrics.IncWebhook("completed")
		metrics.IncJobTerminal(string(model.JobStatusCompleted), "")
		uc.log.Info().Str("job_id", job.ID).Int("outputs", len(outputs)).Msg("job completed")
		return nil
	case "failed", "error":
		c := errclass.Classify(payload.Error, payload.StatusCode)
		metrics.IncWebhook("failed")
		return uc.failJob(job, c, payload.Error)
	default:
		uc.log.Error().Str("job_id", job.ID).Str("status", payload.Status).Msg("malformed webhook payload")
		metrics.IncWebhook("malformed")
		return uc.failJob(job, errclass.Classify("", 0), payload.Error)
	}
}

func (uc *reconcileUC) failJob(job *model.Job, c errclass.ClassifiedError, raw string) error {
	if err := job.Fail(model.DetailFrom(c, raw)); err != nil {
		return err
	}
	metrics.IncJobTerminal(string(model.JobStatusFailed), string(c.Kind))
	uc.log.Info().
		Str("job_id", job.ID).
		Str("kind", string(c.Kind)).
		Bool("retryable", c.Retryable).
		Msg("job failed")
	return nil
}

func (uc *reconcileUC) ReapStuck(ctx context.Context, cutoff time.Time) (int, error) {
	stuck, err := uc.jobs.FindStuckProcessing(ctx, cutoff, 100)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, job := range stuck {
		err := uc.Reconcile(ctx, job.ID, WebhookPayload{
			Status: "failed",
			Error:  "no webhook received before deadline, request timed out",
		})
		if err != nil {
			uc.log.Error().Err(err).Str("job_id", job.ID).Msg("reap failed")
			continue
		}
		reaped++
	}
	if reaped > 0 {
		metrics.AddJobsReaped(reaped)
	}
	return reaped, nil
}

func (uc *reconcileUC) publish(ctx context.Context, ev model.JobEvent) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.Publish(ctx, ev); err != nil {
		uc.log.Warn().Err(err).Str("job_id", ev.JobID).Msg("publish job event failed")
	}
}
