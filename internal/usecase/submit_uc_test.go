package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"media-generation-jobs/internal/domain"
	"media-generation-jobs/internal/domain/errclass"
	"media-generation-jobs/internal/domain/model"
	"media-generation-jobs/internal/domain/ports/adapter"
	"media-generation-jobs/internal/domain/ports/repository"
)

type submitEnv struct {
	jobs     *memJobRepo
	ledger   *memLedger
	provider *fakeProvider
	notifier *memNotifier
	uc       *submitUC
}

func newSubmitEnv(t *testing.T) *submitEnv {
	t.Helper()
	logger := zerolog.Nop()
	env := &submitEnv{
		jobs:     newMemJobRepo(),
		ledger:   newMemLedger(),
		provider: &fakeProvider{handle: "req_123"},
		notifier: &memNotifier{},
	}
	env.uc = NewSubmitUseCase(
		env.jobs, env.ledger, nopTxManager{}, model.DefaultToolRegistry(),
		env.provider, fakeSigner{}, env.notifier, nil, &logger,
	)
	return env
}

func TestSubmitHappyPath(t *testing.T) {
	ctx := context.Background()
	env := newSubmitEnv(t)
	_ = env.ledger.Credit(ctx, repository.NoTX, "owner-1", 100)

	job, err := env.uc.Submit(ctx, "owner-1", model.ToolImageGen, map[string]any{"prompt": "a cat", "quantity": 3})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if job.Status != model.JobStatusProcessing {
		t.Fatalf("status = %s, want processing", job.Status)
	}
	if job.ProviderHandle != "req_123" {
		t.Fatalf("handle = %q, want req_123", job.ProviderHandle)
	}
	if job.Cost != 30 {
		t.Fatalf("cost = %d, want 30", job.Cost)
	}

	balance, _ := env.ledger.Balance(ctx, repository.NoTX, "owner-1")
	if balance != 70 {
		t.Fatalf("balance = %d, want 70", balance)
	}

	// callback URL must route back to this job's id
	if len(env.provider.requests) != 1 {
		t.Fatalf("provider calls = %d", len(env.provider.requests))
	}
	if got := env.provider.requests[0].CallbackURL; !strings.Contains(got, job.ID) {
		t.Fatalf("callback url %q does not encode job id %s", got, job.ID)
	}

	// insert then update must have been published
	if n := len(env.notifier.byType(model.JobEventInsert)); n != 1 {
		t.Fatalf("insert events = %d", n)
	}
	if n := len(env.notifier.byType(model.JobEventUpdate)); n != 1 {
		t.Fatalf("update events = %d", n)
	}
}

func TestSubmitValidationFailureTouchesNothing(t *testing.T) {
	ctx := context.Background()
	env := newSubmitEnv(t)
	_ = env.ledger.Credit(ctx, repository.NoTX, "owner-1", 100)

	_, err := env.uc.Submit(ctx, "owner-1", model.ToolImageGen, map[string]any{})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if balance, _ := env.ledger.Balance(ctx, repository.NoTX, "owner-1"); balance != 100 {
		t.Fatalf("balance = %d, validation must not deduct", balance)
	}
	if len(env.jobs.store) != 0 {
		t.Fatal("validation failure must not create a job")
	}
	if len(env.provider.requests) != 0 {
		t.Fatal("validation failure must not reach the provider")
	}
}

func TestSubmitInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	env := newSubmitEnv(t)
	_ = env.ledger.Credit(ctx, repository.NoTX, "owner-1", 5)

	_, err := env.uc.Submit(ctx, "owner-1", model.ToolImageGen, map[string]any{"prompt": "x"})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if balance, _ := env.ledger.Balance(ctx, repository.NoTX, "owner-1"); balance != 5 {
		t.Fatalf("balance = %d, failed reserve must not deduct", balance)
	}
	if len(env.jobs.store) != 0 {
		t.Fatal("no job may be created without a reservation")
	}
}

func TestSubmitProviderRejectionFailsJobKeepsDeduction(t *testing.T) {
	ctx := context.Background()
	env := newSubmitEnv(t)
	env.provider.rejectErr = &adapter.ProviderError{StatusCode: 422, Body: "content flagged"}
	_ = env.ledger.Credit(ctx, repository.NoTX, "owner-1", 100)

	job, err := env.uc.Submit(ctx, "owner-1", model.ToolImageGen, map[string]any{"prompt": "x"})
	if !errors.Is(err, domain.ErrProviderRejected) {
		t.Fatalf("err = %v, want ErrProviderRejected", err)
	}
	if job == nil {
		t.Fatal("rejection must still return the failed job record")
	}
	if job.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.Error == nil || job.Error.Kind != errclass.KindContentViolation {
		t.Fatalf("error = %+v, want content violation", job.Error)
	}
	if job.Error.Retryable {
		t.Fatal("content violation must not be retryable")
	}

	// Deduction stands: no automatic refund on failure.
	if balance, _ := env.ledger.Balance(ctx, repository.NoTX, "owner-1"); balance != 90 {
		t.Fatalf("balance = %d, want 90", balance)
	}

	stored, err := env.jobs.FindByID(ctx, repository.NoTX, job.ID)
	if err != nil {
		t.Fatalf("stored job: %v", err)
	}
	if stored.Status != model.JobStatusFailed {
		t.Fatalf("stored status = %s", stored.Status)
	}
}

func TestSubmitNetworkFailureBehavesLikeRejection(t *testing.T) {
	ctx := context.Background()
	env := newSubmitEnv(t)
	env.provider.rejectErr = errors.New("dial tcp: connection timed out")
	_ = env.ledger.Credit(ctx, repository.NoTX, "owner-1", 100)

	job, err := env.uc.Submit(ctx, "owner-1", model.ToolImageGen, map[string]any{"prompt": "x"})
	if !errors.Is(err, domain.ErrProviderRejected) {
		t.Fatalf("err = %v", err)
	}
	if job.Status != model.JobStatusFailed {
		t.Fatalf("status = %s; network failures must not leave jobs pending", job.Status)
	}
	if job.Error.Kind != errclass.KindTimeout {
		t.Fatalf("kind = %s, want timeout", job.Error.Kind)
	}
}

func TestSubmitMissingAckHandleFailsJob(t *testing.T) {
	ctx := context.Background()
	env := newSubmitEnv(t)
	env.provider.handle = ""
	_ = env.ledger.Credit(ctx, repository.NoTX, "owner-1", 100)

	job, err := env.uc.Submit(ctx, "owner-1", model.ToolImageGen, map[string]any{"prompt": "x"})
	if !errors.Is(err, domain.ErrProviderRejected) {
		t.Fatalf("err = %v", err)
	}
	if job.Status != model.JobStatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	ctx := context.Background()
	env := newSubmitEnv(t)
	logger := zerolog.Nop()
	env.uc = NewSubmitUseCase(
		env.jobs, env.ledger, nopTxManager{}, model.DefaultToolRegistry(),
		env.provider, fakeSigner{}, env.notifier, &fakeLimiter{allowed: false}, &logger,
	)
	_ = env.ledger.Credit(ctx, repository.NoTX, "owner-1", 100)

	_, err := env.uc.Submit(ctx, "owner-1", model.ToolImageGen, map[string]any{"prompt": "x"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if balance, _ := env.ledger.Balance(ctx, repository.NoTX, "owner-1"); balance != 100 {
		t.Fatalf("balance = %d, throttled submission must not deduct", balance)
	}
}

func TestConcurrentSubmitsCannotDoubleSpend(t *testing.T) {
	ctx := context.Background()
	env := newSubmitEnv(t)
	// Full balance covers exactly one image job.
	_ = env.ledger.Credit(ctx, repository.NoTX, "owner-1", 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.uc.Submit(ctx, "owner-1", model.ToolImageGen, map[string]any{"prompt": "x"})
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("ok = %d, insufficient = %d; want exactly one of each", ok, insufficient)
	}
	if balance, _ := env.ledger.Balance(ctx, repository.NoTX, "owner-1"); balance != 0 {
		t.Fatalf("balance = %d, want 0", balance)
	}
}

func TestRetryResubmitsFromSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newSubmitEnv(t)
	_ = env.ledger.Credit(ctx, repository.NoTX, "owner-1", 100)

	// First attempt fails retryably.
	env.provider.rejectErr = &adapter.ProviderError{StatusCode: 503, Body: "overloaded"}
	failed, err := env.uc.Submit(ctx, "owner-1", model.ToolImageGen, map[string]any{"prompt": "a fox"})
	if !errors.Is(err, domain.ErrProviderRejected) {
		t.Fatalf("err = %v", err)
	}

	// Provider recovers; retry succeeds with the same parameters.
	env.provider.rejectErr = nil
	retried, err := env.uc.Retry(ctx, "owner-1", failed.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.ID == failed.ID {
		t.Fatal("retry must create a fresh job")
	}
	if retried.InputSnapshot["prompt"] != "a fox" {
		t.Fatalf("snapshot = %+v", retried.InputSnapshot)
	}
	if retried.Status != model.JobStatusProcessing {
		t.Fatalf("status = %s", retried.Status)
	}
}

func TestRetryRefusedForNonRetryableFailure(t *testing.T) {
	ctx := context.Background()
	env := newSubmitEnv(t)
	_ = env.ledger.Credit(ctx, repository.NoTX, "owner-1", 100)

	env.provider.rejectErr = &adapter.ProviderError{StatusCode: 422, Body: "flagged"}
	failed, _ := env.uc.Submit(ctx, "owner-1", model.ToolImageGen, map[string]any{"prompt": "x"})

	_, err := env.uc.Retry(ctx, "owner-1", failed.ID)
	if !errors.Is(err, domain.ErrNotRetryable) {
		t.Fatalf("err = %v, want ErrNotRetryable", err)
	}
}

func TestRetryHidesForeignJobs(t *testing.T) {
	ctx := context.Background()
	env := newSubmitEnv(t)
	_ = env.ledger.Credit(ctx, repository.NoTX, "owner-1", 100)
	env.provider.rejectErr = &adapter.ProviderError{StatusCode: 503, Body: "overloaded"}
	failed, _ := env.uc.Submit(ctx, "owner-1", model.ToolImageGen, map[string]any{"prompt": "x"})

	_, err := env.uc.Retry(ctx, "other-owner", failed.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
