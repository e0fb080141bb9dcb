package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"media-generation-jobs/internal/domain"
	"media-generation-jobs/internal/domain/model"
	"media-generation-jobs/internal/domain/ports/adapter"
	"media-generation-jobs/internal/domain/ports/repository"
)

// memJobRepo is a small in-memory implementation used by unit tests.
type memJobRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.Job
	saveErr error // simulate save failures
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.Job)}
}

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[job.ID] = job.Clone()
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (m *memJobRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, tool model.ToolKind, limit int) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, j := range m.store {
		if j.OwnerID != ownerID || j.DeletedAt != nil {
			continue
		}
		if tool != "" && j.Tool != tool {
			continue
		}
		out = append(out, j.Clone())
	}
	// newest first
	for i := 0; i < len(out); i++ {
		for k := i + 1; k < len(out); k++ {
			if out[k].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[k] = out[k], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobRepo) FindStuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, j := range m.store {
		if j.Status == model.JobStatusProcessing && j.UpdatedAt.Before(cutoff) {
			out = append(out, j.Clone())
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memJobRepo) SoftDelete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok || j.DeletedAt != nil {
		return domain.ErrNotFound
	}
	now := time.Now()
	j.DeletedAt = &now
	return nil
}

// memLedger satisfies repository.BalanceLedger; the mutex makes Reserve
// atomic the way the guarded SQL decrement is.
type memLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

func newMemLedger() *memLedger {
	return &memLedger{balances: make(map[string]int64)}
}

func (m *memLedger) Balance(ctx context.Context, tx repository.Tx, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[ownerID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return b, nil
}

func (m *memLedger) Reserve(ctx context.Context, tx repository.Tx, ownerID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[ownerID]
	if !ok {
		return domain.ErrNotFound
	}
	if b < amount {
		return domain.ErrInsufficientBalance
	}
	m.balances[ownerID] = b - amount
	return nil
}

func (m *memLedger) Credit(ctx context.Context, tx repository.Tx, ownerID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[ownerID] += amount
	return nil
}

// nopTxManager runs the callback without a real transaction; the fakes are
// individually atomic.
type nopTxManager struct{}

func (nopTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// fakeProvider scripts the provider's synchronous response.
type fakeProvider struct {
	mu        sync.Mutex
	handle    string
	rejectErr error
	requests  []adapter.SubmitRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Submit(ctx context.Context, req adapter.SubmitRequest) (*adapter.SubmitAck, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.rejectErr != nil {
		return nil, f.rejectErr
	}
	return &adapter.SubmitAck{Handle: f.handle}, nil
}

// fakeSigner builds predictable callback URLs.
type fakeSigner struct{}

func (fakeSigner) URLFor(jobID string) (string, error) {
	return "https://example.test/api/v1/webhook/generation?token=" + jobID, nil
}

func (fakeSigner) JobIDFrom(token string) (string, error) {
	if token == "" {
		return "", domain.ErrInvalidArgument
	}
	return token, nil
}

// memNotifier records published events.
type memNotifier struct {
	mu     sync.Mutex
	events []model.JobEvent
}

func (m *memNotifier) Publish(ctx context.Context, ev model.JobEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memNotifier) byType(t model.JobEventType) []model.JobEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.JobEvent
	for _, ev := range m.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeLimiter struct {
	allowed bool
}

func (f *fakeLimiter) Allow(ctx context.Context, ownerID string) (bool, error) {
	return f.allowed, nil
}
