package model

import (
	"time"

	"github.com/oklog/ulid/v2"

	"media-generation-jobs/internal/domain"
	"media-generation-jobs/internal/domain/errclass"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Rank orders statuses along the forward-only lifecycle. Used by event
// consumers to converge under out-of-order delivery.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	default:
		return -1
	}
}

// ErrorDetail is the stored failure record of a failed job. Message is the
// user-facing text derived from Kind; Raw keeps the upstream payload for
// diagnostics only.
type ErrorDetail struct {
	Kind       errclass.ErrorKind `json:"kind"`
	Message    string             `json:"message"`
	Retryable  bool               `json:"retryable"`
	StatusCode int                `json:"status_code,omitempty"`
	Raw        string             `json:"raw,omitempty"`
}

// DetailFrom builds the stored form of a classified failure, retaining the
// raw upstream text.
func DetailFrom(c errclass.ClassifiedError, raw string) ErrorDetail {
	return ErrorDetail{
		Kind:       c.Kind,
		Message:    c.UserMessage,
		Retryable:  c.Retryable,
		StatusCode: c.StatusCode,
		Raw:        raw,
	}
}

// Job is one request/response cycle against an external generation provider.
type Job struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	Tool           ToolKind       `json:"tool"`
	Provider       string         `json:"provider,omitempty"`
	Status         JobStatus      `json:"status"`
	InputSnapshot  map[string]any `json:"input_snapshot"`
	ProviderHandle string         `json:"provider_handle,omitempty"`
	Outputs        []string       `json:"outputs,omitempty"`
	Error          *ErrorDetail   `json:"error,omitempty"`
	Cost           int64          `json:"cost"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// NewJob creates a pending job. The parameter map is deep-copied so the
// snapshot cannot be mutated by the caller after submission.
func NewJob(ownerID string, tool ToolKind, params map[string]any, cost int64) *Job {
	now := time.Now()
	return &Job{
		ID:            ulid.Make().String(),
		OwnerID:       ownerID,
		Tool:          tool,
		Status:        JobStatusPending,
		InputSnapshot: copyParams(params),
		Cost:          cost,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkProcessing records provider acceptance. Only legal from pending, and a
// tracking handle is mandatory before the job may leave pending.
func (j *Job) MarkProcessing(handle string) error {
	if j.Status.Terminal() {
		return domain.ErrJobTerminal
	}
	if j.Status != JobStatusPending || handle == "" {
		return domain.ErrInvalidArgument
	}
	j.ProviderHandle = handle
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now()
	return nil
}

// Complete transitions to the completed terminal state. Requires provider
// acknowledgment first and at least one output reference.
func (j *Job) Complete(outputs []string) error {
	if j.Status.Terminal() {
		return domain.ErrJobTerminal
	}
	if j.Status != JobStatusProcessing || len(outputs) == 0 {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	j.Status = JobStatusCompleted
	j.Outputs = append([]string(nil), outputs...)
	j.Error = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail transitions to the failed terminal state. Legal from pending
// (synchronous provider rejection) and from processing (webhook failure).
func (j *Job) Fail(detail ErrorDetail) error {
	if j.Status.Terminal() {
		return domain.ErrJobTerminal
	}
	now := time.Now()
	j.Status = JobStatusFailed
	j.Error = &detail
	j.Outputs = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Retryable reports whether the job failed with a retryable kind.
func (j *Job) Retryable() bool {
	return j.Status == JobStatusFailed && j.Error != nil && j.Error.Retryable
}

// Clone returns a deep copy; repositories and fakes hand out clones so
// callers can never mutate stored state.
func (j *Job) Clone() *Job {
	cp := *j
	cp.InputSnapshot = copyParams(j.InputSnapshot)
	cp.Outputs = append([]string(nil), j.Outputs...)
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.DeletedAt != nil {
		t := *j.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyParams(nested)
			continue
		}
		if list, ok := v.([]any); ok {
			out[k] = append([]any(nil), list...)
			continue
		}
		out[k] = v
	}
	return out
}
