package model

import "time"

type JobEventType string

const (
	JobEventInsert JobEventType = "insert"
	JobEventUpdate JobEventType = "update"
	JobEventDelete JobEventType = "delete"
)

// JobEvent is the change-stream record emitted for every job mutation.
// Delivery is at-least-once and unordered; consumers reconcile by id and
// status rank, never by arrival order.
type JobEvent struct {
	Type       JobEventType `json:"type"`
	JobID      string       `json:"job_id"`
	OwnerID    string       `json:"owner_id"`
	Tool       ToolKind     `json:"tool"`
	Job        *Job         `json:"job,omitempty"`
	HappenedAt int64        `json:"happened_at"`
}

func NewJobEvent(t JobEventType, job *Job) JobEvent {
	return JobEvent{
		Type:       t,
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		Tool:       job.Tool,
		Job:        job.Clone(),
		HappenedAt: time.Now().UnixMilli(),
	}
}

// NewJobDeleteEvent omits the record body; subscribers drop by id.
func NewJobDeleteEvent(job *Job) JobEvent {
	return JobEvent{
		Type:       JobEventDelete,
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		Tool:       job.Tool,
		HappenedAt: time.Now().UnixMilli(),
	}
}
