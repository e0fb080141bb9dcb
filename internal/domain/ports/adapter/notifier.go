package adapter

import (
	"context"

	"media-generation-jobs/internal/domain/model"
)

// JobNotifier pushes job-record mutations to subscribers. Delivery is
// at-least-once; publish failures must not fail the originating write.
type JobNotifier interface {
	Publish(ctx context.Context, ev model.JobEvent) error
}

type JobSubscription interface {
	Unsubscribe() error
}

// JobEventSource is the subscriber side, keyed by (owner, tool).
type JobEventSource interface {
	Subscribe(ownerID string, tool model.ToolKind, fn func(model.JobEvent)) (JobSubscription, error)
}
