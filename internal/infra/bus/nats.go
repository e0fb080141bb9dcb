package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"media-generation-jobs/internal/domain/model"
	"media-generation-jobs/internal/domain/ports/adapter"
)

// Compile-time checks
var (
	_ adapter.JobNotifier    = (*Bus)(nil)
	_ adapter.JobEventSource = (*Bus)(nil)
)

// Bus is the NATS-backed realtime change notifier. Job mutations are
// published on `jobs.<owner>.<tool>` subjects; subscribers key on the same
// pair. Delivery is at-least-once and unordered.
type Bus struct {
	nc  *nats.Conn
	log *zerolog.Logger
}

func Connect(url string, logger *zerolog.Logger) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "Bus").Logger()
	return &Bus{nc: nc, log: &l}, nil
}

func (b *Bus) Close() {
	if b.nc != nil {
		_ = b.nc.Drain()
	}
}

func (b *Bus) Publish(ctx context.Context, ev model.JobEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.nc.Publish(subjectFor(ev.OwnerID, ev.Tool), data)
}

func (b *Bus) Subscribe(ownerID string, tool model.ToolKind, fn func(model.JobEvent)) (adapter.JobSubscription, error) {
	sub, err := b.nc.Subscribe(subjectFor(ownerID, tool), func(msg *nats.Msg) {
		var ev model.JobEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.log.Warn().Err(err).Str("subject", msg.Subject).Msg("drop undecodable job event")
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, err
	}
	return &subscription{sub: sub}, nil
}

type subscription struct {
	sub *nats.Subscription
}

func (s *subscription) Unsubscribe() error { return s.sub.Unsubscribe() }

// tool == "" subscribes to all tools for the owner.
func subjectFor(ownerID string, tool model.ToolKind) string {
	if tool == "" {
		return fmt.Sprintf("jobs.%s.*", ownerID)
	}
	return fmt.Sprintf("jobs.%s.%s", ownerID, tool)
}
