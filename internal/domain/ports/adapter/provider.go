package adapter

import (
	"context"
	"fmt"

	"media-generation-jobs/internal/domain/model"
)

// SubmitRequest carries job parameters to the provider's asynchronous queue
// endpoint. CallbackURL routes the provider's webhook back to the job.
type SubmitRequest struct {
	Tool        model.ToolKind
	Params      map[string]any
	CallbackURL string
}

// SubmitAck is the synchronous acceptance response; Handle is the provider's
// opaque tracking token.
type SubmitAck struct {
	Handle string
}

// ProviderError is a synchronous non-2xx rejection. Body keeps the raw
// response for classification and diagnostics.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected submission: http %d: %s", e.StatusCode, e.Body)
}

// GenerationProvider is the outbound port to the external generation queue.
type GenerationProvider interface {
	Name() string
	Submit(ctx context.Context, req SubmitRequest) (*SubmitAck, error)
}

// CallbackSigner mints and verifies the callback URLs handed to the provider.
// The URL must allow recovery of the originating job id and nothing else.
type CallbackSigner interface {
	URLFor(jobID string) (string, error)
	JobIDFrom(token string) (string, error)
}
