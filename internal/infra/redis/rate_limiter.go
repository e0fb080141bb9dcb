package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter throttles job submissions per owner with a fixed window
// counter. Satisfies usecase.SubmissionLimiter.
type RateLimiter struct {
	client *Client
	limit  int
	window time.Duration
}

func NewRateLimiter(client *Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

func (r *RateLimiter) Allow(ctx context.Context, ownerID string) (bool, error) {
	key := submitKey(ownerID)
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window); err != nil {
			return false, err
		}
	}
	return count <= int64(r.limit), nil
}

func submitKey(ownerID string) string {
	return fmt.Sprintf("rate_limit:submit:%s", ownerID)
}
