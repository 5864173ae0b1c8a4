package ai

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// WithRetry retries Complete up to attempts times with exponential backoff
// starting at baseDelay. Permanent errors and context cancellation stop
// immediately.
func WithRetry(next Client, attempts int, baseDelay time.Duration) Client {
	if attempts <= 1 {
		return next
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return &retrying{next: next, max: attempts, base: baseDelay}
}

type retrying struct {
	next Client
	max  int
	base time.Duration
}

func (r *retrying) Complete(ctx context.Context, req Request) (string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		out, err := r.next.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return "", err
		}
		last = err
		if i == r.max-1 {
			break
		}
		delay := r.base * time.Duration(1<<i)
		log.Debug().Err(err).Int("attempt", i+1).Dur("backoff", delay).Msg("llm call failed, retrying")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", last
}
