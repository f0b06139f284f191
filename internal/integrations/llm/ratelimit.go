package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited spaces calls to next so a slot stays under its provider's
// requests-per-minute quota.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited returns next unchanged when perMinute is not positive.
func NewRateLimited(next Client, perMinute int) Client {
	if perMinute <= 0 {
		return next
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (r *RateLimited) Complete(ctx context.Context, req Request) (Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter: %w", err)
	}
	return r.next.Complete(ctx, req)
}
