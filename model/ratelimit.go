package model

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Client with a requests-per-minute token bucket.
// Callers block until capacity is available or ctx is done.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// WithRateLimit returns next limited to perMinute requests per minute with a
// burst of the same size. A non-positive perMinute returns next unchanged.
func WithRateLimit(next Client, perMinute int) Client {
	if next == nil || perMinute <= 0 {
		return next
	}

	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

// Generate waits for the limiter before delegating to the wrapped client.
func (c *RateLimited) Generate(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}

	return c.next.Generate(ctx, req)
}

// Info reports the wrapped client.
func (c *RateLimited) Info() Info { return c.next.Info() }
