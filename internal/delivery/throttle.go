package delivery

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttled spaces out calls to the wrapped deliverer.
type Throttled struct {
	next    Deliverer
	limiter *rate.Limiter
}

// Throttle limits next to perMinute calls. A non-positive rate returns next unchanged.
func Throttle(next Deliverer, perMinute int) Deliverer {
	if perMinute <= 0 {
		return next
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Deliver waits for a token, then delegates.
func (t *Throttled) Deliver(ctx context.Context, req Request) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.next.Deliver(ctx, req)
}
