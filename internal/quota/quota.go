// Package quota decides whether a due job may post now, counting completed
// jobs of the same client and content type on the current local day.
package quota

import (
	"context"
	"fmt"
	"time"

	"autoposter/internal/clock"
	"autoposter/internal/policy"
	"autoposter/internal/queue"
)

// Counter is the slice of the job store the engine reads.
type Counter interface {
	CountDone(ctx context.Context, client string, contentType queue.ContentType, from, to time.Time) (int, error)
}

// PolicySource resolves the effective policy for a client.
type PolicySource interface {
	Load(client string) policy.ClientPolicy
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	Used    int
	Limit   int
	Live    bool
	Reason  string
}

// Engine evaluates daily quotas in the configured reference zone.
type Engine struct {
	counter  Counter
	policies PolicySource
	zone     *clock.Zone
}

// NewEngine wires an engine over the store, policy loader, and zone.
func NewEngine(counter Counter, policies PolicySource, zone *clock.Zone) *Engine {
	return &Engine{counter: counter, policies: policies, zone: zone}
}

// UsedToday counts done jobs for (client, contentType) whose posted_at falls
// on today's local calendar date.
func (e *Engine) UsedToday(ctx context.Context, client string, contentType queue.ContentType) (int, error) {
	start, end := e.zone.Today()
	used, err := e.counter.CountDone(ctx, client, contentType, start, end)
	if err != nil {
		return 0, fmt.Errorf("count today's posts for %s/%s: %w", client, contentType, err)
	}
	return used, nil
}

// Allowed reports whether another job of contentType may post today.
func (e *Engine) Allowed(ctx context.Context, client string, contentType queue.ContentType) (bool, error) {
	decision, err := e.Check(ctx, client, contentType)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// Check resolves the policy once and returns the full decision so callers
// can log it and reuse the live flag.
func (e *Engine) Check(ctx context.Context, client string, contentType queue.ContentType) (Decision, error) {
	p := e.policies.Load(client)
	decision := Decision{Limit: p.Limit(contentType), Live: p.LiveModeEnabled}
	if decision.Limit <= 0 {
		decision.Reason = fmt.Sprintf("quota disabled for %s/%s", client, contentType)
		return decision, nil
	}

	used, err := e.UsedToday(ctx, client, contentType)
	if err != nil {
		return decision, err
	}
	decision.Used = used
	decision.Allowed = used < decision.Limit
	if !decision.Allowed {
		decision.Reason = fmt.Sprintf("quota reached for %s/%s (%d/%d)", client, contentType, used, decision.Limit)
	}
	return decision, nil
}

// Usage is one row of a quota report.
type Usage struct {
	Client      string
	ContentType queue.ContentType
	Used        int
	Limit       int
	Live        bool
	Defaulted   bool
}

// Report returns today's usage for every content type of each client.
func (e *Engine) Report(ctx context.Context, clients []string) ([]Usage, error) {
	out := make([]Usage, 0, len(clients)*len(queue.AllContentTypes()))
	for _, client := range clients {
		p := e.policies.Load(client)
		for _, ct := range queue.AllContentTypes() {
			used, err := e.UsedToday(ctx, client, ct)
			if err != nil {
				return nil, err
			}
			out = append(out, Usage{
				Client:      client,
				ContentType: ct,
				Used:        used,
				Limit:       p.Limit(ct),
				Live:        p.LiveModeEnabled,
				Defaulted:   p.Defaulted,
			})
		}
	}
	return out, nil
}
