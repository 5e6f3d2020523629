// Package delivery posts a job's media either to the live channel through an
// external command or, in dry-run, to the local export directory.
//
// Every failure is retryable unless it is marked with ErrPermanent. A media
// file that disappeared after enqueue is also permanent.
package delivery

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"autoposter/internal/queue"
)

// Request carries everything a deliverer needs for one job.
type Request struct {
	JobID       int64
	Client      string
	Path        string
	Caption     string
	ContentType queue.ContentType
}

// Deliverer posts one job and returns the channel's media identifier.
type Deliverer interface {
	Deliver(ctx context.Context, req Request) (string, error)
}

// ErrPermanent marks failures that waiting will not fix.
var ErrPermanent = errors.New("permanent delivery failure")

// ErrNotConfigured is returned when live delivery is requested without a command.
var ErrNotConfigured = errors.New("live delivery command not configured")

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrPermanent)
}

// IsPermanent reports whether err should move the job to failed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || errors.Is(err, os.ErrNotExist)
}

// Hint joins any operator hints attached to err.
func Hint(err error) string {
	return strings.TrimSpace(errors.FlattenHints(err))
}

// Func adapts a function to Deliverer.
type Func func(ctx context.Context, req Request) (string, error)

// Deliver calls f.
func (f Func) Deliver(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
