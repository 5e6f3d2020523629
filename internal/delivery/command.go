package delivery

import (
	"bytes"
	"context"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"autoposter/internal/config"
	"autoposter/internal/logging"
)

const stderrTailLimit = 512

// Command delivers by running the configured uploader as
//
//	command [args...] <client> <content_type> <path> <caption>
//
// The last non-empty stdout line is the media id.
type Command struct {
	path          string
	args          []string
	timeout       time.Duration
	permanentExit []int
	logger        *zap.Logger
}

// NewCommand builds a Command from cfg.Delivery. It returns ErrNotConfigured
// when no command is set.
func NewCommand(cfg *config.Config, logger *zap.Logger) (*Command, error) {
	if strings.TrimSpace(cfg.Delivery.Command) == "" {
		return nil, errors.WithHint(ErrNotConfigured, "set delivery.command or AUTOPOSTER_DELIVERY_COMMAND")
	}
	return &Command{
		path:          cfg.Delivery.Command,
		args:          append([]string(nil), cfg.Delivery.Args...),
		timeout:       cfg.DeliveryTimeout(),
		permanentExit: append([]int(nil), cfg.Delivery.PermanentExitCodes...),
		logger:        logging.NewComponentLogger(logger, "uploader"),
	}, nil
}

// Deliver runs the uploader once.
func (c *Command) Deliver(ctx context.Context, req Request) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string(nil), c.args...), req.Client, string(req.ContentType), req.Path, req.Caption)
	cmd := exec.CommandContext(runCtx, c.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", errors.WithHint(
				errors.Newf("uploader timed out after %s", c.timeout),
				"raise delivery.timeout_seconds or check the uploader's network access",
			)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			failure := errors.Newf("uploader exited with code %d: %s", code, tail(stderr.String()))
			if slices.Contains(c.permanentExit, code) {
				return "", errors.WithHint(Permanent(failure), "the uploader rejected this media; fix it and run queue retry")
			}
			return "", failure
		}
		return "", errors.WithHint(errors.Wrap(err, "start uploader"), "check delivery.command points at an executable")
	}

	mediaID := lastLine(stdout.String())
	c.logger.Info("uploader finished",
		zap.Int64(logging.FieldJobID, req.JobID),
		zap.String(logging.FieldClient, req.Client),
		zap.String(logging.FieldMediaID, mediaID),
		zap.Duration("elapsed", elapsed),
	)
	return mediaID, nil
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTailLimit {
		return s
	}
	return "..." + s[len(s)-stderrTailLimit:]
}
