package ingest

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"autoposter/internal/logging"
	"autoposter/internal/queue"
)

// BackfillReport summarises a backfill walk.
type BackfillReport struct {
	Scanned    int
	Added      int
	Duplicates int
	Rejected   int
}

// Backfill enqueues every existing media file under the content root. When
// client is set only that client's folder is walked.
func (e *Enqueuer) Backfill(ctx context.Context, client string) (BackfillReport, error) {
	var report BackfillReport
	root := e.Root()
	if client = strings.TrimSpace(client); client != "" {
		root = filepath.Join(root, client)
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		report.Scanned++
		out, err := e.Enqueue(ctx, path, Options{Source: queue.SourceBackfill})
		if err != nil {
			return err
		}
		switch {
		case out.Rejected != "":
			report.Rejected++
		case out.Created:
			report.Added++
		default:
			report.Duplicates++
		}
		return nil
	})

	e.logger.Info("backfill finished",
		zap.String(logging.FieldPath, root),
		zap.Int("scanned", report.Scanned),
		zap.Int("added", report.Added),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("rejected", report.Rejected),
	)
	return report, err
}
