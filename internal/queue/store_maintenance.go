package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// ResetStuckInProgress returns jobs left in_progress by a dispatcher that
// died mid-delivery to the queue with their existing ETA.
func (s *Store) ResetStuckInProgress(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, reschedule_reason = ?, updated_at = ? WHERE status = ?`,
		StatusQueued,
		ReasonRecovered,
		formatTime(time.Now()),
		StatusInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to queued with eta set to asOf and the
// attempt counter cleared. With no ids every failed job is retried.
func (s *Store) RetryFailed(ctx context.Context, asOf time.Time, ids ...int64) (int64, error) {
	args := []any{StatusQueued, formatTime(asOf), ReasonRetry, formatTime(time.Now()), StatusFailed}
	query := `UPDATE jobs
        SET status = ?, eta = ?, attempts = 0, reschedule_reason = ?, updated_at = ?
        WHERE status = ?`
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// ForceDue sets the ETA of a client's queued jobs to asOf so the next tick
// considers them. Quotas still apply.
func (s *Store) ForceDue(ctx context.Context, client string, asOf time.Time) (int64, error) {
	client = strings.TrimSpace(client)
	if client == "" {
		return 0, fmt.Errorf("%w: client is required", ErrInvalidJob)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET eta = ?, reschedule_reason = ?, updated_at = ?
         WHERE client = ? AND status = ? AND eta > ?`,
		formatTime(asOf),
		ReasonForced,
		formatTime(time.Now()),
		client,
		StatusQueued,
		formatTime(asOf),
	)
	if err != nil {
		return 0, fmt.Errorf("force jobs due: %w", err)
	}
	return res.RowsAffected()
}

// PurgeDone deletes done jobs posted before cutoff. This is an operator
// action; the runtime loops never delete rows.
func (s *Store) PurgeDone(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE status = ? AND posted_at IS NOT NULL AND posted_at < ?`,
		StatusDone,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("purge done jobs: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusInProgress:
			health.InProgress += count
		case StatusDone:
			health.Done += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// ClientSummaries returns per-client counts and the next queued ETA, sorted by client.
func (s *Store) ClientSummaries(ctx context.Context) ([]ClientSummary, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT client, status, COUNT(1), MIN(CASE WHEN status = 'queued' THEN eta END)
         FROM jobs GROUP BY client, status`)
	if err != nil {
		return nil, fmt.Errorf("client summaries: %w", err)
	}
	defer rows.Close()

	byClient := make(map[string]*ClientSummary)
	for rows.Next() {
		var (
			client  string
			status  Status
			count   int
			nextETA sql.NullString
		)
		if err := rows.Scan(&client, &status, &count, &nextETA); err != nil {
			return nil, err
		}
		summary, ok := byClient[client]
		if !ok {
			summary = &ClientSummary{Client: client}
			byClient[client] = summary
		}
		switch status {
		case StatusQueued:
			summary.Queued = count
			if nextETA.Valid {
				if eta, err := parseTimeString(nextETA.String); err == nil {
					summary.NextETA = &eta
				}
			}
		case StatusInProgress:
			summary.InProgress = count
		case StatusDone:
			summary.Done = count
		case StatusFailed:
			summary.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ClientSummary, 0, len(byClient))
	for _, summary := range byClient {
		out = append(out, *summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'jobs'")
	if err := row.Scan(&tableName); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		columns, err := s.tableColumns(connCtx)
		if err != nil {
			health.Error = err.Error()
			return health, err
		}
		health.ColumnsPresent = columns

		present := make(map[string]struct{}, len(columns))
		for _, col := range columns {
			present[col] = struct{}{}
		}
		for _, col := range expectedColumns {
			if _, ok := present[col]; !ok {
				health.MissingColumns = append(health.MissingColumns, col)
			}
		}

		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM jobs").Scan(&health.TotalJobs); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count jobs: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

func (s *Store) tableColumns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(jobs)")
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}
	return columns, nil
}
