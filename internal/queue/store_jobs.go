package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// InsertIfAbsent creates a queued job unless one already exists for the same
// (client, path). It returns the job id and whether this call created it; a
// duplicate returns the existing id with created=false and no error.
func (s *Store) InsertIfAbsent(ctx context.Context, job NewJob) (int64, bool, error) {
	client := strings.TrimSpace(job.Client)
	path := strings.TrimSpace(job.Path)
	if client == "" {
		return 0, false, fmt.Errorf("%w: client is required", ErrInvalidJob)
	}
	if path == "" {
		return 0, false, fmt.Errorf("%w: path is required", ErrInvalidJob)
	}
	if _, ok := ParseContentType(string(job.ContentType)); !ok {
		return 0, false, fmt.Errorf("%w: unknown content type %q", ErrInvalidJob, job.ContentType)
	}
	if job.ETA.IsZero() {
		return 0, false, fmt.Errorf("%w: eta is required", ErrInvalidJob)
	}
	source := job.Source
	if source == "" {
		source = SourceWatch
	}

	now := formatTime(time.Now())
	var (
		id      int64
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (
                client, path, content_type, caption, eta, status, source, created_at, updated_at, attempts
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
            ON CONFLICT (client, path) DO NOTHING`,
			client,
			path,
			string(job.ContentType),
			job.Caption,
			formatTime(job.ETA),
			StatusQueued,
			string(source),
			now,
			now,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 1 {
			created = true
			id, err = res.LastInsertId()
			return err
		}
		created = false
		return tx.QueryRowContext(ctx, `SELECT id FROM jobs WHERE client = ? AND path = ?`, client, path).Scan(&id)
	})
	if err != nil {
		return 0, false, fmt.Errorf("insert job: %w", err)
	}
	return id, created, nil
}

// GetByID fetches a job by identifier. A missing job returns nil without error.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindByPath returns the job for a (client, path) pair, or nil when none exists.
func (s *Store) FindByPath(ctx context.Context, client, path string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE client = ? AND path = ?`,
		strings.TrimSpace(client), strings.TrimSpace(path),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find job by path: %w", err)
	}
	return job, nil
}

// DueJobs returns queued jobs whose ETA is at or before q.AsOf, oldest ETA
// first with id as the tie-break, capped at q.Limit.
func (s *Store) DueJobs(ctx context.Context, q DueQuery) ([]*Job, error) {
	ctx = ensureContext(ctx)
	asOf := q.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = ? AND eta <= ?`
	args := []any{StatusQueued, formatTime(asOf)}
	if client := strings.TrimSpace(q.Client); client != "" {
		query += ` AND client = ?`
		args = append(args, client)
	}
	query += ` ORDER BY eta, id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan due jobs: %w", err)
	}
	return jobs, nil
}

// List returns jobs matching the filter ordered by ETA then id.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	ctx = ensureContext(ctx)
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, `status IN (`+makePlaceholders(len(filter.Statuses))+`)`)
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if client := strings.TrimSpace(filter.Client); client != "" {
		clauses = append(clauses, `client = ?`)
		args = append(args, client)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY eta, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return scanJobs(rows)
}

// RecentActivity returns jobs updated at or after since, newest first.
func (s *Store) RecentActivity(ctx context.Context, since time.Time, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE updated_at >= ? ORDER BY updated_at DESC, id DESC`
	args := []any{formatTime(since)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	return scanJobs(rows)
}

// CountDone counts done jobs for a (client, content type) whose posted_at lies
// in the half-open interval [from, to).
func (s *Store) CountDone(ctx context.Context, client string, contentType ContentType, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM jobs
         WHERE status = ? AND client = ? AND content_type = ?
           AND posted_at >= ? AND posted_at < ?`,
		StatusDone,
		client,
		string(contentType),
		formatTime(from),
		formatTime(to),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count done jobs: %w", err)
	}
	return count, nil
}
