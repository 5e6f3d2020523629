package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, client, path, content_type, caption, eta, status, source, created_at, updated_at, posted_at, attempts, last_error, reschedule_reason, media_id"

// timestampLayout is fixed width so text comparison in SQL matches time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               int64
		client           string
		path             string
		contentType      string
		caption          sql.NullString
		etaRaw           string
		statusStr        string
		source           sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		postedRaw        sql.NullString
		attempts         sql.NullInt64
		lastError        sql.NullString
		rescheduleReason sql.NullString
		mediaID          sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&client,
		&path,
		&contentType,
		&caption,
		&etaRaw,
		&statusStr,
		&source,
		&createdRaw,
		&updatedRaw,
		&postedRaw,
		&attempts,
		&lastError,
		&rescheduleReason,
		&mediaID,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		Client:           client,
		Path:             path,
		ContentType:      ContentType(contentType),
		Caption:          caption.String,
		Status:           Status(statusStr),
		Source:           Source(source.String),
		Attempts:         int(attempts.Int64),
		LastError:        lastError.String,
		RescheduleReason: rescheduleReason.String,
		MediaID:          mediaID.String,
	}
	if eta, err := parseTimeString(etaRaw); err == nil {
		job.ETA = eta
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if postedRaw.Valid {
		if posted, err := parseTimeString(postedRaw.String); err == nil {
			job.PostedAt = &posted
		}
	}
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
