// Package queue persists posting jobs in SQLite and exposes the state
// transitions the watcher and dispatcher drive.
//
// The Store owns the database connection, the embedded schema, and every
// mutation of a job row. A job moves queued -> in_progress -> done, back to
// queued when it is rescheduled, or to failed for errors that will not get
// better by waiting. The unique (client, path) index is what makes enqueue
// idempotent: re-ingesting the same file returns the existing job id.
//
// Every method is a single statement or a single transaction. Writers are
// serialized by SQLite's WAL journal and busy timeout; SQLITE_BUSY is retried
// with a short capped backoff. Timestamps are stored as fixed-width UTC text
// so lexical order matches chronological order in SQL comparisons.
//
// Schema changes bump the version in schema.go; operators clear the
// database to adopt a new schema.
package queue
