// Package notifications sends operator alerts to an ntfy topic.
//
// Only events that need a human are published: a job that failed for good
// and a file the watcher could not place. With no topic configured NewService
// returns a no-op, so callers never check for nil.
package notifications
