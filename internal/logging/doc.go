// Package logging assembles structured zap loggers and field helpers used
// across autoposter services.
//
// It owns the console/JSON encoders, centralizes level and output plumbing,
// and exposes the shared field keys (job id, client, content type, event
// type) so the watcher, dispatcher, and CLI emit log lines with the same
// shape. A no-op logger is provided for tests and wiring code that cannot
// fail.
package logging
