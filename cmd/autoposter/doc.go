// Package main hosts the autoposter CLI entrypoint and command graph.
//
// The Cobra command tree runs the watcher and dispatcher loops, enqueues and
// backfills media by hand, and exposes queue maintenance, quota reports,
// liveness status, and preflight checks. Commands open the queue database
// directly; SQLite WAL mode lets them run beside a live daemon.
package main
