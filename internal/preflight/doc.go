// Package preflight runs environment checks before the loops start: that the
// working directories exist and are writable, have free space, that the
// reference time zone loads, that the live uploader resolves on PATH, and
// that the queue database is healthy.
package preflight
