// Package ingest turns filesystem activity under the content root into
// queued jobs.
//
// Raw fsnotify events are filtered, coalesced per path by the Debouncer, and
// once a path has been quiet for the debounce window it is classified as
// <client>/<content_type>/<file> and inserted through queue.Store's
// insert-or-ignore contract. Backfill walks the same pipeline over files that
// already exist.
package ingest
