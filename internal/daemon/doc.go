// Package daemon coordinates the long-running autoposter process.
//
// It ties the queue store, the ingestion watcher and the dispatcher into one
// lifecycle. Each loop holds a flock on <state_dir>/<loop>.lock so a second
// process cannot run the same loop on this host, and advertises itself with a
// liveness marker that the status command reads.
package daemon
