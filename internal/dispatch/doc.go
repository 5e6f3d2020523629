// Package dispatch runs the dispatcher loop: it polls the job store for due
// jobs, applies the daily quota, delivers each job live or as a dry-run
// export, and records the resulting transition.
//
// One tick is FETCH_DUE, then QUOTA_CHECK, DELIVER and FINALIZE per job, then
// SLEEP. Quota exhaustion and transient delivery failures put the job back in
// the queue with a new ETA; only permanent failures, or reaching the
// configured attempt ceiling, end in failed.
package dispatch
