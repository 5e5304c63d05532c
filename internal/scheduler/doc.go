// Package scheduler is the deferred-publication facade: accept a finished
// article draft plus a future publish time, hold it as a pending row, and
// autonomously promote it to a live article when the time comes.
//
// # Operations
//
// Schedule validates the requested time (minimum lead, maximum horizon),
// stages uploaded images into the staging zone, and persists one pending
// row. Cancel and PublishNow act only on items owned by the caller.
// ListMine/ListAll are read-only projections for the UI.
//
// # Timers
//
// Start wires two cron entries: the promotion tick (minute granularity by
// default) and a low-frequency staging sweep that clears orphaned staging
// files past their retention window. An overlapping tick is skipped, not
// queued; the next tick picks up anything still due.
//
// # Failure semantics
//
// Schedule-time problems surface synchronously as *ValidationError and
// persist nothing. Promotion-time failures move the row to error status
// with a message and are visible through the listings; they are not retried
// automatically.
package scheduler
