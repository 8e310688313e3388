// Package timer implements a durable timer-trigger scheduling core.
//
// It computes next occurrences of a recurring schedule in a named civil
// time zone (cron or constant-interval), persists per-timer occurrence
// bookkeeping through a pluggable ScheduleMonitor, and drives a per-timer
// state machine (TimerListener) that arms a platform timer, fires a user
// callback, and advances the monitor across restarts.
//
// Everything in this package is pure scheduling logic; it has no opinion
// about how the user callback is actually run (see Executor) or where
// ScheduleStatus is actually stored (see Storage). Those collaborators are
// supplied by the host.
package timer
