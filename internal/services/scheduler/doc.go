// Package scheduler is the host-level owner of every durable timer
// trigger declared in config.
//
// # Overview
//
// Each declared timer becomes one internal/timer.TimerListener: a
// schedule ("0 0 3 * * *", "15m", "02:30", ...) plus an IANA time zone,
// armed against a Clock and, when monitoring is enabled, checked for
// past-due occurrences against a durable internal/timer.ScheduleMonitor
// on every Start. The actual work a timer runs is registered separately
// by logical name (RegisterJob) so config can describe *when* without
// needing to know *what*.
//
// # Execution
//
// Every fire runs synchronously through an internal/services/taskengine
// Service via RunSync, so the engine's retry/backoff policy and history
// apply to timer-triggered work exactly as they do to ad hoc enqueued
// tasks. The listener ignores the run's outcome for scheduling purposes:
// a failed run still advances the schedule, matching the external
// TimerTrigger contract this package implements.
//
// # Hot reload
//
// Apply reconciles the running timer set against a new Config: removed
// timers stop, new ones (with a registered job) start, and timers whose
// schedule/timezone/monitor setting changed restart. Timers whose
// declaration is unchanged are left alone so an in-flight occurrence
// never gets interrupted by an unrelated config edit.
package scheduler
