package timer

import "context"

// TimerInfo is the immutable value handed to the user callback at
// invocation time.
type TimerInfo struct {
	Name      string
	Schedule  Schedule
	Zone      Zone
	Status    *ScheduleStatus // nil if monitoring is disabled
	IsPastDue bool
}

// InvocationResult is what an Executor reports back for a single fire.
// The listener ignores OK/Err for scheduling purposes: every fire advances
// the schedule regardless of outcome. The fields exist purely for
// diagnostics and host-level retry/overlap policy.
type InvocationResult struct {
	OK  bool
	Err error
}

// Executor is the job execution runtime collaborator: given a TimerInfo
// and a cancellation context, it runs the user function once and reports
// whether it succeeded. Supplying this is explicitly the host's job —
// the core never runs user code itself.
type Executor interface {
	Invoke(ctx context.Context, info TimerInfo) InvocationResult
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, info TimerInfo) InvocationResult

func (f ExecutorFunc) Invoke(ctx context.Context, info TimerInfo) InvocationResult { return f(ctx, info) }
