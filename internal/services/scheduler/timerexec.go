package scheduler

import (
	"context"
	"fmt"
	"time"

	"pewbot/internal/services/taskengine"
	"pewbot/internal/timer"
)

// TimerJob is the host-supplied work a timer fire runs. It receives the
// TimerInfo the core gave the executor (schedule, zone, persisted status,
// whether this fire is a past-due catch-up run).
type TimerJob func(ctx context.Context, info timer.TimerInfo) error

// engineExecutor adapts a taskengine.Service into a timer.Executor: every
// fire becomes one synchronous taskengine run (with the engine's own retry
// and timeout policy), named after the owning TimerDef so history groups by
// timer. RunSync does not consult the task's overlap policy or
// ConcurrencyKey.
type engineExecutor struct {
	engine *taskengine.Service
	def    TimerDef
	opt    taskengine.TaskOptions
	job    TimerJob
}

func (e *engineExecutor) Invoke(ctx context.Context, info timer.TimerInfo) timer.InvocationResult {
	if e.job == nil {
		return timer.InvocationResult{OK: false, Err: fmt.Errorf("timer %q: no job registered", e.def.Name)}
	}
	t := taskengine.Task{
		ID:             fmt.Sprintf("timer:%s:%d", e.def.Name, time.Now().UnixNano()),
		Name:           e.def.Name,
		Timeout:        e.def.Timeout,
		Opt:            e.opt,
		ConcurrencyKey: "timer:" + e.def.Name,
		Run: func(runCtx context.Context) error {
			return e.job(runCtx, info)
		},
	}
	_, err := e.engine.RunSync(ctx, t)
	return timer.InvocationResult{OK: err == nil, Err: err}
}

// newEngineExecutor builds the Executor collaborator a TimerListener needs,
// wired to a specific job by name.
func newEngineExecutor(engine *taskengine.Service, def TimerDef, job TimerJob) timer.Executor {
	return &engineExecutor{
		engine: engine,
		def:    def,
		opt:    taskengine.TaskOptions{Overlap: taskengine.OverlapSkipIfRunning},
		job:    job,
	}
}
