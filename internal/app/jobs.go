package app

import (
	"context"
	"time"

	"pewbot/internal/services/scheduler"
	"pewbot/internal/storage"
	"pewbot/internal/timer"
	logx "pewbot/pkg/logx"
)

// auditWrap wraps a TimerJob so every run (success or failure) leaves an
// AuditEntry behind, the same trail plugin-issued commands leave in the
// audit store. Timer runs have no actor/chat, so those fields stay zero.
func auditWrap(store storage.Store, name string, job scheduler.TimerJob) scheduler.TimerJob {
	if store == nil {
		return job
	}
	return func(ctx context.Context, info timer.TimerInfo) error {
		start := time.Now()
		err := job(ctx, info)
		entry := storage.AuditEntry{
			At:     start,
			Plugin: "timer",
			Action: name,
			TookMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			entry.Fail = 1
			entry.Error = err.Error()
		} else {
			entry.OK = 1
		}
		_ = store.AppendAudit(context.Background(), entry)
		return err
	}
}

// heartbeatJob is the built-in demo timer: it logs the fire and, when a
// durable monitor is attached, the persisted status it fired against.
// Hosts register their own jobs by name with RegisterJob; this one exists
// so a fresh config with no jobs wired still has something to observe.
func heartbeatJob(log logx.Logger) scheduler.TimerJob {
	return func(_ context.Context, info timer.TimerInfo) error {
		fields := []logx.Field{logx.String("timer", info.Name), logx.Bool("past_due", info.IsPastDue)}
		if info.Status != nil {
			fields = append(fields, logx.Time("last", info.Status.Last), logx.Time("next", info.Status.Next))
		}
		log.Info("heartbeat", fields...)
		return nil
	}
}
