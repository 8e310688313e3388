package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pewbot/pkg/logx"
)

// listenerState is the TimerListener lifecycle: only Created -> Started ->
// Stopped -> Disposed transitions are valid. Start rejects a listener that
// isn't Created; Stop rejects one that was never started and is a no-op
// for one already Stopped or Disposed.
type listenerState int32

const (
	stateCreated listenerState = iota
	stateStarted
	stateStopped
	stateDisposed
)

// skewTolerance bounds how far "now" may fall short of the persisted
// status.Next before a fire is no longer treated as the expected occurrence.
// A platform timer routinely fires a handful of milliseconds early; beyond
// that it isn't clock skew, it's a listener armed against the wrong target.
const skewTolerance = 5 * time.Millisecond

// ListenerConfig configures a TimerListener. Storage, Executor and Clock are
// host-supplied collaborators; everything else mirrors the timer's external
// declaration.
type ListenerConfig struct {
	Name         string
	Schedule     Schedule
	Zone         Zone
	UseMonitor   bool
	RunOnStartup bool
	Monitor      *ScheduleMonitor // required when UseMonitor is true
	Executor     Executor
	Clock        Clock // defaults to SystemClock when nil
	Log          logx.Logger
}

// TimerListener is the runtime state machine that arms a single Schedule
// against a Clock, invokes an Executor when it fires, and durably records
// occurrences through a ScheduleMonitor when monitoring is enabled. One
// TimerListener exists per declared timer for the lifetime of the host
// process that owns it.
type TimerListener struct {
	name         string
	schedule     Schedule
	zone         Zone
	useMonitor   bool
	runOnStartup bool
	monitor      *ScheduleMonitor
	executor     Executor
	clock        Clock
	log          logx.Logger

	mu         sync.Mutex
	state      listenerState
	lastStatus *ScheduleStatus
	remaining  time.Duration
	timer      StoppableTimer
	cancel     context.CancelFunc
	runCtx     context.Context

	wg sync.WaitGroup
}

// NewTimerListener builds a listener in the Created state. It does not
// start the clock; call Start to arm it.
func NewTimerListener(cfg ListenerConfig) (*TimerListener, error) {
	if cfg.Name == "" {
		return nil, newConfigError(cfg.Name, newPrecondition("timer name must not be empty"))
	}
	if cfg.Schedule.IsZero() {
		return nil, newConfigError(cfg.Name, newPrecondition("schedule must not be zero-valued"))
	}
	if cfg.UseMonitor && cfg.Monitor == nil {
		return nil, newConfigError(cfg.Name, newPrecondition("UseMonitor requires a Monitor"))
	}
	if cfg.Executor == nil {
		return nil, newConfigError(cfg.Name, newPrecondition("Executor must not be nil"))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &TimerListener{
		name:         cfg.Name,
		schedule:     cfg.Schedule,
		zone:         cfg.Zone,
		useMonitor:   cfg.UseMonitor,
		runOnStartup: cfg.RunOnStartup,
		monitor:      cfg.Monitor,
		executor:     cfg.Executor,
		clock:        clock,
		log:          cfg.Log.With(logx.String("timer", cfg.Name)),
		state:        stateCreated,
	}, nil
}

// Name returns the timer's declared name.
func (l *TimerListener) Name() string { return l.name }

// Start runs the start protocol: load persisted status, check past-due,
// fire a catch-up invocation if warranted, and arm the next occurrence.
// ctx governs the lifetime of every invocation this listener will make;
// Stop derives its own cancellation from it.
func (l *TimerListener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != stateCreated {
		l.mu.Unlock()
		return newPrecondition(fmt.Sprintf("timer %q: Start called outside the Created state", l.name))
	}
	l.state = stateStarted
	l.runCtx, l.cancel = context.WithCancel(ctx)
	runCtx := l.runCtx
	l.mu.Unlock()

	status := l.loadStatus(runCtx)
	l.mu.Lock()
	l.lastStatus = status
	l.mu.Unlock()
	l.logInitialStatus(status)

	now := l.clock.Now()
	pastDue := l.checkPastDue(runCtx, now, status)

	if pastDue > 0 || l.runOnStartup {
		next := l.fire(runCtx, now, pastDue > 0)
		l.armNext(next)
		return nil
	}

	if !l.useMonitor {
		l.logUpcoming(now)
	}

	// Arm toward the durable status's Next when one is available — it has
	// already been reconciled by checkPastDue — rather than recomputing
	// from now, which would silently redefine "next" by however much time
	// has passed since Next was last persisted.
	l.mu.Lock()
	fresh := l.lastStatus
	l.mu.Unlock()

	var next time.Time
	if fresh != nil {
		next = fresh.Next
	} else {
		var err error
		next, err = l.schedule.Next(now, l.zone)
		if err != nil {
			l.mu.Lock()
			l.state = stateCreated
			l.mu.Unlock()
			return err
		}
	}
	l.armNext(next)
	return nil
}

// Stop runs the stop protocol: cancel the run context, halt any pending
// arm, and wait for an in-flight fire to finish without re-arming. Stop is
// idempotent for an already-stopped or already-disposed listener.
func (l *TimerListener) Stop(context.Context) error {
	l.mu.Lock()
	switch l.state {
	case stateCreated:
		l.mu.Unlock()
		return newPrecondition(fmt.Sprintf("timer %q: Stop called before Start", l.name))
	case stateStopped, stateDisposed:
		l.mu.Unlock()
		return nil
	}
	l.state = stateStopped
	if l.timer != nil {
		l.timer.Stop()
	}
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// Any fire already past the state check below is mid-invocation; wait
	// for it so Stop never returns while user code is still running.
	l.wg.Wait()

	l.mu.Lock()
	l.state = stateDisposed
	l.mu.Unlock()
	return nil
}

func (l *TimerListener) loadStatus(ctx context.Context) *ScheduleStatus {
	if !l.useMonitor {
		return nil
	}
	status, err := l.monitor.GetStatus(ctx, l.name)
	if err != nil {
		l.log.Warn("failed to load persisted timer status; continuing as if unmonitored for this run", logx.Err(err))
		return nil
	}
	return status
}

func (l *TimerListener) checkPastDue(ctx context.Context, now time.Time, status *ScheduleStatus) time.Duration {
	if !l.useMonitor {
		return 0
	}
	pastDue, err := l.monitor.CheckPastDue(ctx, l.name, now, l.zone, l.schedule, status)
	if err != nil {
		l.log.Warn("past-due check failed; treating timer as not past due", logx.Err(err))
		return 0
	}
	// CheckPastDue may have (re)written status for a brand-new or
	// schedule-changed timer; reload so fire() sees the fresh Next.
	fresh, err := l.monitor.GetStatus(ctx, l.name)
	if err == nil {
		l.mu.Lock()
		l.lastStatus = fresh
		l.mu.Unlock()
	}
	return pastDue
}

func (l *TimerListener) logInitialStatus(status *ScheduleStatus) {
	if status == nil {
		l.log.Info("no persisted timer status found")
		return
	}
	l.log.Info("loaded persisted timer status",
		logx.Time("last", status.Last),
		logx.Time("next", status.Next),
		logx.Time("last_updated", status.LastUpdated))
}

func (l *TimerListener) logUpcoming(now time.Time) {
	upcoming, err := l.schedule.NextN(5, now, l.zone)
	if err != nil {
		return
	}
	l.log.Info("The next 5 occurrences of the schedule will be:", logx.Any("occurrences", upcoming))
}

// fire runs one invocation: it invokes the executor, computes the next
// occurrence, and — when monitoring is enabled — persists the new status
// before returning. The returned time is always the occurrence to arm for
// next, regardless of whether monitoring is enabled.
func (l *TimerListener) fire(ctx context.Context, now time.Time, isPastDue bool) time.Time {
	l.mu.Lock()
	status := l.lastStatus
	l.mu.Unlock()

	lastOccurrence := determineLastOccurrence(now, status)

	info := TimerInfo{Name: l.name, Schedule: l.schedule, Zone: l.zone, Status: status, IsPastDue: isPastDue}
	result := l.invokeSafely(ctx, info)
	if result.Err != nil {
		l.log.Warn("timer invocation returned an error", logx.Err(result.Err))
	}

	next, err := l.schedule.Next(lastOccurrence, l.zone)
	if err != nil {
		l.log.Error("failed to compute next occurrence after firing; backing off", logx.Err(err))
		next = now.Add(time.Minute)
	}

	if l.useMonitor {
		newStatus := ScheduleStatus{Last: lastOccurrence, Next: next, LastUpdated: now}
		if err := l.monitor.UpdateStatus(ctx, l.name, newStatus); err != nil {
			l.log.Warn("failed to persist timer status after firing; next run may recompute catch-up", logx.Err(err))
		} else {
			l.mu.Lock()
			l.lastStatus = &newStatus
			l.mu.Unlock()
		}
	}
	return next
}

// determineLastOccurrence resolves the "most recent scheduled occurrence at
// or before now" used as the basis for computing the following occurrence.
// With a persisted status, that's status.Next — the fire is happening
// because that instant has arrived. A platform timer firing a few
// milliseconds early is still treated as on-time; anything further early
// falls back to now, since no occurrence has actually elapsed yet.
func determineLastOccurrence(now time.Time, status *ScheduleStatus) time.Time {
	if status == nil {
		return now
	}
	if now.Before(status.Next) && status.Next.Sub(now) > skewTolerance {
		return now
	}
	return status.Next
}

func (l *TimerListener) invokeSafely(ctx context.Context, info TimerInfo) InvocationResult {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("timer executor panicked; recovered", logx.Any("panic", r))
		}
	}()
	return l.executor.Invoke(ctx, info)
}

// armNext schedules the platform timer toward next, splitting the wait
// into hops no longer than MaxTimerInterval. remaining carries whatever is
// left after the hop just armed; it is decremented, never recomputed from
// an absolute target, so a listener resumed mid-carry only needs this one
// field.
func (l *TimerListener) armNext(next time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateStarted {
		return
	}
	now := l.clock.Now()
	interval := next.Sub(now)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	armFor := interval
	if armFor > MaxTimerInterval {
		armFor = MaxTimerInterval
		l.remaining = interval - MaxTimerInterval
	} else {
		l.remaining = 0
	}
	l.timer = l.clock.AfterFunc(armFor, l.onTimerFire)
}

// onTimerFire is the platform timer callback. While a long-interval carry
// remains outstanding, it only re-arms for the next hop; the executor is
// invoked once the carry reaches zero.
func (l *TimerListener) onTimerFire() {
	l.mu.Lock()
	if l.state != stateStarted {
		l.mu.Unlock()
		return
	}
	if l.remaining > 0 {
		step := l.remaining
		if step > MaxTimerInterval {
			step = MaxTimerInterval
		}
		l.remaining -= step
		l.timer = l.clock.AfterFunc(step, l.onTimerFire)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.wg.Add(1)
	defer l.wg.Done()

	l.mu.Lock()
	ctx := l.runCtx
	l.mu.Unlock()

	now := l.clock.Now()
	computedNext := l.fire(ctx, now, false)

	l.mu.Lock()
	stopped := l.state != stateStarted
	l.mu.Unlock()
	if stopped {
		// A late completion must never re-arm; Stop is already waiting on
		// l.wg and will move to Disposed the moment this returns.
		return
	}
	l.armNext(computedNext)
}
