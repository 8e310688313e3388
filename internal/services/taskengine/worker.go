package taskengine

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"pewbot/internal/eventbus"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedTask, idx int) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, stopCh, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, qt queuedTask) {
	start := time.Now()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "task.started", Time: start, Data: TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start}})
	}
	if qt.track && qt.state != nil {
		defer qt.state.release()
	}

	// Copy config for race-free history trimming.
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	attempts, err := s.runAttempts(ctx, stopCh, qt.task, qt.opt, qt.timeout)

	dur := time.Since(start)
	item := HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed", slog.String("task", qt.task.Name), slog.Any("err", err), slog.Duration("dur", dur), slog.Int("attempts", attempts))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "task.failed", Time: time.Now(), Data: TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, Duration: dur, Attempts: attempts, Error: item.Error}})
		}
	} else {
		if dur >= 750*time.Millisecond {
			s.log.Info("task completed", slog.String("task", qt.task.Name), slog.Duration("dur", dur), slog.Int("attempts", attempts))
		} else {
			s.log.Debug("task completed", slog.String("task", qt.task.Name), slog.Duration("dur", dur), slog.Int("attempts", attempts))
		}
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "task.finished", Time: time.Now(), Data: TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, Duration: dur, Attempts: attempts}})
		}
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = 200
	}
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

// runAttempts runs t.Run, retrying per opt up to opt.RetryMax times with
// backoff between attempts. stopCh may be nil for callers that have no
// separate stop signal (e.g. a synchronous caller already bound to ctx).
func (s *Service) runAttempts(ctx context.Context, stopCh <-chan struct{}, t Task, opt TaskOptions, timeout time.Duration) (attempts int, err error) {
	retries := opt.RetryMax
	if retries < 0 {
		retries = 0
	}

	maxAttempts := 1 + retries
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt

		runCtx := ctx
		var cancel func()
		if timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		err = t.Run(runCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			break
		}
		if attempt >= maxAttempts {
			break
		}

		delay := backoffDelay(opt, attempt)
		if delay > 0 {
			s.log.Debug("task retry scheduled", slog.String("task", t.Name), slog.Int("attempt", attempt+1), slog.Duration("delay", delay), slog.Any("err", err))
			tmr := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				err = ctx.Err()
				break attemptLoop
			case <-stopCh:
				if !tmr.Stop() {
					<-tmr.C
				}
				err = errors.New("taskengine stopped")
				break attemptLoop
			case <-tmr.C:
			}
		}
	}
	return attempts, err
}

// RunSync executes t in the caller's goroutine, applying the same retry and
// timeout policy as a queued task, and records the run in history. Unlike
// Enqueue, it blocks until the run (and any retries) complete, which is what
// a durable timer fire protocol needs: the caller must know the outcome of
// "this occurrence" before it can persist the next one.
//
// RunSync bypasses the worker pool and queue entirely, so it runs even when
// the engine's queue is full or the engine itself is stopped; the caller
// (e.g. a timer listener) owns its own lifecycle.
func (s *Service) RunSync(ctx context.Context, t Task) (attempts int, err error) {
	if t.Run == nil {
		return 0, errors.New("task Run is nil")
	}
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	opt := t.Opt.withDefaults(cfg)
	timeout := t.Timeout
	if timeout <= 0 && cfg.DefaultTimeout > 0 {
		timeout = cfg.DefaultTimeout
	}

	start := time.Now()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "task.started", Time: start, Data: TaskEvent{ID: t.ID, Name: t.Name, Started: start}})
	}

	attempts, err = s.runAttempts(ctx, nil, t, opt, timeout)

	dur := time.Since(start)
	item := HistoryItem{ID: t.ID, Name: t.Name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed", slog.String("task", t.Name), slog.Any("err", err), slog.Duration("dur", dur), slog.Int("attempts", attempts))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "task.failed", Time: time.Now(), Data: TaskEvent{ID: t.ID, Name: t.Name, Started: start, Duration: dur, Attempts: attempts, Error: item.Error}})
		}
	} else {
		if dur >= 750*time.Millisecond {
			s.log.Info("task completed", slog.String("task", t.Name), slog.Duration("dur", dur), slog.Int("attempts", attempts))
		} else {
			s.log.Debug("task completed", slog.String("task", t.Name), slog.Duration("dur", dur), slog.Int("attempts", attempts))
		}
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "task.finished", Time: time.Now(), Data: TaskEvent{ID: t.ID, Name: t.Name, Started: start, Duration: dur, Attempts: attempts}})
		}
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = 200
	}
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()

	return attempts, err
}

func backoffDelay(opt TaskOptions, retry int) time.Duration {
	base := opt.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := opt.RetryMaxDelay
	if maxD <= 0 {
		maxD = 15 * time.Second
	}
	j := opt.RetryJitter
	if j <= 0 {
		j = 0.2
	}

	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d > maxD {
			d = maxD
			break
		}
	}
	if j > 0 {
		r := (randFloat64()*2 - 1) * j
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > maxD {
		d = maxD
	}
	return d
}

var rngMu sync.Mutex
var rngOnce sync.Once

func randFloat64() float64 {
	rngOnce.Do(func() { rand.Seed(time.Now().UnixNano()) })
	rngMu.Lock()
	defer rngMu.Unlock()
	return rand.Float64()
}
