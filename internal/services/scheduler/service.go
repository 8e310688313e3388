package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"pewbot/internal/services/taskengine"
	"pewbot/internal/timer"
	"pewbot/pkg/logx"
)

// Service is the host-level owner of every durable timer trigger declared
// in config: it turns each TimerDef into a timer.Schedule + timer.Zone
// pair, wires a timer.TimerListener for it backed by a shared
// timer.ScheduleMonitor (when storage is enabled) and a taskengine-backed
// Executor, and keeps that set in sync as config hot-reloads.
//
// Jobs are registered separately from config by name (RegisterJob) and
// looked up when the timer starts: a plugin registers what a timer named
// "nightly_cleanup" does, while config (possibly changed later by a
// hot-reload) says when it runs.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	engine  *taskengine.Service
	monitor *timer.ScheduleMonitor // nil when storage is disabled

	jobs    map[string]TimerJob
	running map[string]*runningTimer

	runCtx context.Context
}

// New builds a Service. store may be nil, which disables durable
// monitoring entirely: every timer's effective UseMonitor becomes false
// regardless of its own setting or config default, matching the "none"
// storage driver's contract.
func New(cfg Config, log logx.Logger, engine *taskengine.Service, store timer.Storage) *Service {
	var monitor *timer.ScheduleMonitor
	if store != nil {
		monitor = timer.NewScheduleMonitor(store)
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		engine:  engine,
		monitor: monitor,
		jobs:    map[string]TimerJob{},
		running: map[string]*runningTimer{},
	}
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// RegisterJob binds a logical timer name to the work it runs. Call before
// Start (or before the timer's declaration first appears via Apply); a
// TimerDef whose name has no registered job is skipped with a warning.
func (s *Service) RegisterJob(name string, job TimerJob) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("scheduler: job name must not be empty")
	}
	if job == nil {
		return fmt.Errorf("scheduler: job %q must not be nil", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = job
	return nil
}

// Start builds and starts a TimerListener for every configured timer that
// has a registered job. It is idempotent: timers already running are left
// untouched.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled; no timers started")
		return
	}
	s.runCtx = ctx
	for _, def := range s.cfg.Timers {
		s.startLocked(def)
	}
	s.log.Info("scheduler started", logx.Int("timers", len(s.running)))
}

// startLocked builds and starts one timer. Call with s.mu held.
func (s *Service) startLocked(def TimerDef) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		s.log.Warn("skipping timer with an empty name")
		return
	}
	if _, exists := s.running[name]; exists {
		dupErr := &timer.ConfigurationError{Timer: name, Err: fmt.Errorf("timer %q already registered", name)}
		s.log.Error("duplicate timer name; only the first declaration is started", logx.Err(dupErr))
		return
	}
	job, ok := s.jobs[name]
	if !ok {
		s.log.Warn("skipping timer with no registered job", logx.String("timer", name))
		return
	}
	lis, err := s.buildListener(def, job)
	if err != nil {
		s.log.Error("failed to build timer", logx.String("timer", name), logx.Err(err))
		return
	}
	if err := lis.Start(s.runCtx); err != nil {
		s.log.Error("failed to start timer", logx.String("timer", name), logx.Err(err))
		return
	}
	s.running[name] = &runningTimer{def: def, listener: lis}
}

func (s *Service) buildListener(def TimerDef, job TimerJob) (*timer.TimerListener, error) {
	name := strings.TrimSpace(def.Name)
	expr := timer.ResolvePlaceholders(def.Schedule, s.cfg.Vars)
	sched, err := timer.ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	zone, err := timer.LoadZone(def.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timer %q: invalid timezone %q: %w", name, def.Timezone, err)
	}

	// Auto-detection rule: monitor durably unless the schedule fires more
	// than once a minute (a cron schedule with several seconds values, or a
	// constant period under a minute), where status.Next granularity would
	// dominate the write path. An explicit UseMonitor always wins, and
	// disabled storage always wins over that.
	useMonitor := !sched.OccursMoreThanOncePerMinute()
	if def.UseMonitor != nil {
		useMonitor = *def.UseMonitor
	}
	if s.monitor == nil {
		useMonitor = false
	}

	return timer.NewTimerListener(timer.ListenerConfig{
		Name:         name,
		Schedule:     sched,
		Zone:         zone,
		UseMonitor:   useMonitor,
		RunOnStartup: def.RunOnStartup,
		Monitor:      s.monitor,
		Executor:     newEngineExecutor(s.engine, def, job),
		Log:          s.log,
	})
}

// Stop stops every running timer. Listeners are disposed; a subsequent
// Start rebuilds them from scratch.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	running := s.running
	s.running = map[string]*runningTimer{}
	s.mu.Unlock()

	for name, rt := range running {
		if err := rt.listener.Stop(ctx); err != nil {
			s.log.Warn("timer stop failed", logx.String("timer", name), logx.Err(err))
		}
	}
	s.log.Info("scheduler stopped", logx.Int("timers", len(running)))
}

// Apply reconciles the running timer set against a new Config: timers
// removed from config are stopped, new ones are started (if their job is
// registered), and timers whose schedule/timezone/monitor setting changed
// are restarted so the new declaration takes effect immediately. Timers
// whose declaration is unchanged are left running untouched, so an
// in-flight occurrence is never interrupted by an unrelated config edit.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	oldByName := make(map[string]TimerDef, len(s.cfg.Timers))
	for _, d := range s.cfg.Timers {
		oldByName[strings.TrimSpace(d.Name)] = d
	}
	newByName := make(map[string]TimerDef, len(cfg.Timers))
	for _, d := range cfg.Timers {
		newByName[strings.TrimSpace(d.Name)] = d
	}
	s.cfg = cfg
	s.mu.Unlock()

	if !cfg.Enabled {
		s.Stop(ctx)
		return
	}

	s.mu.Lock()
	var toStop []string
	for name := range s.running {
		def, stillDeclared := newByName[name]
		if !stillDeclared {
			toStop = append(toStop, name)
			continue
		}
		if !sameTimerDef(oldByName[name], def) {
			toStop = append(toStop, name)
		}
	}
	stopping := make(map[string]*runningTimer, len(toStop))
	for _, name := range toStop {
		stopping[name] = s.running[name]
		delete(s.running, name)
	}
	s.mu.Unlock()

	for name, rt := range stopping {
		if err := rt.listener.Stop(ctx); err != nil {
			s.log.Warn("timer stop failed during reload", logx.String("timer", name), logx.Err(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runCtx = ctx
	for _, def := range cfg.Timers {
		s.startLocked(def)
	}
}

func sameTimerDef(a, b TimerDef) bool {
	if a.Schedule != b.Schedule || a.Timezone != b.Timezone || a.RunOnStartup != b.RunOnStartup || a.Timeout != b.Timeout {
		return false
	}
	switch {
	case a.UseMonitor == nil && b.UseMonitor == nil:
		return true
	case a.UseMonitor == nil || b.UseMonitor == nil:
		return false
	default:
		return *a.UseMonitor == *b.UseMonitor
	}
}
