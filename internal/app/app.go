package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pewbot/internal/eventbus"
	"pewbot/internal/observability/pprof"
	"pewbot/internal/services/logging"
	"pewbot/internal/services/scheduler"
	"pewbot/internal/services/taskengine"
	"pewbot/internal/storage"
	logx "pewbot/pkg/logx"
)

// App wires the ambient stack (config, logging, storage, event bus) to
// the durable timer-trigger core: a taskengine.Service runs the work, a
// scheduler.Service owns one timer.TimerListener per declared timer, and
// an optional pprof server exposes runtime profiles. There is no
// Telegram surface here — RegisterJob is how a caller supplies what a
// named timer actually does.
type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store

	engine *taskengine.Service
	sched  *scheduler.Service
	pprof  *pprof.Service
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// No Telegram adapter survives in this host, so Telegram fan-out is
	// always off regardless of what a config file requests; logging.Config
	// still exposes the knob for a future sender-backed deployment.
	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}, nil)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	engineLog := slog.New(logging.NewPrettyHandler(logging.Stdout(), parseSlogLevel(cfg.Logging.Level))).
		With(slog.String("comp", "taskengine"))
	engineSvc := taskengine.New(engCfg, engineLog, bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	schedSvc := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")), engineSvc, store)
	hbJob := auditWrap(store, "heartbeat", heartbeatJob(log.With(logx.String("comp", "heartbeat"))))
	if err := schedSvc.RegisterJob("heartbeat", hbJob); err != nil {
		return nil, err
	}
	// speedtest is opt-in: only wired when a deployment actually declares a
	// timer by that name, since it dials out to third-party infrastructure.
	for _, tc := range cfg.Timers {
		if tc.Name == "speedtest" {
			stJob := auditWrap(store, "speedtest", speedtestJob(log.With(logx.String("comp", "speedtest"))))
			if err := schedSvc.RegisterJob("speedtest", stJob); err != nil {
				return nil, err
			}
			break
		}
	}

	pprofCfg, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	pprofSvc := pprof.New(pprofCfg, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		engine:  engineSvc,
		sched:   schedSvc,
		pprof:   pprofSvc,
	}, nil
}

// Scheduler exposes the timer host so callers can RegisterJob before
// Start, or read a Snapshot for diagnostics after.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// RegisterJob binds a logical timer name (from config.Timers[i].Name) to
// the work it runs. AppendAudit-wraps the job when storage is enabled.
func (a *App) RegisterJob(name string, job scheduler.TimerJob) error {
	return a.sched.RegisterJob(name, auditWrap(a.store, name, job))
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error {
			if cfg.Scheduler.Workers < 0 {
				return fmt.Errorf("scheduler.workers must be >= 0")
			}
			if cfg.Scheduler.HistorySize < 0 {
				return fmt.Errorf("scheduler.history_size must be >= 0")
			}
			if cfg.Scheduler.RetryMax < 0 {
				return fmt.Errorf("scheduler.retry_max must be >= 0")
			}
			if _, err := parseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout); err != nil {
				return err
			}
			if cfg.TaskEngine != nil {
				if cfg.TaskEngine.Workers < 0 {
					return fmt.Errorf("task_engine.workers must be >= 0")
				}
				if cfg.TaskEngine.QueueSize < 0 {
					return fmt.Errorf("task_engine.queue_size must be >= 0")
				}
				if _, err := parseDurationField("task_engine.default_timeout", cfg.TaskEngine.DefaultTimeout); err != nil {
					return err
				}
			}
			if _, err := mapSchedulerConfig(cfg); err != nil {
				return err
			}
			if _, err := mapPprofConfig(cfg); err != nil {
				return err
			}
			if _, _, err := mapStorageConfig(cfg); err != nil {
				return err
			}
			return nil
		})
	}

	if a.engine.Enabled() {
		a.engine.Start(a.sup.Context())
	}
	a.sched.Start(a.sup.Context())
	if a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs, _ := SummarizeConfigChange(lastApplied, newCfg)
				lastApplied = newCfg
				for _, s := range sections {
					if s == "storage" {
						a.log.Warn("storage config changed; restart required for changes to take effect")
						break
					}
				}

				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})

				if newEngCfg, err := mapTaskEngineConfig(newCfg); err != nil {
					a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
				} else {
					prevEnabled := a.engine.Enabled()
					a.engine.Apply(newEngCfg)
					if !prevEnabled && newEngCfg.Enabled {
						a.engine.Start(c)
					} else if prevEnabled && !newEngCfg.Enabled {
						stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
						a.engine.Stop(stopCtx)
						cancel()
					}
				}

				if newSchedCfg, err := mapSchedulerConfig(newCfg); err != nil {
					a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
				} else {
					a.sched.Apply(c, newSchedCfg)
				}

				if ppc, err := mapPprofConfig(newCfg); err != nil {
					a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
				} else {
					a.pprof.Reconfigure(c, ppc)
				}

				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("pprof", 1*time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func parseSlogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
