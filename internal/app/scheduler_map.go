package app

import (
	"fmt"
	"strings"

	"pewbot/internal/services/scheduler"
)

// mapSchedulerConfig converts config.Config into scheduler.Config: one
// scheduler.TimerDef per declared config.TimerConfig, plus the
// placeholder substitution table. cfg.Scheduler.Enabled gates the whole
// timer set, the same flag that used to gate the legacy execution
// engine before task_engine split out.
func mapSchedulerConfig(cfg *Config) (scheduler.Config, error) {
	if cfg == nil {
		return scheduler.Config{}, nil
	}

	defs := make([]scheduler.TimerDef, 0, len(cfg.Timers))
	for i, tc := range cfg.Timers {
		name := strings.TrimSpace(tc.Name)
		if name == "" {
			return scheduler.Config{}, fmt.Errorf("timers[%d].name must not be empty", i)
		}
		timeout, err := parseDurationField(fmt.Sprintf("timers[%d].timeout", i), tc.Timeout)
		if err != nil {
			return scheduler.Config{}, err
		}
		defs = append(defs, scheduler.TimerDef{
			Name:         name,
			Schedule:     tc.Schedule,
			Timezone:     tc.Timezone,
			UseMonitor:   tc.UseMonitor,
			RunOnStartup: tc.RunOnStartup,
			Timeout:      timeout,
		})
	}

	return scheduler.Config{
		Enabled: cfg.Scheduler.Enabled,
		Timers:  defs,
		Vars:    cfg.Vars,
	}, nil
}
