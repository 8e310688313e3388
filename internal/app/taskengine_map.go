package app

import (
	"fmt"
	"strings"

	"pewbot/internal/services/taskengine"
)

// mapTaskEngineConfig converts config.Config into taskengine.Config.
//
// Legacy fallback: older configs set execution knobs under the
// "scheduler" block (workers/default_timeout/history_size/retry_max).
// Those are still honored when task_engine is omitted, and task_engine
// overrides them field by field when present.
func mapTaskEngineConfig(cfg *Config) (taskengine.Config, error) {
	if cfg == nil {
		return taskengine.Config{}, nil
	}

	enabled := cfg.Scheduler.Enabled
	workers := cfg.Scheduler.Workers
	historySize := cfg.Scheduler.HistorySize
	retryMax := cfg.Scheduler.RetryMax
	queueSize := 256

	defTimeoutStr := cfg.Scheduler.DefaultTimeout
	defTimeoutKey := "scheduler.default_timeout"

	if cfg.TaskEngine != nil {
		te := cfg.TaskEngine
		if te.Enabled != nil {
			enabled = *te.Enabled
		}
		if te.Workers != 0 {
			workers = te.Workers
		}
		if te.QueueSize != 0 {
			queueSize = te.QueueSize
		}
		if te.HistorySize != 0 {
			historySize = te.HistorySize
		}
		if te.RetryMax != 0 {
			retryMax = te.RetryMax
		}
		if strings.TrimSpace(te.DefaultTimeout) != "" {
			defTimeoutStr = te.DefaultTimeout
			defTimeoutKey = "task_engine.default_timeout"
		}

		if cfg.Scheduler.Enabled && te.Enabled != nil && !*te.Enabled {
			return taskengine.Config{}, fmt.Errorf("task_engine.enabled cannot be false while scheduler.enabled is true")
		}
	}

	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if historySize < 0 {
		historySize = 0
	} else if historySize == 0 {
		historySize = 200
	}
	if retryMax < 0 {
		retryMax = 0
	} else if retryMax == 0 {
		retryMax = 3
	}

	defTimeout, err := parseDurationField(defTimeoutKey, defTimeoutStr)
	if err != nil {
		return taskengine.Config{}, err
	}

	return taskengine.Config{
		Enabled:        enabled,
		Workers:        workers,
		QueueSize:      queueSize,
		DefaultTimeout: defTimeout,
		HistorySize:    historySize,
		RetryMax:       retryMax,
	}, nil
}
