package storage

import (
	"context"
	"errors"
	logx "pewbot/pkg/logx"
	"pewbot/internal/timer"
	"strings"
	"time"
)

// Store is the minimal persistence API used by core/services.
//
// GetTimerStatus/PutTimerStatus satisfy internal/timer.Storage structurally:
// every Store implementation is therefore usable as a ScheduleMonitor
// backend with no adapter type.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	GetTimerStatus(ctx context.Context, timerName string) (*timer.ScheduleStatus, error)
	PutTimerStatus(ctx context.Context, timerName string, status timer.ScheduleStatus) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return newMemoryStore(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
