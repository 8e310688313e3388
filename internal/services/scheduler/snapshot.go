package scheduler

import (
	"context"
)

// Snapshot returns a diagnostic view of every running timer. Last and Next
// are read from the persisted status when the service has a storage-backed
// monitor; without one, or when no status is stored, they are left zero (no
// schedule computation is made here). UseMonitor reports whether the
// service has a monitor, not each timer's own setting.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	running := make(map[string]*runningTimer, len(s.running))
	for name, rt := range s.running {
		running[name] = rt
	}
	monitor := s.monitor
	s.mu.Unlock()

	items := make([]TimerSnapshot, 0, len(running))
	for name, rt := range running {
		item := TimerSnapshot{
			Name:       name,
			Schedule:   rt.def.Schedule,
			Timezone:   rt.def.Timezone,
			UseMonitor: monitor != nil,
		}
		if monitor != nil {
			if status, err := monitor.GetStatus(ctx, name); err == nil && status != nil {
				item.Last = status.Last
				item.Next = status.Next
			}
		}
		items = append(items, item)
	}

	return Snapshot{Enabled: enabled, Timers: items}
}
