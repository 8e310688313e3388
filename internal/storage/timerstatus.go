package storage

import "time"

// unixMilliUTC is the inverse of time.Time.UnixMilli for the UTC instants
// ScheduleStatus always carries.
func unixMilliUTC(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
