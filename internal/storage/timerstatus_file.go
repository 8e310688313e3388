package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"pewbot/internal/timer"
)

// timerStatusRecord is the on-disk shape for a persisted ScheduleStatus,
// carrying the three UTC instants as Unix milliseconds for the same
// reasons dedupRecord does: a stable, schema-free journal line.
type timerStatusRecord struct {
	Name    string `json:"name"`
	LastMS  int64  `json:"last_ms"`
	NextMS  int64  `json:"next_ms"`
	UpdtMS  int64  `json:"updated_ms"`
}

func (s *fileStore) GetTimerStatus(_ context.Context, timerName string) (*timer.ScheduleStatus, error) {
	timerName = strings.TrimSpace(timerName)
	if timerName == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.timerStatus[timerName]
	if !ok {
		return nil, nil
	}
	status := rec.toStatus()
	return &status, nil
}

func (s *fileStore) PutTimerStatus(_ context.Context, timerName string, status timer.ScheduleStatus) error {
	timerName = strings.TrimSpace(timerName)
	if timerName == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timerJournalFile == nil {
		return errors.New("timer status journal closed")
	}
	if s.timerStatus == nil {
		s.timerStatus = map[string]timerStatusRecord{}
	}
	rec := timerStatusRecord{
		Name:   timerName,
		LastMS: status.Last.UnixMilli(),
		NextMS: status.Next.UnixMilli(),
		UpdtMS: status.LastUpdated.UnixMilli(),
	}
	s.timerStatus[timerName] = rec

	enc := json.NewEncoder(s.timerJournalFile)
	if err := enc.Encode(rec); err != nil {
		return err
	}
	s.timerWrites++
	if s.timerWrites%1000 == 0 {
		if err := s.compactTimerStatusLocked(); err != nil {
			s.log.Debug("timer status compact failed")
		}
	}
	return nil
}

func (r timerStatusRecord) toStatus() timer.ScheduleStatus {
	return timer.ScheduleStatus{
		Last:        unixMilliUTC(r.LastMS),
		Next:        unixMilliUTC(r.NextMS),
		LastUpdated: unixMilliUTC(r.UpdtMS),
	}
}

func (s *fileStore) compactTimerStatusLocked() error {
	if s.timerStatus == nil {
		return nil
	}
	tmp := s.timerStatusSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.timerStatus); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.timerStatusSnapshotPath); err != nil {
		return err
	}
	if err := s.timerJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.timerJournalFile.Seek(0, 2)
	return err
}

func loadTimerStatusSnapshot(path string, out map[string]timerStatusRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]timerStatusRecord
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayTimerStatusJournal(path string, out map[string]timerStatusRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec timerStatusRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if rec.Name == "" {
			continue
		}
		out[rec.Name] = rec
	}
	return sc.Err()
}
