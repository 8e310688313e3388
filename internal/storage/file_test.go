package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pewbot/internal/timer"
	"pewbot/pkg/logx"
)

func TestFileStoreTimerStatusSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pewbot.db")
	ctx := context.Background()

	store1, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	want := timer.ScheduleStatus{
		Last:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Next:        time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC),
		LastUpdated: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store1.PutTimerStatus(ctx, "job", want); err != nil {
		t.Fatalf("PutTimerStatus: %v", err)
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A fresh FileStore over the same path, simulating a process restart.
	store2, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile (reopen): %v", err)
	}
	defer store2.Close()

	got, err := store2.GetTimerStatus(ctx, "job")
	if err != nil {
		t.Fatalf("GetTimerStatus: %v", err)
	}
	if got == nil || !got.Equal(want) {
		t.Fatalf("reloaded status = %v, want %v", got, want)
	}
}
