package storage

import (
	"context"
	"testing"
	"time"

	"pewbot/internal/timer"
	"pewbot/pkg/logx"
)

func TestMemoryStoreTimerStatusRoundTrip(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	if status, err := store.GetTimerStatus(ctx, "job"); err != nil || status != nil {
		t.Fatalf("expected no status for an unknown timer, got %v, %v", status, err)
	}

	want := timer.ScheduleStatus{
		Last:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Next:        time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
		LastUpdated: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.PutTimerStatus(ctx, "job", want); err != nil {
		t.Fatalf("PutTimerStatus: %v", err)
	}
	got, err := store.GetTimerStatus(ctx, "job")
	if err != nil {
		t.Fatalf("GetTimerStatus: %v", err)
	}
	if got == nil || !got.Equal(want) {
		t.Fatalf("GetTimerStatus = %v, want %v", got, want)
	}
}

func TestOpenMemoryDriver(t *testing.T) {
	store, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store == nil {
		t.Fatalf("expected a non-nil store for the memory driver")
	}
	defer store.Close()
}

func TestOpenNoneDriverDisablesStorage(t *testing.T) {
	store, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store != nil {
		t.Fatalf("the \"none\" driver must disable storage entirely")
	}
}
