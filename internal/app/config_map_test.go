package app

import (
	"testing"

	"pewbot/internal/config"
)

func boolPtr(b bool) *bool { return &b }

func TestMapTaskEngineConfigFallsBackToLegacyScheduler(t *testing.T) {
	cfg := &Config{
		Scheduler: config.SchedulerConfig{
			Enabled:        true,
			Workers:        5,
			DefaultTimeout: "30s",
			HistorySize:    50,
			RetryMax:       1,
		},
	}
	got, err := mapTaskEngineConfig(cfg)
	if err != nil {
		t.Fatalf("mapTaskEngineConfig: %v", err)
	}
	if !got.Enabled || got.Workers != 5 || got.HistorySize != 50 || got.RetryMax != 1 {
		t.Fatalf("unexpected config: %+v", got)
	}
	if got.DefaultTimeout.String() != "30s" {
		t.Fatalf("DefaultTimeout = %v, want 30s", got.DefaultTimeout)
	}
}

func TestMapTaskEngineConfigOverridesFromTaskEngineBlock(t *testing.T) {
	cfg := &Config{
		Scheduler: config.SchedulerConfig{Enabled: true, Workers: 5},
		TaskEngine: &config.TaskEngineConfig{
			Enabled:   boolPtr(true),
			Workers:   8,
			QueueSize: 64,
		},
	}
	got, err := mapTaskEngineConfig(cfg)
	if err != nil {
		t.Fatalf("mapTaskEngineConfig: %v", err)
	}
	if got.Workers != 8 || got.QueueSize != 64 {
		t.Fatalf("unexpected config: %+v", got)
	}
}

func TestMapTaskEngineConfigRejectsDisabledEngineWithEnabledScheduler(t *testing.T) {
	cfg := &Config{
		Scheduler:  config.SchedulerConfig{Enabled: true},
		TaskEngine: &config.TaskEngineConfig{Enabled: boolPtr(false)},
	}
	if _, err := mapTaskEngineConfig(cfg); err == nil {
		t.Fatal("expected an error when task_engine.enabled=false but scheduler.enabled=true")
	}
}

func TestMapTaskEngineConfigAppliesDefaults(t *testing.T) {
	cfg := &Config{}
	got, err := mapTaskEngineConfig(cfg)
	if err != nil {
		t.Fatalf("mapTaskEngineConfig: %v", err)
	}
	if got.Workers != 2 || got.QueueSize != 256 || got.HistorySize != 200 || got.RetryMax != 3 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestMapSchedulerConfigRejectsEmptyTimerName(t *testing.T) {
	cfg := &Config{Timers: []config.TimerConfig{{Name: "  ", Schedule: "1h"}}}
	if _, err := mapSchedulerConfig(cfg); err == nil {
		t.Fatal("expected an error for an empty timer name")
	}
}

func TestMapSchedulerConfigBuildsTimerDefs(t *testing.T) {
	cfg := &Config{
		Scheduler: config.SchedulerConfig{Enabled: true},
		Timers: []config.TimerConfig{
			{Name: "nightly", Schedule: "0 0 3 * * *", Timezone: "UTC", Timeout: "10s"},
		},
		Vars: map[string]string{"k": "v"},
	}
	got, err := mapSchedulerConfig(cfg)
	if err != nil {
		t.Fatalf("mapSchedulerConfig: %v", err)
	}
	if !got.Enabled || len(got.Timers) != 1 {
		t.Fatalf("unexpected config: %+v", got)
	}
	def := got.Timers[0]
	if def.Name != "nightly" || def.Schedule != "0 0 3 * * *" || def.Timeout.String() != "10s" {
		t.Fatalf("unexpected TimerDef: %+v", def)
	}
	if got.Vars["k"] != "v" {
		t.Fatalf("expected Vars to carry through, got %+v", got.Vars)
	}
}

func TestMapPprofConfigDefaultsAddrAndPrefix(t *testing.T) {
	cfg := &Config{Pprof: config.PprofConfig{Enabled: false}}
	got, err := mapPprofConfig(cfg)
	if err != nil {
		t.Fatalf("mapPprofConfig: %v", err)
	}
	if got.Addr != "127.0.0.1:6060" || got.Prefix != "/debug/pprof/" {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestMapPprofConfigRejectsNonLoopbackWithoutTokenOrAllowInsecure(t *testing.T) {
	cfg := &Config{Pprof: config.PprofConfig{Enabled: true, Addr: "0.0.0.0:6060"}}
	if _, err := mapPprofConfig(cfg); err == nil {
		t.Fatal("expected an error for a non-loopback addr with no token and allow_insecure=false")
	}
}

func TestMapPprofConfigAllowsNonLoopbackWithToken(t *testing.T) {
	cfg := &Config{Pprof: config.PprofConfig{Enabled: true, Addr: "0.0.0.0:6060", Token: "secret"}}
	if _, err := mapPprofConfig(cfg); err != nil {
		t.Fatalf("mapPprofConfig: %v", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:6060": true,
		"0.0.0.0:6060":   false,
		"10.0.0.5:6060":  false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
