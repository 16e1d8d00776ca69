package memory

import (
	"context"
	"errors"
	"runtime/debug"
	"testing"
	"time"
)

func newTestMonitor() *Monitor {
	cfg := DefaultConfig()
	cfg.LimitBytes = 1000
	return NewMonitor(cfg)
}

func TestMonitorPauseResume(t *testing.T) {
	t.Parallel()
	m := newTestMonitor()
	defer m.Stop()

	m.observe(500)
	if m.Paused() {
		t.Fatal("paused below the pause threshold")
	}

	m.observe(900)
	if !m.Paused() {
		t.Fatal("not paused above the pause threshold")
	}

	// Between the thresholds the state is kept.
	m.observe(800)
	if !m.Paused() {
		t.Fatal("resumed above the resume threshold")
	}

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	m.observe(100)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after resume")
	}
}

func TestMonitorWaitContext(t *testing.T) {
	t.Parallel()
	m := newTestMonitor()
	defer m.Stop()
	m.observe(950)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	t.Parallel()
	m := newTestMonitor()
	m.observe(950)
	m.Stop()
	m.Stop()
	if err := m.Wait(context.Background()); err != nil {
		t.Errorf("Wait after Stop = %v", err)
	}
}

func TestMonitorUsage(t *testing.T) {
	t.Parallel()
	m := newTestMonitor()
	m.observe(250)
	alloc, limit, ratio := m.Usage()
	if alloc != 250 || limit != 1000 || ratio != 0.25 {
		t.Errorf("Usage = %d, %d, %v", alloc, limit, ratio)
	}
}

func TestConfigureFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		limit      string
		ratio      string
		configured bool
		wantRatio  float64
	}{
		{"unset", "", "", false, 0},
		{"invalid limit", "lots", "", false, 0},
		{"default ratio", "1073741824", "", true, DefaultMemoryRatio},
		{"custom ratio", "1073741824", "0.5", true, 0.5},
		{"ratio out of range", "1073741824", "1.5", true, DefaultMemoryRatio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := debug.SetMemoryLimit(-1)
			t.Cleanup(func() { debug.SetMemoryLimit(prev) })
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			got := ConfigureFromEnv()
			if got.Configured != tt.configured {
				t.Fatalf("Configured = %v, want %v", got.Configured, tt.configured)
			}
			if !tt.configured {
				if got.Source != SourceNone {
					t.Errorf("Source = %q", got.Source)
				}
				return
			}
			if got.Source != SourceMemoryLimit || got.Ratio != tt.wantRatio {
				t.Errorf("got %+v", got)
			}
			if want := int64(float64(got.ContainerLimit) * tt.wantRatio); got.GoMemLimit != want {
				t.Errorf("GoMemLimit = %d, want %d", got.GoMemLimit, want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()
	tests := map[int64]string{
		0:                 "0 B",
		1023:              "1023 B",
		1024:              "1.0 KiB",
		1536:              "1.5 KiB",
		1073741824:        "1.0 GiB",
		5 * 1099511627776: "5.0 TiB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
