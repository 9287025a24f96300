package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jkaninda/pyguard-terminal/internal/config"
	"github.com/jkaninda/pyguard-terminal/internal/ratelimit"
	"github.com/jkaninda/pyguard-terminal/internal/storage"
)

type fakeHistory struct {
	purged  int64
	trimmed int64
	err     error
	cutoffs []time.Time
	caps    []int
}

func (f *fakeHistory) Record(context.Context, *storage.CommandRecord) error { return nil }
func (f *fakeHistory) RecentByClient(context.Context, string, int) ([]*storage.CommandRecord, error) {
	return nil, nil
}
func (f *fakeHistory) Count(context.Context) (int64, error) { return 0, nil }
func (f *fakeHistory) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.purged, f.err
}
func (f *fakeHistory) TrimToNewest(_ context.Context, max int) (int64, error) {
	f.caps = append(f.caps, max)
	return f.trimmed, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPurgeHistoryCutoff(t *testing.T) {
	store := &fakeHistory{purged: 7}
	hist := config.HistoryConfig{RetentionDays: 14}
	m := New(hist, store, nil, nil, quietLogger())

	before := time.Now().UTC().Add(-hist.Retention())
	m.purgeHistory(context.Background())
	after := time.Now().UTC().Add(-hist.Retention())

	if len(store.cutoffs) != 1 {
		t.Fatalf("PurgeBefore called %d times, want 1", len(store.cutoffs))
	}
	got := store.cutoffs[0]
	if got.Before(before) || got.After(after) {
		t.Errorf("cutoff %s not within retention window", got)
	}
}

func TestPurgeHistoryRowCap(t *testing.T) {
	store := &fakeHistory{purged: 2, trimmed: 5}
	m := New(config.HistoryConfig{MaxRows: 1000}, store, nil, nil, quietLogger())

	m.purgeHistory(context.Background())

	if len(store.caps) != 1 || store.caps[0] != 1000 {
		t.Fatalf("TrimToNewest calls = %v, want one call with cap 1000", store.caps)
	}
}

func TestPurgeHistoryNoRowCap(t *testing.T) {
	store := &fakeHistory{purged: 2}
	m := New(config.HistoryConfig{}, store, nil, nil, quietLogger())

	m.purgeHistory(context.Background())

	if len(store.caps) != 0 {
		t.Fatalf("TrimToNewest called %d times with no cap configured", len(store.caps))
	}
}

func TestPurgeHistoryRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	store := &fakeHistory{purged: 3}
	m := New(config.HistoryConfig{}, store, nil, metrics, quietLogger())

	m.purgeHistory(context.Background())

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() == "pyguard_scheduler_records_purged_total" {
			found = true
			if got := f.GetMetric()[0].GetCounter().GetValue(); got != 3 {
				t.Errorf("records purged = %v, want 3", got)
			}
		}
	}
	if !found {
		t.Error("records_purged_total not found")
	}
}

func TestPurgeHistoryFailureCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	store := &fakeHistory{err: errors.New("disk full")}
	m := New(config.HistoryConfig{}, store, nil, metrics, quietLogger())

	m.purgeHistory(context.Background())

	families, _ := reg.Gather()
	for _, f := range families {
		if f.GetName() == "pyguard_scheduler_purge_failures_total" {
			if got := f.GetMetric()[0].GetCounter().GetValue(); got != 1 {
				t.Errorf("purge failures = %v, want 1", got)
			}
			return
		}
	}
	t.Error("purge_failures_total not found")
}

func TestPruneLimiter(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{MaxCommands: 5, Window: time.Millisecond})
	_ = limiter.Allow("stale-client")
	time.Sleep(5 * time.Millisecond)

	m := New(config.HistoryConfig{}, nil, limiter, nil, quietLogger())
	m.pruneLimiter()

	if got := limiter.PruneIdle(); got != 0 {
		t.Errorf("expected limiter already pruned, PruneIdle removed %d", got)
	}
}

func TestStartRejectsInvalidCron(t *testing.T) {
	m := New(config.HistoryConfig{RetentionCron: "not a cron"}, &fakeHistory{}, nil, nil, quietLogger())
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestStartStop(t *testing.T) {
	m := New(config.HistoryConfig{}, &fakeHistory{}, ratelimit.NewLimiter(ratelimit.Config{}), NewMetrics(prometheus.NewRegistry()), quietLogger())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop()
}

func TestNewMetricsNilRegistry(t *testing.T) {
	if NewMetrics(nil) != nil {
		t.Error("expected nil Metrics for nil registry")
	}
}
