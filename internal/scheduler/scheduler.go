// Package scheduler runs periodic maintenance for PyGuard Terminal: purging
// expired command history and dropping idle rate limiter entries.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/pyguard-terminal/internal/config"
	"github.com/jkaninda/pyguard-terminal/internal/ratelimit"
	"github.com/jkaninda/pyguard-terminal/internal/storage"
)

// Maintenance schedules the history purge and limiter cleanup jobs.
type Maintenance struct {
	history config.HistoryConfig
	store   storage.HistoryStore // nil = history purge disabled.
	limiter *ratelimit.Limiter   // nil = limiter cleanup disabled.
	metrics *Metrics
	logger  *slog.Logger

	cron *cron.Cron
}

// New creates a Maintenance scheduler. Either store or limiter may be nil;
// the corresponding job is skipped.
func New(history config.HistoryConfig, store storage.HistoryStore, limiter *ratelimit.Limiter, metrics *Metrics, logger *slog.Logger) *Maintenance {
	return &Maintenance{
		history: history,
		store:   store,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// Start registers the cron entries and begins scheduling. Returns an error
// when the configured cron expression does not parse.
func (m *Maintenance) Start(ctx context.Context) error {
	m.cron = cron.New()

	if m.store != nil {
		if _, err := m.cron.AddFunc(m.history.Cron(), func() { m.purgeHistory(ctx) }); err != nil {
			return fmt.Errorf("invalid retention cron %q: %w", m.history.Cron(), err)
		}
	}
	if m.limiter != nil {
		// Hourly; limiter entries go stale within one window.
		if _, err := m.cron.AddFunc("@hourly", func() { m.pruneLimiter() }); err != nil {
			return fmt.Errorf("registering limiter cleanup: %w", err)
		}
	}

	m.cron.Start()
	m.logger.Info("maintenance scheduler started",
		slog.String("retention_cron", m.history.Cron()),
		slog.Duration("retention", m.history.Retention()),
	)
	return nil
}

// Stop halts scheduling and waits for any running job to finish.
func (m *Maintenance) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.logger.Info("maintenance scheduler stopped")
}

// purgeHistory deletes command records older than the retention window,
// then enforces the configured row cap on what remains.
func (m *Maintenance) purgeHistory(ctx context.Context) {
	start := time.Now()
	cutoff := start.UTC().Add(-m.history.Retention())

	purged, err := m.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		m.logger.ErrorContext(ctx, "history purge failed",
			slog.String("error", err.Error()),
		)
		if m.metrics != nil {
			m.metrics.PurgeFailures.Inc()
		}
		return
	}

	if rowCap := m.history.RowCap(); rowCap > 0 {
		trimmed, err := m.store.TrimToNewest(ctx, rowCap)
		if err != nil {
			m.logger.ErrorContext(ctx, "history trim failed",
				slog.String("error", err.Error()),
			)
			if m.metrics != nil {
				m.metrics.PurgeFailures.Inc()
			}
			return
		}
		purged += trimmed
	}

	m.logger.InfoContext(ctx, "history purged",
		slog.Int64("records", purged),
		slog.Time("cutoff", cutoff),
	)
	if m.metrics != nil {
		m.metrics.RecordsPurged.Add(float64(purged))
		m.metrics.PurgeDuration.Observe(time.Since(start).Seconds())
	}
}

// pruneLimiter drops rate limiter entries for clients with no recent activity.
func (m *Maintenance) pruneLimiter() {
	pruned := m.limiter.PruneIdle()
	if pruned > 0 {
		m.logger.Info("idle rate limiter entries pruned",
			slog.Int("clients", pruned),
		)
	}
	if m.metrics != nil {
		m.metrics.ClientsPruned.Add(float64(pruned))
	}
}
