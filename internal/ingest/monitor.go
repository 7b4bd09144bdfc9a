package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/metrics"
)

// Monitor sweeps for documents stuck in pending or processing past the
// configured timeout and redispatches them under a fresh, fencing
// attempt. Crashed workers and lost cloud jobs are recovered the same
// way.
type Monitor struct {
	db      core.DbClient
	queue   core.JobQueue
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewMonitor(db core.DbClient, queue core.JobQueue, timeout time.Duration, m *metrics.Metrics, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{db: db, queue: queue, timeout: timeout, log: log, metrics: m}
}

// Sweep runs one pass and returns how many jobs were redispatched.
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.timeout)
	stale, err := m.db.ListStaleDocuments(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	restarted := 0
	for _, doc := range stale {
		jobID, err := dispatch(ctx, m.db, m.queue, doc.ID, "", true)
		if err != nil {
			m.log.Error("stuck job redispatch failed",
				zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		m.log.Warn("restarted stuck extraction",
			zap.String("document_id", doc.ID),
			zap.String("old_job_id", doc.JobID),
			zap.String("new_job_id", jobID))
		if m.metrics != nil {
			m.metrics.StuckJobsRestarted.Inc()
		}
		restarted++
	}
	return restarted, nil
}

// Run sweeps on an interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.log.Error("stuck job sweep failed", zap.Error(err))
			}
		}
	}
}
