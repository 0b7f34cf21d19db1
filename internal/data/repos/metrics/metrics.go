// Package metrics is the observational sink for supplier.MetricsRecorder
// (spec.md §4.4): a single insert against PerformanceMetric whose failure
// must never surface back to the caller it measured.
package metrics

import (
	"context"

	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/pgw"
)

// Repo implements supplier.MetricsRecorder.
type Repo struct {
	gw      *pgw.Gateway
	log     *logger.Logger
	enabled bool
}

// New builds the metrics sink. enabled mirrors the
// ENABLE_PERFORMANCE_MONITORING setting (internal/app.Config); when false,
// Record is a no-op rather than skipping the row some other way, so
// resolvers never need to branch on whether monitoring is on.
func New(gw *pgw.Gateway, log *logger.Logger, enabled bool) *Repo {
	return &Repo{gw: gw, log: log.With("component", "MetricsRepo"), enabled: enabled}
}

// Record inserts metric and swallows any error after logging it — a
// failed observability write is never allowed to fail the operation it
// measured (spec.md §4.4).
func (r *Repo) Record(ctx context.Context, metric domain.PerformanceMetric) {
	if !r.enabled {
		return
	}
	db, err := r.gw.Client(ctx)
	if err != nil {
		r.log.Warn("skipping performance metric, gateway unavailable", "error", err)
		return
	}
	if err := db.WithContext(ctx).Create(&metric).Error; err != nil {
		r.log.Warn("failed to record performance metric", "operation", metric.Operation, "error", err)
	}
}
