package routes

import (
	"context"
	"time"

	"runclub/pacemaker/internal/jobs"
	"runclub/pacemaker/internal/metrics"
	"runclub/pacemaker/internal/models/dtos"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

// instrumentedDiscovery wraps the discovery worker with batch-level metrics
type instrumentedDiscovery struct {
	inner jobs.DiscoveryProcessor
	reg   *metrics.MetricsRegistry
}

func (d *instrumentedDiscovery) Process(ctx context.Context, athlete *gormModels.Athlete, batch *gormModels.SyncBatch) (*dtos.DiscoveryResult, error) {
	start := time.Now()
	result, err := d.inner.Process(ctx, athlete, batch)

	d.reg.BatchDuration.WithLabelValues(string(gormModels.BatchDiscovery)).Observe(time.Since(start).Seconds())
	d.reg.BatchesProcessedTotal.WithLabelValues(string(gormModels.BatchDiscovery), outcomeLabel(err)).Inc()
	if result != nil {
		d.reg.RecordsUpsertedTotal.Add(float64(result.RecordsAdded))
	}
	return result, err
}

// instrumentedEnrichment wraps the enrichment worker with batch-level metrics
type instrumentedEnrichment struct {
	inner jobs.EnrichmentProcessor
	reg   *metrics.MetricsRegistry
}

func (e *instrumentedEnrichment) Process(ctx context.Context, athlete *gormModels.Athlete, batch *gormModels.SyncBatch) (*dtos.EnrichmentResult, error) {
	start := time.Now()
	result, err := e.inner.Process(ctx, athlete, batch)

	e.reg.BatchDuration.WithLabelValues(string(gormModels.BatchEnrichment)).Observe(time.Since(start).Seconds())
	e.reg.BatchesProcessedTotal.WithLabelValues(string(gormModels.BatchEnrichment), outcomeLabel(err)).Inc()
	return result, err
}

// instrumentedBudget counts denied reservations
type instrumentedBudget struct {
	inner jobs.RateBudget
	reg   *metrics.MetricsRegistry
}

func (b *instrumentedBudget) Reserve(ctx context.Context, n int) (bool, error) {
	ok, err := b.inner.Reserve(ctx, n)
	if err == nil && !ok {
		b.reg.BudgetDenialsTotal.Inc()
	}
	return ok, err
}

func (b *instrumentedBudget) Release(ctx context.Context, n int) {
	b.inner.Release(ctx, n)
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
