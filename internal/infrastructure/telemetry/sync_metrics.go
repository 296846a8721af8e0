package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	AttrMarketplace = attribute.Key("marketplace")
	AttrSyncType    = attribute.Key("sync_type")
	AttrOutcome     = attribute.Key("outcome")
	AttrSuccess     = attribute.Key("success")
	AttrCreated     = attribute.Key("created")
)

// SyncMetrics records sync engine measurements
type SyncMetrics struct {
	syncAttempts  *Counter
	syncDuration  *Histogram
	claimBatch    *Histogram
	tokenRefresh  *Counter
	ordersImport  *Counter
	notifications *Counter
}

// NewSyncMetrics creates the sync engine instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	var (
		m   SyncMetrics
		err error
	)
	if m.syncAttempts, err = NewCounter(meter, "marketsync.sync.attempts", "Sync queue item processing attempts", "{attempt}"); err != nil {
		return nil, err
	}
	if m.syncDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "marketsync.sync.duration",
		Description: "Duration of a sync queue item attempt",
		Unit:        "s",
		Boundaries:  []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}); err != nil {
		return nil, err
	}
	if m.claimBatch, err = NewHistogram(meter, HistogramOpts{
		Name:        "marketsync.sync.claim_batch",
		Description: "Queue items claimed per poll",
		Unit:        "{item}",
		Boundaries:  []float64{0, 1, 5, 10, 25, 50, 100},
	}); err != nil {
		return nil, err
	}
	if m.tokenRefresh, err = NewCounter(meter, "marketsync.token.refreshes", "Marketplace token refreshes", "{refresh}"); err != nil {
		return nil, err
	}
	if m.ordersImport, err = NewCounter(meter, "marketsync.orders.imported", "Marketplace orders imported into the ERP", "{order}"); err != nil {
		return nil, err
	}
	if m.notifications, err = NewCounter(meter, "marketsync.notifications", "Webhook notifications received", "{notification}"); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *SyncMetrics) RecordSyncAttempt(ctx context.Context, marketplace, syncType, outcome string, duration time.Duration) {
	m.syncAttempts.Inc(ctx, AttrMarketplace.String(marketplace), AttrSyncType.String(syncType), AttrOutcome.String(outcome))
	m.syncDuration.RecordDuration(ctx, duration, AttrMarketplace.String(marketplace), AttrSyncType.String(syncType))
}

func (m *SyncMetrics) RecordClaimBatch(ctx context.Context, size int) {
	m.claimBatch.Record(ctx, float64(size))
}

func (m *SyncMetrics) RecordTokenRefresh(ctx context.Context, marketplace string, success bool) {
	m.tokenRefresh.Inc(ctx, AttrMarketplace.String(marketplace), AttrSuccess.Bool(success))
}

func (m *SyncMetrics) RecordOrderImport(ctx context.Context, marketplace string, created bool) {
	m.ordersImport.Inc(ctx, AttrMarketplace.String(marketplace), AttrCreated.Bool(created))
}

func (m *SyncMetrics) RecordNotification(ctx context.Context, marketplace, outcome string) {
	m.notifications.Inc(ctx, AttrMarketplace.String(marketplace), AttrOutcome.String(outcome))
}
