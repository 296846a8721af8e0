package integration

import (
	"context"
	"time"
)

// Outcomes reported to a MetricsRecorder
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailed  = "failed"
	OutcomeIgnored = "ignored"
	OutcomeQueued  = "queued"
	OutcomeDropped = "dropped"
)

// MetricsRecorder receives engine measurements. Implemented by the telemetry package.
type MetricsRecorder interface {
	RecordSyncAttempt(ctx context.Context, marketplace, syncType, outcome string, duration time.Duration)
	RecordClaimBatch(ctx context.Context, size int)
	RecordTokenRefresh(ctx context.Context, marketplace string, success bool)
	RecordOrderImport(ctx context.Context, marketplace string, created bool)
	RecordNotification(ctx context.Context, marketplace, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSyncAttempt(context.Context, string, string, string, time.Duration) {}
func (noopMetrics) RecordClaimBatch(context.Context, int)                                  {}
func (noopMetrics) RecordTokenRefresh(context.Context, string, bool)                       {}
func (noopMetrics) RecordOrderImport(context.Context, string, bool)                        {}
func (noopMetrics) RecordNotification(context.Context, string, string)                     {}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
