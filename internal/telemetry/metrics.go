package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics are the lifecycle instruments. A nil *Metrics records nothing.
type Metrics struct {
	issued        metric.Int64Counter
	rejected      metric.Int64Counter
	failed        metric.Int64Counter
	revoked       metric.Int64Counter
	sweepDuration metric.Float64Histogram
}

// NewMetrics creates the lifecycle instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	issued, err := meter.Int64Counter("trialgate.credentials.issued",
		metric.WithDescription("Trial credentials issued"))
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("trialgate.issuance.rejected",
		metric.WithDescription("Issuance requests rejected by the access policy"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("trialgate.issuance.failed",
		metric.WithDescription("Issuance requests that failed at the transport or store"))
	if err != nil {
		return nil, err
	}
	revoked, err := meter.Int64Counter("trialgate.access.revoked",
		metric.WithDescription("Expired principals removed from the destination"))
	if err != nil {
		return nil, err
	}
	sweepDuration, err := meter.Float64Histogram("trialgate.sweep.duration",
		metric.WithDescription("Expiry sweep run time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		issued:        issued,
		rejected:      rejected,
		failed:        failed,
		revoked:       revoked,
		sweepDuration: sweepDuration,
	}, nil
}

// CredentialIssued counts one issued credential.
func (m *Metrics) CredentialIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.issued.Add(ctx, 1)
}

// IssuanceRejected counts one policy rejection with its reason.
func (m *Metrics) IssuanceRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// IssuanceFailed counts one failed issuance.
func (m *Metrics) IssuanceFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.failed.Add(ctx, 1)
}

// AccessRevoked counts one revoked principal.
func (m *Metrics) AccessRevoked(ctx context.Context) {
	if m == nil {
		return
	}
	m.revoked.Add(ctx, 1)
}

// SweepCompleted records the duration of one sweep run.
func (m *Metrics) SweepCompleted(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Record(ctx, d.Seconds())
}
