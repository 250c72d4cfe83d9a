package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the gossip core's counters (spec §2a domain stack): one
// instrument per cooperative loop named in spec §5, so an operator can see
// round-trip volume per loop without reading logs.
type Metrics struct {
	SamplingRequestsSent     metric.Int64Counter
	SamplingRequestsReceived metric.Int64Counter
	AntiEntropyRoundsRun     metric.Int64Counter
	AntiEntropyChangesApplied metric.Int64Counter
	BroadcastsSent           metric.Int64Counter
	BroadcastFailures        metric.Int64Counter
}

func newNoopMetrics() (*Metrics, error) {
	return buildMetrics(noop.NewMeterProvider().Meter("hyperbase-gossip"))
}

func newMetrics(mp metric.MeterProvider) (*Metrics, error) {
	return buildMetrics(mp.Meter("hyperbase-gossip"))
}

func buildMetrics(meter metric.Meter) (*Metrics, error) {
	samplingSent, err := meter.Int64Counter("gossip.sampling.requests_sent",
		metric.WithDescription("Peer-sampling requests sent"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create gossip.sampling.requests_sent: %w", err)
	}
	samplingReceived, err := meter.Int64Counter("gossip.sampling.requests_received",
		metric.WithDescription("Peer-sampling requests received"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create gossip.sampling.requests_received: %w", err)
	}
	antiEntropyRounds, err := meter.Int64Counter("gossip.antientropy.rounds",
		metric.WithDescription("Anti-entropy pull rounds run"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create gossip.antientropy.rounds: %w", err)
	}
	antiEntropyApplied, err := meter.Int64Counter("gossip.antientropy.changes_applied",
		metric.WithDescription("Change-log rows applied via anti-entropy or broadcast"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create gossip.antientropy.changes_applied: %w", err)
	}
	broadcastsSent, err := meter.Int64Counter("gossip.broadcast.sent",
		metric.WithDescription("Broadcast notifications sent"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create gossip.broadcast.sent: %w", err)
	}
	broadcastFailures, err := meter.Int64Counter("gossip.broadcast.failures",
		metric.WithDescription("Broadcast notifications that failed to send"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create gossip.broadcast.failures: %w", err)
	}

	return &Metrics{
		SamplingRequestsSent:      samplingSent,
		SamplingRequestsReceived:  samplingReceived,
		AntiEntropyRoundsRun:      antiEntropyRounds,
		AntiEntropyChangesApplied: antiEntropyApplied,
		BroadcastsSent:            broadcastsSent,
		BroadcastFailures:         broadcastFailures,
	}, nil
}

// IncSamplingSent increments the sampling-requests-sent counter by one.
func (m *Metrics) IncSamplingSent(ctx context.Context) {
	m.SamplingRequestsSent.Add(ctx, 1)
}

// IncSamplingReceived increments the sampling-requests-received counter by one.
func (m *Metrics) IncSamplingReceived(ctx context.Context) {
	m.SamplingRequestsReceived.Add(ctx, 1)
}

// IncAntiEntropyRound increments the anti-entropy-rounds counter by one.
func (m *Metrics) IncAntiEntropyRound(ctx context.Context) {
	m.AntiEntropyRoundsRun.Add(ctx, 1)
}

// AddChangesApplied adds n to the changes-applied counter.
func (m *Metrics) AddChangesApplied(ctx context.Context, n int64) {
	if n <= 0 {
		return
	}
	m.AntiEntropyChangesApplied.Add(ctx, n)
}

// IncBroadcastSent increments the broadcast-sent counter by one.
func (m *Metrics) IncBroadcastSent(ctx context.Context) {
	m.BroadcastsSent.Add(ctx, 1)
}

// IncBroadcastFailure increments the broadcast-failures counter by one.
func (m *Metrics) IncBroadcastFailure(ctx context.Context) {
	m.BroadcastFailures.Add(ctx, 1)
}
