// Package otel provides the OpenTelemetry metric instruments for the sync
// engine. The engine only records through the meter API; installing a meter
// provider and exporter is the caller's concern.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "pharmacore"

// Metrics holds all PharmaCore metric instruments.
type Metrics struct {
	IngestRuns         metric.Int64Counter
	IngestRows         metric.Int64Counter
	FanoutRuns         metric.Int64Counter
	FanoutRows         metric.Int64Counter
	RunsFailed         metric.Int64Counter
	TenantsProvisioned metric.Int64Counter
	BatchDuration      metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.IngestRuns, err = meter.Int64Counter("pharmacore.ingest.runs",
		metric.WithDescription("Number of ingest runs started"))
	if err != nil {
		return nil, err
	}

	m.IngestRows, err = meter.Int64Counter("pharmacore.ingest.rows",
		metric.WithDescription("Number of rows written by ingest runs"))
	if err != nil {
		return nil, err
	}

	m.FanoutRuns, err = meter.Int64Counter("pharmacore.fanout.runs",
		metric.WithDescription("Number of per-tenant fan-out runs started"))
	if err != nil {
		return nil, err
	}

	m.FanoutRows, err = meter.Int64Counter("pharmacore.fanout.rows",
		metric.WithDescription("Number of rows written by fan-out runs"))
	if err != nil {
		return nil, err
	}

	m.RunsFailed, err = meter.Int64Counter("pharmacore.runs.failed",
		metric.WithDescription("Number of sync runs that ended in error"))
	if err != nil {
		return nil, err
	}

	m.TenantsProvisioned, err = meter.Int64Counter("pharmacore.tenants.provisioned",
		metric.WithDescription("Number of tenants successfully provisioned"))
	if err != nil {
		return nil, err
	}

	m.BatchDuration, err = meter.Float64Histogram("pharmacore.batch.duration_seconds",
		metric.WithDescription("Per-batch commit duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
