package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/metsync"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Refresh metrics
	RefreshRunsTotal     metric.Int64Counter
	RefreshDuration      metric.Float64Histogram
	FederationsRefreshed metric.Int64Counter
	StandaloneRefreshed  metric.Int64Counter
	RecordFailuresTotal  metric.Int64Counter

	// Reconciliation metrics
	EntitiesCreatedTotal metric.Int64Counter
	EntitiesLinkedTotal  metric.Int64Counter
	EntitiesUpdatedTotal metric.Int64Counter
	InsertRetriesTotal   metric.Int64Counter
	EntitiesSkippedTotal metric.Int64Counter

	// Fetch metrics
	FetchRequestsTotal metric.Int64Counter
	FetchErrorsTotal   metric.Int64Counter
	FetchDuration      metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.RefreshRunsTotal, _ = meter.Int64Counter(
		"metsync.refresh.runs.total",
		metric.WithDescription("Total number of refresh runs"),
		metric.WithUnit("{run}"),
	)

	m.RefreshDuration, _ = meter.Float64Histogram(
		"metsync.refresh.duration",
		metric.WithDescription("Duration of a complete refresh run"),
		metric.WithUnit("ms"),
	)

	m.FederationsRefreshed, _ = meter.Int64Counter(
		"metsync.refresh.federations.total",
		metric.WithDescription("Total number of federations reconciled"),
		metric.WithUnit("{federation}"),
	)

	m.StandaloneRefreshed, _ = meter.Int64Counter(
		"metsync.refresh.standalone.total",
		metric.WithDescription("Total number of standalone entities reconciled"),
		metric.WithUnit("{entity}"),
	)

	m.RecordFailuresTotal, _ = meter.Int64Counter(
		"metsync.refresh.failures.total",
		metric.WithDescription("Total number of records that failed to reconcile"),
		metric.WithUnit("{record}"),
	)

	m.EntitiesCreatedTotal, _ = meter.Int64Counter(
		"metsync.entities.created.total",
		metric.WithDescription("Total number of entities created from federation metadata"),
		metric.WithUnit("{entity}"),
	)

	m.EntitiesLinkedTotal, _ = meter.Int64Counter(
		"metsync.entities.linked.total",
		metric.WithDescription("Total number of existing entities linked to a federation"),
		metric.WithUnit("{entity}"),
	)

	m.EntitiesUpdatedTotal, _ = meter.Int64Counter(
		"metsync.entities.updated.total",
		metric.WithDescription("Total number of entities whose attributes changed"),
		metric.WithUnit("{entity}"),
	)

	m.InsertRetriesTotal, _ = meter.Int64Counter(
		"metsync.entities.insert_retries.total",
		metric.WithDescription("Total number of entity inserts retried after losing a uniqueness race"),
		metric.WithUnit("{retry}"),
	)

	m.EntitiesSkippedTotal, _ = meter.Int64Counter(
		"metsync.entities.skipped.total",
		metric.WithDescription("Total number of descriptors skipped for lacking a known role"),
		metric.WithUnit("{entity}"),
	)

	m.FetchRequestsTotal, _ = meter.Int64Counter(
		"metsync.fetch.requests.total",
		metric.WithDescription("Total number of metadata fetch attempts"),
		metric.WithUnit("{request}"),
	)

	m.FetchErrorsTotal, _ = meter.Int64Counter(
		"metsync.fetch.errors.total",
		metric.WithDescription("Total number of metadata fetches that failed after retries"),
		metric.WithUnit("{error}"),
	)

	m.FetchDuration, _ = meter.Float64Histogram(
		"metsync.fetch.duration",
		metric.WithDescription("Duration of successful metadata fetches including retries"),
		metric.WithUnit("ms"),
	)

	return m
}
