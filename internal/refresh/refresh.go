// Package refresh re-reconciles every federation and standalone entity
// against its current metadata document.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/metsync/internal/docstore"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/records"
	"github.com/wolfeidau/metsync/internal/saml"
	"github.com/wolfeidau/metsync/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Fetcher downloads a metadata document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Failure describes a record that could not be refreshed.
type Failure struct {
	Kind records.Kind
	ID   string
	Err  error
}

// Skip describes a descriptor left out of a federation's membership because
// it has neither an idp nor an sp role.
type Skip struct {
	FederationID string
	EntityID     string
}

// Report summarises a refresh run.
type Report struct {
	Federations int
	Entities    int
	Fetched     int
	Failures    []Failure
	Skipped     []Skip
	Duration    time.Duration

	mu sync.Mutex
}

// Failed returns the number of records that failed.
func (r *Report) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failures)
}

func (r *Report) fail(kind records.Kind, id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, Failure{Kind: kind, ID: id, Err: err})
}

func (r *Report) count(fn func(*Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// Refresher drives reconciliation of the whole store.
type Refresher struct {
	reg     *records.Registry
	pipe    *records.Pipeline
	fetcher Fetcher
	logger  zerolog.Logger
	workers int
	locks   *keyedMutex
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithFetcher enables fetching of records with a source URL.
func WithFetcher(f Fetcher) Option {
	return func(r *Refresher) { r.fetcher = f }
}

// WithLogger sets the log sink. The default discards all output.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Refresher) { r.logger = l }
}

// WithWorkers sets how many federations are refreshed concurrently.
func WithWorkers(n int) Option {
	return func(r *Refresher) {
		if n > 0 {
			r.workers = n
		}
	}
}

// New creates a refresher over the registry's stores.
func New(reg *records.Registry, opts ...Option) *Refresher {
	r := &Refresher{
		reg:     reg,
		pipe:    records.NewPipeline(reg),
		logger:  zerolog.Nop(),
		workers: 1,
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run refreshes every federation and then every standalone entity. Failures
// of individual records are logged and reported without stopping the run;
// only failing to list records or cancellation returns an error.
func (r *Refresher) Run(ctx context.Context) (*Report, error) {
	ctx = r.logger.WithContext(ctx)
	ctx, span := telemetry.Tracer().Start(ctx, "refresh.Run")
	defer span.End()

	metrics := telemetry.GetMetrics()
	started := time.Now()
	report := &Report{}

	defer func() {
		report.Duration = time.Since(started)
		metrics.RefreshRunsTotal.Add(ctx, 1)
		metrics.RefreshDuration.Record(ctx, float64(report.Duration.Milliseconds()))
		span.SetAttributes(
			attribute.Int("federations", report.Federations),
			attribute.Int("entities", report.Entities),
			attribute.Int("failures", len(report.Failures)),
		)
	}()

	federations, err := r.reg.Federations.List(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("failed to list federations: %w", err)
	}

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for _, fed := range federations {
		g.Go(func() error {
			r.refreshFederation(ctx, fed, report)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	standalone, err := r.reg.Entities.ListStandalone(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("failed to list standalone entities: %w", err)
	}

	g = new(errgroup.Group)
	g.SetLimit(r.workers)
	for _, ent := range standalone {
		g.Go(func() error {
			r.refreshEntity(ctx, ent, report)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	r.logger.Info().
		Int("federations", report.Federations).
		Int("entities", report.Entities).
		Int("fetched", report.Fetched).
		Int("failures", len(report.Failures)).
		Int("skipped", len(report.Skipped)).
		Dur("duration", time.Since(started)).
		Msg("refresh complete")

	return report, nil
}

func (r *Refresher) refreshFederation(ctx context.Context, m *models.Federation, report *Report) {
	logger := r.logger.With().Str("federation_id", m.FederationID.String()).Str("name", m.Name).Logger()
	ctx = logger.WithContext(ctx)

	ctx, span := telemetry.Tracer().Start(ctx, "refresh.federation",
		trace.WithAttributes(attribute.String("federation_id", m.FederationID.String())))
	defer span.End()

	fail := func(err error) {
		span.SetStatus(codes.Error, err.Error())
		r.recordFailure(ctx, report, records.KindFederation, m.FederationID.String(), err)
	}

	if ok, err := r.updateSource(ctx, &m.Source, docstore.FederationPrefix); err != nil {
		fail(err)
		return
	} else if ok {
		report.count(func(rep *Report) { rep.Fetched++ })
	}

	f := r.reg.WrapFederation(m)

	// federations sharing an entity are reconciled one at a time
	ids, err := f.EntityIDs(ctx)
	if err != nil {
		fail(err)
		return
	}
	unlock := r.locks.Lock(ids)
	defer unlock()

	now := time.Now()
	m.RefreshedAt = &now

	if err := r.pipe.Save(ctx, f); err != nil {
		fail(err)
		return
	}

	skipped := f.Skipped()
	report.count(func(rep *Report) {
		rep.Federations++
		for _, id := range skipped {
			rep.Skipped = append(rep.Skipped, Skip{FederationID: m.FederationID.String(), EntityID: id})
		}
	})
	if len(skipped) > 0 {
		logger.Info().Strs("skipped", skipped).Msg("descriptors without idp or sp role left out of membership")
	}
	logger.Debug().Int("entities", len(ids)).Bool("changed", f.Changed()).Msg("federation refreshed")
}

func (r *Refresher) refreshEntity(ctx context.Context, m *models.Entity, report *Report) {
	logger := r.logger.With().Str("entity_id", m.EntityID).Logger()
	ctx = logger.WithContext(ctx)

	ctx, span := telemetry.Tracer().Start(ctx, "refresh.entity",
		trace.WithAttributes(attribute.String("entity_id", m.EntityID)))
	defer span.End()

	fail := func(err error) {
		span.SetStatus(codes.Error, err.Error())
		r.recordFailure(ctx, report, records.KindEntity, m.EntityID, err)
	}

	unlock := r.locks.Lock([]string{m.EntityID})
	defer unlock()

	if ok, err := r.updateSource(ctx, &m.Source, docstore.EntityPrefix); err != nil {
		fail(err)
		return
	} else if ok {
		report.count(func(rep *Report) { rep.Fetched++ })
	}

	if !m.Source.HasDocument() {
		fail(records.ErrNoDocument)
		return
	}

	if err := r.pipe.SaveEntity(ctx, r.reg.WrapEntity(m)); err != nil {
		fail(err)
		return
	}

	telemetry.GetMetrics().StandaloneRefreshed.Add(ctx, 1)
	report.count(func(rep *Report) { rep.Entities++ })
	logger.Debug().Msg("entity refreshed")
}

// updateSource fetches the document at src.URL and stores it, pointing src at
// the new copy. A failed download keeps the previously stored document. A
// downloaded document that does not parse is an error.
func (r *Refresher) updateSource(ctx context.Context, src *models.Source, prefix string) (bool, error) {
	if src.URL == "" || r.fetcher == nil {
		return false, nil
	}

	logger := zerolog.Ctx(ctx)

	data, err := r.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logger.Warn().Err(err).Str("url", src.URL).Msg("fetch failed, using stored document")
		return false, nil
	}

	if _, err := saml.Parse(data); err != nil {
		return false, fmt.Errorf("%w: fetched from %s: %w", records.ErrDocumentParse, src.URL, err)
	}

	key := docstore.ContentKey(prefix, data)
	if key != src.FileKey {
		if err := r.reg.Documents.Put(ctx, key, data); err != nil {
			return false, fmt.Errorf("failed to store fetched document: %w", err)
		}
		logger.Info().Str("url", src.URL).Str("file_key", key).Msg("stored updated document")
	}

	src.FileKey = key
	src.FileID = saml.RootID(data)

	return true, nil
}

func (r *Refresher) recordFailure(ctx context.Context, report *Report, kind records.Kind, id string, err error) {
	report.fail(kind, id, err)

	telemetry.GetMetrics().RecordFailuresTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", string(kind))))

	event := zerolog.Ctx(ctx).Error().Err(err).Str("kind", string(kind)).Str("id", id)

	var entErrs *records.EntityErrors
	if errors.As(err, &entErrs) {
		event = event.Int("entity_failures", len(entErrs.Failures))
	}

	event.Msg("record refresh failed")
}
