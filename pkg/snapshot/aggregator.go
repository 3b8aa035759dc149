package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Vihanga22365/governance-analysis/pkg/backend"
	"github.com/Vihanga22365/governance-analysis/pkg/domain"
	"github.com/Vihanga22365/governance-analysis/pkg/telemetry"
)

// Config tunes snapshot assembly.
type Config struct {
	// Concurrency bounds the number of sources fetched at once. Zero fetches all at once.
	Concurrency int `yaml:"concurrency" validate:"gte=0"`
}

// Aggregator assembles snapshots from a fixed set of sources.
type Aggregator struct {
	sources     []backend.Source
	concurrency int
	tracer      trace.Tracer
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithMetrics records slot outcomes and assembly latency on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithTracer overrides the tracer used for assembly spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Aggregator) { a.tracer = t }
}

// NewAggregator creates an Aggregator over sources.
func NewAggregator(sources []backend.Source, cfg Config, logger *slog.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		sources:     sources,
		concurrency: cfg.Concurrency,
		tracer:      telemetry.Tracer(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble fetches every source for governanceID. Empty section and subSection
// default to domain.DefaultSection. Source failures are recorded in their slot;
// the only error returned is *domain.AggregationError for an internal fault.
func (a *Aggregator) Assemble(ctx context.Context, governanceID, section, subSection string) (*domain.Snapshot, error) {
	if section == "" {
		section = domain.DefaultSection
	}
	if subSection == "" {
		subSection = domain.DefaultSection
	}

	ctx, span := a.tracer.Start(ctx, "snapshot.assemble", trace.WithAttributes(
		attribute.String("governance.id", governanceID),
		attribute.String("snapshot.section", section),
		attribute.String("snapshot.sub_section", subSection),
	))
	defer span.End()
	start := time.Now()

	snap := &domain.Snapshot{
		GovernanceID: governanceID,
		Section:      section,
		SubSection:   subSection,
		Slots:        make(map[domain.SourceName]domain.Slot, len(a.sources)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for _, src := range a.sources {
		g.Go(func() error {
			slot, err := a.fetch(gctx, src, governanceID)
			if err != nil {
				return err
			}
			mu.Lock()
			snap.Slots[src.Name()] = slot
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assembly aborted")
		a.logger.Error("snapshot assembly aborted", "governance_id", governanceID, "error", err)
		return nil, err
	}

	failed := snap.Failed()
	span.SetAttributes(
		attribute.Int("snapshot.sources", len(snap.Slots)),
		attribute.Int("snapshot.failed_sources", len(failed)),
	)
	if a.metrics != nil {
		a.metrics.ObserveAssemble(time.Since(start))
	}
	if len(failed) > 0 {
		a.logger.Warn("snapshot assembled with degraded slots",
			"governance_id", governanceID,
			"section", section,
			"failed", failed,
		)
	}
	return snap, nil
}

// fetch runs one source, converting a panic into an AggregationError.
func (a *Aggregator) fetch(ctx context.Context, src backend.Source, governanceID string) (slot domain.Slot, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("snapshot source panicked",
				"governance_id", governanceID,
				"source", src.Name(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = &domain.AggregationError{
				GovernanceID: governanceID,
				Source:       src.Name(),
				Err:          fmt.Errorf("panic: %v", r),
			}
		}
	}()

	payload, srcErr := src.Fetch(ctx, governanceID)
	if a.metrics != nil {
		a.metrics.RecordSourceOutcome(string(src.Name()), srcErr == nil)
	}
	if srcErr != nil {
		return domain.Slot{Err: srcErr}, nil
	}
	return domain.Slot{Payload: payload}, nil
}
