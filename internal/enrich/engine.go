package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openbioscience/finch/internal/domain"
	"github.com/openbioscience/finch/internal/metrics"
	"github.com/openbioscience/finch/internal/registry"
	"github.com/openbioscience/finch/internal/resolver"
	"github.com/openbioscience/finch/internal/stats"
)

var tracer = otel.Tracer("finch-enrich")

const engineVersion = "finch-1.0"

// Engine runs over-representation analysis across pathway databases.
//
// Per database the pipeline is: resolve organism ID, fetch the pathway
// catalog, map the gene set into the database's identifier space, fetch
// per-pathway membership, build a contingency table per pathway, test
// significance, correct for multiple testing. A failure anywhere in one
// database's pipeline skips that database with a recorded reason and
// never disturbs the others.
type Engine struct {
	registry   *registry.Registry
	sources    map[domain.Database]PathwaySource
	metrics    *metrics.Metrics
	bus        domain.EventBus
	maxWorkers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSource registers or replaces the pathway source for its database.
func WithSource(src PathwaySource) Option {
	return func(e *Engine) {
		e.sources[src.Database()] = src
	}
}

// WithEventBus makes the engine publish a completion event per run.
func WithEventBus(bus domain.EventBus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithMaxWorkers bounds concurrent membership fetches per database.
func WithMaxWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// New creates an engine with the built-in KEGG and Reactome sources.
func New(reg *registry.Registry, executor Executor, res *resolver.Resolver, m *metrics.Metrics, opts ...Option) *Engine {
	e := &Engine{
		registry:   reg,
		sources:    make(map[domain.Database]PathwaySource),
		metrics:    m,
		maxWorkers: 5,
	}

	if executor != nil {
		kegg := NewKEGGSource(executor, res)
		e.sources[kegg.Database()] = kegg
		reactome := NewReactomeSource(executor)
		e.sources[reactome.Database()] = reactome
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich analyzes a gene set against the requested databases and returns
// the merged report, rows ascending by p-value. Databases that cannot
// contribute are recorded in Skipped; the call errors only when the
// request itself is malformed. When every database is skipped the report
// is empty but correctly headered.
func (e *Engine) Enrich(ctx context.Context, req *domain.EnrichmentRequest) (*domain.Report, error) {
	if req == nil || len(req.Genes) == 0 {
		return nil, domain.ConfigErrorf("enrichment requires a non-empty gene set")
	}

	organism, ok := e.registry.Organism(req.Organism)
	if !ok {
		return nil, domain.ConfigErrorf("unknown organism %q", req.Organism)
	}

	databases := req.Databases
	if len(databases) == 0 {
		databases = e.sourceDatabases()
	}
	for _, db := range databases {
		if !e.registry.Has(db) {
			return nil, domain.ConfigErrorf("unknown database %q", db)
		}
	}

	genes := dedupe(req.Genes)
	background := dedupe(req.Background)

	start := time.Now()
	ctx, span := tracer.Start(ctx, "enrich",
		trace.WithAttributes(
			attribute.String("enrich.organism", organism.Name),
			attribute.Int("enrich.genes", len(genes)),
			attribute.Int("enrich.databases", len(databases)),
		),
	)
	defer span.End()

	report := &domain.Report{
		Columns: domain.ReportColumns(),
		Rows:    []domain.EnrichmentRow{},
		Skipped: make(map[domain.Database]string),
	}

	for _, db := range databases {
		rows, err := e.runDatabase(ctx, db, organism, genes, background)
		if err != nil {
			slog.Warn("database skipped during enrichment",
				"database", db,
				"organism", organism.Name,
				"reason", err)
			report.Skipped[db] = err.Error()
			continue
		}
		report.Rows = append(report.Rows, rows...)
	}

	// Ascending by p-value; stable sort keeps database request order,
	// then pathway discovery order, for ties.
	sort.SliceStable(report.Rows, func(i, j int) bool {
		return report.Rows[i].PValue < report.Rows[j].PValue
	})

	duration := time.Since(start)
	report.Meta = domain.ReportMeta{
		RunID:         uuid.New().String(),
		Organism:      organism.Name,
		Databases:     databases,
		PValueCutoff:  req.PValueCutoff,
		GeneCount:     len(genes),
		DurationMs:    duration.Milliseconds(),
		EngineVersion: engineVersion,
	}

	e.metrics.ObserveEnrichment(organism.Name, duration)
	e.publishCompleted(ctx, report)

	slog.Info("enrichment completed",
		"run_id", report.Meta.RunID,
		"organism", organism.Name,
		"rows", len(report.Rows),
		"skipped", len(report.Skipped),
		"duration_ms", report.Meta.DurationMs)

	return report, nil
}

// runDatabase executes the per-database pipeline. Every returned error
// means "skip this database", never "fail the call".
func (e *Engine) runDatabase(ctx context.Context, db domain.Database, organism domain.Organism, genes, background []string) ([]domain.EnrichmentRow, error) {
	source, ok := e.sources[db]
	if !ok {
		return nil, fmt.Errorf("no pathway source registered")
	}
	if _, ok := organism.ID(db); !ok {
		return nil, fmt.Errorf("organism %s has no %s identifier", organism.Name, db)
	}

	catalog, err := source.Catalog(ctx, organism)
	if err != nil {
		return nil, fmt.Errorf("pathway catalog: %w", err)
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("empty pathway catalog")
	}

	mapping, err := source.MapGenes(ctx, organism, genes)
	if err != nil {
		return nil, fmt.Errorf("identifier mapping: %w", err)
	}

	// The test runs in the database's identifier space. Aliases that
	// collapse onto one target are a single gene there; unmapped genes
	// stay in the query set but can never match a pathway, so they
	// count toward set-only.
	targets := make(map[string]bool, len(mapping))
	for _, dst := range mapping {
		targets[dst] = true
	}
	setSize := len(targets) + len(genes) - len(mapping)

	bgSize := len(background)
	if bgSize == 0 {
		bg, err := source.Background(ctx, organism)
		if err != nil {
			return nil, fmt.Errorf("background: %w", err)
		}
		bgSize = len(bg)
	}
	if bgSize == 0 {
		return nil, fmt.Errorf("empty background gene set")
	}
	if len(background) > 0 && bgSize < setSize {
		return nil, fmt.Errorf("supplied background (%d genes) does not cover the query set (%d)", bgSize, setSize)
	}

	memberSets, err := e.fetchMembers(ctx, source, organism, catalog)
	if err != nil {
		return nil, fmt.Errorf("pathway membership: %w", err)
	}

	rows := make([]domain.EnrichmentRow, 0, len(catalog))
	pvalues := make([]float64, 0, len(catalog))

	for i, pathway := range catalog {
		members := memberSets[i]

		matched := make([]string, 0, 8)
		for src, dst := range mapping {
			if members[dst] {
				matched = append(matched, src)
			}
		}
		sort.Strings(matched)

		a := 0
		for dst := range targets {
			if members[dst] {
				a++
			}
		}
		b := len(members) - a
		c := setSize - a
		d := bgSize - a - b - c

		table := domain.Contingency{SetPathway: a, PathwayOnly: b, SetOnly: c, Neither: d}
		if err := table.Validate(bgSize); err != nil {
			return nil, fmt.Errorf("pathway %s: %w", pathway.ID, err)
		}

		p := stats.FisherExact(table)
		pvalues = append(pvalues, p)
		rows = append(rows, domain.EnrichmentRow{
			PathwayID:   pathway.ID,
			PathwayName: pathway.Name,
			Matched:     matched,
			PValue:      p,
			Database:    db,
		})
	}

	// Multiple-testing correction is applied within one database's
	// result set, before the cross-database merge.
	for i, fdr := range stats.BenjaminiHochberg(pvalues) {
		rows[i].FDR = fdr
	}

	return rows, nil
}

// fetchMembers retrieves membership for every catalog pathway with
// bounded concurrency, preserving catalog order.
func (e *Engine) fetchMembers(ctx context.Context, source PathwaySource, organism domain.Organism, catalog []Pathway) ([]map[string]bool, error) {
	memberSets := make([]map[string]bool, len(catalog))
	errs := make([]error, len(catalog))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, pathway := range catalog {
		wg.Add(1)
		go func(idx int, p Pathway) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			members, err := source.Members(ctx, organism, p.ID)
			memberSets[idx] = members
			errs[idx] = err
		}(i, pathway)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("pathway %s: %w", catalog[i].ID, err)
		}
	}
	return memberSets, nil
}

func (e *Engine) sourceDatabases() []domain.Database {
	dbs := make([]domain.Database, 0, len(e.sources))
	for db := range e.sources {
		dbs = append(dbs, db)
	}
	sort.Slice(dbs, func(i, j int) bool { return dbs[i] < dbs[j] })
	return dbs
}

func (e *Engine) publishCompleted(ctx context.Context, report *domain.Report) {
	if e.bus == nil {
		return
	}

	payload, err := json.Marshal(report.ToRun())
	if err != nil {
		slog.Error("failed to encode enrichment completion event", "error", err)
		return
	}

	event := &domain.Event{
		ID:        uuid.New().String(),
		Subject:   domain.SubjectEnrichCompleted,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := e.bus.Publish(ctx, domain.SubjectEnrichCompleted, event); err != nil {
		slog.Warn("failed to publish enrichment completion", "error", err)
	}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
