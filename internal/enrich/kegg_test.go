package enrich

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/openbioscience/finch/internal/domain"
	"github.com/openbioscience/finch/internal/registry"
	"github.com/openbioscience/finch/internal/resolver"
)

// stubExecutor serves canned results keyed by endpoint and records every
// query it saw.
type stubExecutor struct {
	mu      sync.Mutex
	queries []*domain.Query
	results map[string]*domain.Result
	err     error
}

func (s *stubExecutor) Execute(ctx context.Context, q *domain.Query) (*domain.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	res, ok := s.results[q.Endpoint]
	if !ok {
		return nil, fmt.Errorf("unexpected endpoint %q", q.Endpoint)
	}
	return res, nil
}

func (s *stubExecutor) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func tabularResult(db domain.Database, rows [][]string) *domain.Result {
	return &domain.Result{
		Database: db,
		Shape:    domain.ShapeTabular,
		Table:    &domain.Table{Columns: []string{"col_1", "col_2"}, Rows: rows},
	}
}

func humanOrganism(t *testing.T) domain.Organism {
	t.Helper()
	human, ok := registry.New().Organism("human")
	if !ok {
		t.Fatal("built-in registry is missing human")
	}
	return human
}

func TestKEGGSource(t *testing.T) {
	ctx := context.Background()
	human := humanOrganism(t)

	t.Run("CatalogStripsPrefixAndOrganismSuffix", func(t *testing.T) {
		executor := &stubExecutor{results: map[string]*domain.Result{
			"list/pathway/hsa": tabularResult(domain.DatabaseKEGG, [][]string{
				{"path:hsa04110", "Cell cycle - Homo sapiens (human)"},
				{"path:hsa00010", "Glycolysis / Gluconeogenesis - Homo sapiens (human)"},
				{"", "orphaned name"},
				{"path:hsa99999"},
			}),
		}}
		src := NewKEGGSource(executor, resolver.New(executor))

		catalog, err := src.Catalog(ctx, human)
		if err != nil {
			t.Fatalf("Catalog failed: %v", err)
		}
		if len(catalog) != 2 {
			t.Fatalf("expected 2 pathways, got %d: %v", len(catalog), catalog)
		}
		if catalog[0].ID != "hsa04110" || catalog[0].Name != "Cell cycle" {
			t.Errorf("unexpected first pathway: %+v", catalog[0])
		}
		// The separator inside the name must survive; only the trailing
		// organism suffix is removed.
		if catalog[1].Name != "Glycolysis / Gluconeogenesis" {
			t.Errorf("unexpected second pathway name: %q", catalog[1].Name)
		}
	})

	t.Run("MembersKeyedByGeneEntry", func(t *testing.T) {
		executor := &stubExecutor{results: map[string]*domain.Result{
			"link/hsa/hsa04110": tabularResult(domain.DatabaseKEGG, [][]string{
				{"path:hsa04110", "hsa:7157"},
				{"path:hsa04110", "hsa:672"},
				{"path:hsa04110", ""},
			}),
		}}
		src := NewKEGGSource(executor, resolver.New(executor))

		members, err := src.Members(ctx, human, "hsa04110")
		if err != nil {
			t.Fatalf("Members failed: %v", err)
		}
		if len(members) != 2 || !members["hsa:7157"] || !members["hsa:672"] {
			t.Errorf("unexpected members: %v", members)
		}
	})

	t.Run("BackgroundListsOrganismGenes", func(t *testing.T) {
		executor := &stubExecutor{results: map[string]*domain.Result{
			"list/hsa": tabularResult(domain.DatabaseKEGG, [][]string{
				{"hsa:7157", "CDS", "TP53"},
				{"hsa:672", "CDS", "BRCA1"},
				{"hsa:1956", "CDS", "EGFR"},
			}),
		}}
		src := NewKEGGSource(executor, resolver.New(executor))

		background, err := src.Background(ctx, human)
		if err != nil {
			t.Fatalf("Background failed: %v", err)
		}
		if len(background) != 3 || !background["hsa:7157"] {
			t.Errorf("unexpected background: %v", background)
		}
	})

	t.Run("MapGenesPassesPrefixedEntriesThrough", func(t *testing.T) {
		executor := &stubExecutor{results: map[string]*domain.Result{}}
		src := NewKEGGSource(executor, resolver.New(executor))

		mapping, err := src.MapGenes(ctx, human, []string{"hsa:7157", "hsa:672"})
		if err != nil {
			t.Fatalf("MapGenes failed: %v", err)
		}
		if mapping["hsa:7157"] != "hsa:7157" || mapping["hsa:672"] != "hsa:672" {
			t.Errorf("unexpected mapping: %v", mapping)
		}
		if executor.calls() != 0 {
			t.Errorf("prefixed entries must not trigger conversion, saw %d queries", executor.calls())
		}
	})

	t.Run("MapGenesConvertsByDetectedFormat", func(t *testing.T) {
		executor := &stubExecutor{results: map[string]*domain.Result{
			"conv/hsa/ncbi-geneid:7157+ncbi-geneid:672": tabularResult(domain.DatabaseKEGG, [][]string{
				{"ncbi-geneid:7157", "hsa:7157"},
				{"ncbi-geneid:672", "hsa:672"},
			}),
			"conv/hsa/ensembl:ENSG00000141510": tabularResult(domain.DatabaseKEGG, [][]string{
				{"ensembl:ENSG00000141510", "hsa:7157"},
			}),
		}}
		src := NewKEGGSource(executor, resolver.New(executor))

		mapping, err := src.MapGenes(ctx, human, []string{"7157", "672", "ENSG00000141510", "hsa:10458"})
		if err != nil {
			t.Fatalf("MapGenes failed: %v", err)
		}
		want := map[string]string{
			"7157":            "hsa:7157",
			"672":             "hsa:672",
			"ENSG00000141510": "hsa:7157",
			"hsa:10458":       "hsa:10458",
		}
		if len(mapping) != len(want) {
			t.Fatalf("expected %d mapped genes, got %v", len(want), mapping)
		}
		for gene, dst := range want {
			if mapping[gene] != dst {
				t.Errorf("gene %q: expected %q, got %q", gene, dst, mapping[gene])
			}
		}
	})

	t.Run("DegradedResponseIsError", func(t *testing.T) {
		executor := &stubExecutor{results: map[string]*domain.Result{
			"list/pathway/hsa": {
				Database: domain.DatabaseKEGG,
				Shape:    domain.ShapeText,
				Text:     "<html>scheduled maintenance</html>",
			},
		}}
		src := NewKEGGSource(executor, resolver.New(executor))

		if _, err := src.Catalog(ctx, human); err == nil {
			t.Fatal("expected an error for a text-degraded response")
		}
	})

	t.Run("OrganismWithoutKEGGIdentifier", func(t *testing.T) {
		executor := &stubExecutor{results: map[string]*domain.Result{}}
		src := NewKEGGSource(executor, resolver.New(executor))
		organism := domain.Organism{Name: "tardigrade", IDs: map[domain.Database]string{
			domain.DatabaseNCBI: "232323",
		}}

		if _, err := src.Catalog(ctx, organism); !domain.IsConfigError(err) {
			t.Errorf("Catalog: expected config error, got %v", err)
		}
		if _, err := src.MapGenes(ctx, organism, []string{"7157"}); !domain.IsConfigError(err) {
			t.Errorf("MapGenes: expected config error, got %v", err)
		}
		if executor.calls() != 0 {
			t.Errorf("expected no queries for an unmapped organism, saw %d", executor.calls())
		}
	})
}
