package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/openbioscience/finch/internal/domain"
	"github.com/openbioscience/finch/internal/resolver"
)

// KEGGSource serves pathway data from the KEGG REST API. KEGG responses
// are headerless TSV; gene identifiers are organism-prefixed entries
// such as "hsa:7157".
type KEGGSource struct {
	executor Executor
	resolver *resolver.Resolver
}

// NewKEGGSource creates the KEGG pathway source.
func NewKEGGSource(executor Executor, res *resolver.Resolver) *KEGGSource {
	return &KEGGSource{executor: executor, resolver: res}
}

// Database implements PathwaySource.
func (s *KEGGSource) Database() domain.Database {
	return domain.DatabaseKEGG
}

// Catalog lists the organism's pathways via list/pathway/{org}.
func (s *KEGGSource) Catalog(ctx context.Context, organism domain.Organism) ([]Pathway, error) {
	orgID, ok := organism.ID(domain.DatabaseKEGG)
	if !ok {
		return nil, domain.ConfigErrorf("organism %q has no kegg identifier", organism.Name)
	}

	table, err := s.fetchTable(ctx, "list/pathway/"+orgID)
	if err != nil {
		return nil, err
	}

	pathways := make([]Pathway, 0, len(table.Rows))
	for _, row := range table.Rows {
		if len(row) < 2 || row[0] == "" {
			continue
		}
		name := row[1]
		// KEGG suffixes names with the organism, e.g.
		// "Glycolysis / Gluconeogenesis - Homo sapiens (human)".
		if i := strings.LastIndex(name, " - "); i > 0 {
			name = name[:i]
		}
		pathways = append(pathways, Pathway{
			ID:   strings.TrimPrefix(row[0], "path:"),
			Name: name,
		})
	}
	return pathways, nil
}

// Members returns a pathway's gene entries via link/{org}/{pathway}.
func (s *KEGGSource) Members(ctx context.Context, organism domain.Organism, pathwayID string) (map[string]bool, error) {
	orgID, ok := organism.ID(domain.DatabaseKEGG)
	if !ok {
		return nil, domain.ConfigErrorf("organism %q has no kegg identifier", organism.Name)
	}

	table, err := s.fetchTable(ctx, "link/"+orgID+"/"+pathwayID)
	if err != nil {
		return nil, err
	}

	members := make(map[string]bool, len(table.Rows))
	for _, row := range table.Rows {
		if len(row) < 2 || row[1] == "" {
			continue
		}
		members[row[1]] = true
	}
	return members, nil
}

// Background lists every gene of the organism via list/{org}.
func (s *KEGGSource) Background(ctx context.Context, organism domain.Organism) (map[string]bool, error) {
	orgID, ok := organism.ID(domain.DatabaseKEGG)
	if !ok {
		return nil, domain.ConfigErrorf("organism %q has no kegg identifier", organism.Name)
	}

	table, err := s.fetchTable(ctx, "list/"+orgID)
	if err != nil {
		return nil, err
	}

	background := make(map[string]bool, len(table.Rows))
	for _, row := range table.Rows {
		if len(row) < 1 || row[0] == "" {
			continue
		}
		background[row[0]] = true
	}
	return background, nil
}

// MapGenes converts caller identifiers into KEGG gene entries. Inputs
// already carrying a db prefix ("hsa:7157") pass through; the rest are
// grouped by detected format and converted through the resolver.
func (s *KEGGSource) MapGenes(ctx context.Context, organism domain.Organism, genes []string) (map[string]string, error) {
	orgID, ok := organism.ID(domain.DatabaseKEGG)
	if !ok {
		return nil, domain.ConfigErrorf("organism %q has no kegg identifier", organism.Name)
	}

	mapping := make(map[string]string, len(genes))
	groups := make(map[domain.IDFormat][]string)
	for _, g := range genes {
		if strings.Contains(g, ":") {
			mapping[g] = g
			continue
		}
		format := resolver.DetectFormat(g)
		groups[format] = append(groups[format], g)
	}

	for format, ids := range groups {
		converted, err := s.resolver.Convert(ctx, ids, orgID, format)
		if err != nil {
			return nil, err
		}
		for src, dst := range converted {
			mapping[src] = dst
		}
	}
	return mapping, nil
}

func (s *KEGGSource) fetchTable(ctx context.Context, endpoint string) (*domain.Table, error) {
	result, err := s.executor.Execute(ctx, &domain.Query{
		Database: domain.DatabaseKEGG,
		Endpoint: endpoint,
		Shape:    domain.ShapeTabular,
	})
	if err != nil {
		return nil, err
	}
	if result.Table == nil {
		return nil, fmt.Errorf("kegg %s: response degraded to text", endpoint)
	}
	return result.Table, nil
}
