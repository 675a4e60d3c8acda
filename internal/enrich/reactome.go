package enrich

import (
	"context"
	"fmt"

	"github.com/jmespath/go-jmespath"

	"github.com/openbioscience/finch/internal/domain"
)

// Reactome participants are reference entities; genes carry their symbol
// in geneName, small molecules only an identifier.
const reactomeMemberExpr = "geneName[0] || identifier"

// ReactomeSource serves pathway data from the Reactome ContentService.
// Responses are JSON; member identifiers are gene symbols with UniProt
// accessions as fallback.
type ReactomeSource struct {
	executor Executor
}

// NewReactomeSource creates the Reactome pathway source.
func NewReactomeSource(executor Executor) *ReactomeSource {
	return &ReactomeSource{executor: executor}
}

// Database implements PathwaySource.
func (s *ReactomeSource) Database() domain.Database {
	return domain.DatabaseReactome
}

// Catalog lists the organism's top-level pathways.
func (s *ReactomeSource) Catalog(ctx context.Context, organism domain.Organism) ([]Pathway, error) {
	taxon, ok := organism.ID(domain.DatabaseReactome)
	if !ok {
		return nil, domain.ConfigErrorf("organism %q has no reactome identifier", organism.Name)
	}

	list, err := s.fetchList(ctx, "data/pathways/top/"+taxon)
	if err != nil {
		return nil, err
	}

	pathways := make([]Pathway, 0, len(list))
	for _, el := range list {
		elem, ok := el.(map[string]any)
		if !ok {
			continue
		}
		id, ok := searchString("stId", elem)
		if !ok || id == "" {
			continue
		}
		name, _ := searchString("displayName", elem)
		pathways = append(pathways, Pathway{ID: id, Name: name})
	}
	return pathways, nil
}

// Members returns a pathway's participating identifiers.
func (s *ReactomeSource) Members(ctx context.Context, organism domain.Organism, pathwayID string) (map[string]bool, error) {
	list, err := s.fetchList(ctx, "data/participants/"+pathwayID+"/referenceEntities")
	if err != nil {
		return nil, err
	}

	members := make(map[string]bool, len(list))
	for _, el := range list {
		elem, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := searchString(reactomeMemberExpr, elem); ok && id != "" {
			members[id] = true
		}
	}
	return members, nil
}

// Background is unavailable: the ContentService has no endpoint listing
// an organism's full identifier universe.
func (s *ReactomeSource) Background(ctx context.Context, organism domain.Organism) (map[string]bool, error) {
	return nil, ErrNoBackground
}

// MapGenes is the identity: Reactome members are plain gene symbols and
// accessions, the space callers already use.
func (s *ReactomeSource) MapGenes(ctx context.Context, organism domain.Organism, genes []string) (map[string]string, error) {
	mapping := make(map[string]string, len(genes))
	for _, g := range genes {
		mapping[g] = g
	}
	return mapping, nil
}

func (s *ReactomeSource) fetchList(ctx context.Context, endpoint string) ([]any, error) {
	result, err := s.executor.Execute(ctx, &domain.Query{
		Database: domain.DatabaseReactome,
		Endpoint: endpoint,
		Shape:    domain.ShapeStructured,
	})
	if err != nil {
		return nil, err
	}
	if result.Structured == nil {
		return nil, fmt.Errorf("reactome %s: response degraded to text", endpoint)
	}
	list, ok := result.Structured.([]any)
	if !ok {
		return nil, fmt.Errorf("reactome %s: expected a list, got %T", endpoint, result.Structured)
	}
	return list, nil
}

func searchString(expr string, payload map[string]any) (string, bool) {
	v, err := jmespath.Search(expr, payload)
	if err != nil || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
