// Package resolver classifies biological identifier formats and
// converts identifier lists between them.
package resolver

import (
	"context"
	"log/slog"
	"strings"

	"github.com/openbioscience/finch/internal/domain"
)

// Executor runs a single query. Satisfied by transport.Client.
type Executor interface {
	Execute(ctx context.Context, q *domain.Query) (*domain.Result, error)
}

// Resolver converts identifiers via the KEGG conversion service.
type Resolver struct {
	executor Executor
}

// New creates a resolver backed by an executor.
func New(executor Executor) *Resolver {
	return &Resolver{executor: executor}
}

// DetectFormat classifies an identifier by its lexical pattern.
// Digits are checked before the UniProt rule because an all-digit
// string is also uppercase-alphanumeric.
func DetectFormat(id string) domain.IDFormat {
	switch {
	case strings.HasPrefix(id, "ENS"):
		return domain.FormatEnsembl
	case isAllDigits(id):
		return domain.FormatNCBIGene
	case isUpperAlnum(id) && len(id) <= 10:
		return domain.FormatUniProt
	default:
		return domain.FormatNCBIProtein
	}
}

// Convert maps identifiers from sourceFormat into the identifier space
// of targetOrganismID (a KEGG organism code such as "hsa"). The result
// maps each input identifier to its converted form, e.g. "7157" to
// "hsa:7157". Identifiers the conversion service does not know are
// absent from the result; absence means unmapped, not failure.
func (r *Resolver) Convert(ctx context.Context, identifiers []string, targetOrganismID string, sourceFormat domain.IDFormat) (map[string]string, error) {
	if targetOrganismID == "" {
		return nil, domain.ConfigErrorf("conversion target organism is required")
	}
	if len(identifiers) == 0 {
		return map[string]string{}, nil
	}

	entries := make([]string, len(identifiers))
	for i, id := range identifiers {
		entries[i] = string(sourceFormat) + ":" + id
	}

	result, err := r.executor.Execute(ctx, &domain.Query{
		Database: domain.DatabaseKEGG,
		Endpoint: "conv/" + targetOrganismID + "/" + strings.Join(entries, "+"),
		Shape:    domain.ShapeTabular,
	})
	if err != nil {
		return nil, err
	}

	if result.Table == nil {
		slog.Warn("conversion response was not tabular, treating all identifiers as unmapped",
			"organism", targetOrganismID,
			"sourceFormat", sourceFormat)
		return map[string]string{}, nil
	}

	prefix := string(sourceFormat) + ":"
	mapping := make(map[string]string, len(result.Table.Rows))
	for _, row := range result.Table.Rows {
		if len(row) < 2 || row[0] == "" || row[1] == "" {
			continue
		}
		mapping[strings.TrimPrefix(row[0], prefix)] = row[1]
	}

	return mapping, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isUpperAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
