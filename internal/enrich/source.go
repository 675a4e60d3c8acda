// Package enrich implements gene-set over-representation analysis across
// the pathway databases.
package enrich

import (
	"context"
	"errors"

	"github.com/openbioscience/finch/internal/domain"
)

// Executor runs a single query. Satisfied by transport.Client.
type Executor interface {
	Execute(ctx context.Context, q *domain.Query) (*domain.Result, error)
}

// Pathway is one catalog entry of a pathway database.
type Pathway struct {
	ID   string
	Name string
}

// ErrNoBackground reports that a source cannot derive an organism-wide
// identifier universe on its own; the caller must supply one.
var ErrNoBackground = errors.New("source cannot derive a background gene set")

// PathwaySource retrieves pathway data from one database. Implementations
// speak the database's own endpoint and identifier conventions; the engine
// only sees catalogs, member sets, and identifier mappings.
type PathwaySource interface {
	// Database names the upstream this source serves.
	Database() domain.Database

	// Catalog lists the organism's pathways.
	Catalog(ctx context.Context, organism domain.Organism) ([]Pathway, error)

	// Members returns the identifiers belonging to one pathway, in the
	// source's identifier space.
	Members(ctx context.Context, organism domain.Organism, pathwayID string) (map[string]bool, error)

	// Background returns every identifier known for the organism, or
	// ErrNoBackground when the database offers no such listing.
	Background(ctx context.Context, organism domain.Organism) (map[string]bool, error)

	// MapGenes translates caller identifiers into the source's identifier
	// space. Identifiers that cannot be translated are absent from the
	// result; absence means unmapped, not failure.
	MapGenes(ctx context.Context, organism domain.Organism, genes []string) (map[string]string, error)
}
