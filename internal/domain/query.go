package domain

import (
	"net/http"
)

// Database identifies one of the supported upstream biological databases.
type Database string

// Supported databases. Every name used in a Query must exist in the
// endpoint registry.
const (
	DatabaseKEGG     Database = "kegg"
	DatabaseReactome Database = "reactome"
	DatabaseStringDB Database = "string"
	DatabaseUniProt  Database = "uniprot"
	DatabaseBioGRID  Database = "biogrid"
	DatabaseEnsembl  Database = "ensembl"
	DatabaseNCBI     Database = "ncbi"
	DatabaseIntAct   Database = "intact"
	DatabaseInterPro Database = "interpro"
	DatabasePDB      Database = "pdb"
)

// Shape selects the canonical representation a response is normalized into.
type Shape string

const (
	// ShapeStructured is a generic JSON value tree.
	ShapeStructured Shape = "structured"

	// ShapeTabular is rows of named columns.
	ShapeTabular Shape = "tabular"

	// ShapeGraph is a directed, optionally weighted edge set.
	ShapeGraph Shape = "graph"

	// ShapeText is the raw response body.
	ShapeText Shape = "text"
)

// Query describes one logical request against a named database.
// Immutable once constructed. Two queries with the same database, endpoint,
// parameters, method and body are equivalent for caching purposes regardless
// of parameter insertion order.
type Query struct {
	// Database must name an entry in the endpoint registry.
	Database Database `json:"database"`

	// Endpoint is the path joined onto the database base URL.
	Endpoint string `json:"endpoint"`

	// Params are request parameters; insertion order never matters.
	Params map[string]string `json:"params,omitempty"`

	// Method is GET or POST. Empty means GET.
	Method string `json:"method,omitempty"`

	// Body is an optional structured payload, sent as JSON on POST.
	Body map[string]any `json:"body,omitempty"`

	// Shape is the requested output representation.
	Shape Shape `json:"shape"`
}

// HTTPMethod returns the effective HTTP method for the query.
func (q Query) HTTPMethod() string {
	if q.Method == "" {
		return http.MethodGet
	}
	return q.Method
}

// Result is a normalized response. Shape reports the representation the body
// actually normalized into: after a parse degradation it is ShapeText even
// though another shape was requested, with Text carrying the raw body.
type Result struct {
	Database Database `json:"database"`
	Shape    Shape    `json:"shape"`

	Structured any    `json:"structured,omitempty"`
	Table      *Table `json:"table,omitempty"`
	Graph      *Graph `json:"graph,omitempty"`
	Text       string `json:"text,omitempty"`
}

// Table holds rows of named columns.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Edge is one directed connection between two entity identifiers.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Weight *float64 `json:"weight,omitempty"`
}

// Graph is a directed edge set. Edge identity is (source, target); adding a
// duplicate edge overwrites the previous one rather than accumulating.
type Graph struct {
	Edges []Edge `json:"edges"`

	index map[string]int
}

// AddEdge inserts or overwrites the edge identified by (source, target).
func (g *Graph) AddEdge(e Edge) {
	if g.index == nil {
		g.index = make(map[string]int, len(g.Edges)+1)
		for i, existing := range g.Edges {
			g.index[existing.Source+"\t"+existing.Target] = i
		}
	}
	key := e.Source + "\t" + e.Target
	if i, ok := g.index[key]; ok {
		g.Edges[i] = e
		return
	}
	g.index[key] = len(g.Edges)
	g.Edges = append(g.Edges, e)
}

// Len returns the number of distinct edges.
func (g *Graph) Len() int {
	return len(g.Edges)
}
