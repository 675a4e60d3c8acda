// Package normalize converts raw database responses into the four canonical
// representations: structured, tabular, graph and text. Database-specific
// parsing quirks live here and nowhere else.
package normalize

import (
	"fmt"
	"log/slog"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/openbioscience/finch/internal/domain"
)

// Normalize converts a raw response body into the requested shape for the
// given database. A parse failure on a non-text shape never surfaces as an
// error: the result degrades to ShapeText carrying the raw body, and the
// shape tag is how callers observe the degradation.
func Normalize(raw []byte, shape domain.Shape, db domain.Database) *domain.Result {
	switch shape {
	case domain.ShapeStructured:
		v, err := parseStructured(raw)
		if err != nil {
			return degrade(raw, shape, db, err)
		}
		return &domain.Result{Database: db, Shape: shape, Structured: v}

	case domain.ShapeTabular:
		table, err := parseTabular(raw, db)
		if err != nil {
			return degrade(raw, shape, db, err)
		}
		return &domain.Result{Database: db, Shape: shape, Table: table}

	case domain.ShapeGraph:
		graph, err := parseGraph(raw, db)
		if err != nil {
			return degrade(raw, shape, db, err)
		}
		return &domain.Result{Database: db, Shape: shape, Graph: graph}

	default:
		// ShapeText and anything unrecognized pass the body through.
		return &domain.Result{Database: db, Shape: domain.ShapeText, Text: string(raw)}
	}
}

func degrade(raw []byte, requested domain.Shape, db domain.Database, err error) *domain.Result {
	slog.Warn("response parse degraded to text",
		"database", db,
		"requestedShape", requested,
		"error", err)
	return &domain.Result{Database: db, Shape: domain.ShapeText, Text: string(raw)}
}

func parseStructured(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("structured parse: %w", err)
	}
	return v, nil
}

// nestedListKeys are the wrapper keys databases commonly nest their row
// lists under, probed in order.
var nestedListKeys = []string{"results", "items", "data", "entries", "hits", "rows"}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
