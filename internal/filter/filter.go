// Package filter compiles CEL predicates over enrichment report rows.
package filter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/openbioscience/finch/internal/domain"
)

// presets are named expressions callers can use instead of writing CEL.
// They resolve to their expression before compilation.
var presets = map[string]string{
	"significant": "row.fdr < 0.05",
	"strict":      "row.pvalue < 0.01",
}

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

// rowEnv builds the shared CEL environment. Every expression sees a single
// variable, row, with the report's column values as map keys.
func rowEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return env, envErr
}

// Filter is a compiled row predicate. Immutable and safe for concurrent use.
type Filter struct {
	expr    string
	program cel.Program
}

// Compile builds a filter from a CEL expression or a preset name. The
// expression must evaluate to bool; anything else is a configuration error.
func Compile(expr string) (*Filter, error) {
	if expr == "" {
		return nil, domain.ConfigErrorf("filter expression is empty")
	}
	if resolved, ok := presets[expr]; ok {
		expr = resolved
	}

	celEnv, err := rowEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, domain.ConfigErrorf("invalid filter expression %q: %v", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, domain.ConfigErrorf("filter expression %q must return bool, got %s", expr, ast.OutputType())
	}

	program, err := celEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter program: %w", err)
	}

	return &Filter{expr: expr, program: program}, nil
}

// Expression returns the expression text after preset resolution.
func (f *Filter) Expression() string {
	return f.expr
}

// Apply returns the rows the predicate keeps, preserving their order. An
// expression that fails on a row is the caller's mistake and reported as a
// configuration error.
func (f *Filter) Apply(rows []domain.EnrichmentRow) ([]domain.EnrichmentRow, error) {
	kept := make([]domain.EnrichmentRow, 0, len(rows))
	for _, row := range rows {
		activation := map[string]any{
			"row": map[string]any{
				"pathway":  row.PathwayID,
				"name":     row.PathwayName,
				"matched":  row.Matched,
				"pvalue":   row.PValue,
				"fdr":      row.FDR,
				"database": string(row.Database),
			},
		}

		out, _, err := f.program.Eval(activation)
		if err != nil {
			return nil, domain.ConfigErrorf("filter %q failed on pathway %s: %v", f.expr, row.PathwayID, err)
		}
		keep, ok := out.(types.Bool)
		if !ok {
			return nil, domain.ConfigErrorf("filter %q produced %v on pathway %s, expected bool", f.expr, out.Type(), row.PathwayID)
		}
		if bool(keep) {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

// Presets lists the built-in preset names, sorted.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
