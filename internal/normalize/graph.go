package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/jmespath/go-jmespath"

	"github.com/openbioscience/finch/internal/domain"
)

// graphSpec names the fields one database uses for interaction records.
// Paths are JMESPath expressions evaluated per list element, which keeps
// nested interactor layouts (IntAct) declarative.
type graphSpec struct {
	source string
	target string
	weight string // empty means unweighted
}

var graphSpecs = map[domain.Database]graphSpec{
	domain.DatabaseStringDB: {source: "preferredName_A", target: "preferredName_B", weight: "score"},
	domain.DatabaseBioGRID:  {source: "OFFICIAL_SYMBOL_A", target: "OFFICIAL_SYMBOL_B"},
	domain.DatabaseIntAct:   {source: "interactorA.identifier", target: "interactorB.identifier", weight: "intactScore"},
}

// genericGraphSpec is the fallback for databases without a registered
// layout.
var genericGraphSpec = graphSpec{source: "source", target: "target", weight: "weight"}

// parseGraph parses the body as JSON and extracts directed, optionally
// weighted edges using the database's field layout. Elements missing a
// source or target are skipped; extracting nothing from a non-empty
// payload is a parse failure.
func parseGraph(raw []byte, db domain.Database) (*domain.Graph, error) {
	v, err := parseStructured(raw)
	if err != nil {
		return nil, err
	}
	list, err := edgeList(v)
	if err != nil {
		return nil, err
	}

	spec, ok := graphSpecs[db]
	if !ok {
		spec = genericGraphSpec
	}

	graph := &domain.Graph{}
	for _, el := range list {
		elem, ok := el.(map[string]any)
		if !ok {
			continue
		}
		source, ok := evalString(spec.source, elem)
		if !ok || source == "" {
			continue
		}
		target, ok := evalString(spec.target, elem)
		if !ok || target == "" {
			continue
		}
		edge := domain.Edge{Source: source, Target: target}
		if spec.weight != "" {
			if w, ok := evalFloat(spec.weight, elem); ok {
				edge.Weight = &w
			}
		}
		graph.AddEdge(edge)
	}

	if graph.Len() == 0 && len(list) > 0 {
		return nil, errors.New("no edges extracted")
	}
	return graph, nil
}

// edgeList locates the interaction records in a decoded payload: a
// top-level list, a list nested under a recognized key, or (BioGRID) a
// map of record objects keyed by interaction ID.
func edgeList(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		for _, key := range nestedListKeys {
			if inner, ok := t[key].([]any); ok {
				return inner, nil
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			if _, ok := t[k].(map[string]any); !ok {
				return nil, fmt.Errorf("json object is not an interaction map")
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		list := make([]any, 0, len(keys))
		for _, k := range keys {
			list = append(list, t[k])
		}
		return list, nil
	default:
		return nil, fmt.Errorf("json value %T holds no edge list", v)
	}
}

func evalString(expr string, payload map[string]any) (string, bool) {
	v, err := jmespath.Search(expr, payload)
	if err != nil || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

func evalFloat(expr string, payload map[string]any) (float64, bool) {
	v, err := jmespath.Search(expr, payload)
	if err != nil || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
