package normalize

import (
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openbioscience/finch/internal/domain"
)

// delimitedQuirk describes how a database that answers with delimited text
// lays its payload out.
type delimitedQuirk struct {
	comma  rune
	header bool
}

// delimitedEmitters lists the databases known to answer tabular paths with
// delimited text instead of JSON. KEGG emits headerless TSV; UniProt and
// STRING include a header row.
var delimitedEmitters = map[domain.Database]delimitedQuirk{
	domain.DatabaseKEGG:     {comma: '\t', header: false},
	domain.DatabaseUniProt:  {comma: '\t', header: true},
	domain.DatabaseStringDB: {comma: '\t', header: true},
}

// parseTabular attempts, in order: the database's own delimited layout,
// a structured (JSON) payload reshaped into rows, then generic delimited
// text. The first stage that parses wins.
func parseTabular(raw []byte, db domain.Database) (*domain.Table, error) {
	if quirk, ok := delimitedEmitters[db]; ok {
		if table, err := parseDelimitedKnown(raw, quirk); err == nil {
			return table, nil
		}
	}
	if table, err := tableFromStructured(raw); err == nil {
		return table, nil
	}
	return parseDelimitedGeneric(raw)
}

// parseDelimitedKnown splits on the database's delimiter without the
// strictness of encoding/csv: upstream values embed quotes and the
// occasional ragged line, which are padded instead of rejected.
func parseDelimitedKnown(raw []byte, quirk delimitedQuirk) (*domain.Table, error) {
	lines := splitLines(string(raw))
	if len(lines) == 0 {
		return nil, errors.New("empty body")
	}
	sep := string(quirk.comma)
	if !strings.Contains(lines[0], sep) {
		return nil, errors.New("no delimiter in first line")
	}

	rows := make([][]string, 0, len(lines))
	width := 0
	for _, line := range lines {
		fields := strings.Split(line, sep)
		if len(fields) > width {
			width = len(fields)
		}
		rows = append(rows, fields)
	}
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}

	if quirk.header {
		return &domain.Table{Columns: rows[0], Rows: rows[1:]}, nil
	}
	columns := make([]string, width)
	for i := range columns {
		columns[i] = fmt.Sprintf("c%d", i)
	}
	return &domain.Table{Columns: columns, Rows: rows}, nil
}

// parseDelimitedGeneric is the last tabular stage: sniff tab then comma from
// the first line and parse strictly. A single-column body is not a table;
// letting it through would turn every plain-text error page into a 1xN grid.
func parseDelimitedGeneric(raw []byte) (*domain.Table, error) {
	body := string(raw)
	lines := splitLines(body)
	if len(lines) == 0 {
		return nil, errors.New("empty body")
	}

	var comma rune
	switch {
	case strings.ContainsRune(lines[0], '\t'):
		comma = '\t'
	case strings.ContainsRune(lines[0], ','):
		comma = ','
	default:
		return nil, errors.New("no delimiter detected")
	}

	reader := csv.NewReader(strings.NewReader(body))
	reader.Comma = comma
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("delimited parse: %w", err)
	}
	if len(records) == 0 || len(records[0]) < 2 {
		return nil, errors.New("not tabular")
	}
	return &domain.Table{Columns: records[0], Rows: records[1:]}, nil
}

// tableFromStructured reshapes a JSON payload into rows: a top-level list
// becomes one row per element, an object with a nested list under a
// recognized key becomes one row per nested element, any other object
// becomes a single row.
func tableFromStructured(raw []byte) (*domain.Table, error) {
	v, err := parseStructured(raw)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		return tableFromList(t)
	case map[string]any:
		for _, key := range nestedListKeys {
			if inner, ok := t[key].([]any); ok {
				return tableFromList(inner)
			}
		}
		return tableFromList([]any{t})
	default:
		return nil, fmt.Errorf("json value %T is not tabular", v)
	}
}

func tableFromList(list []any) (*domain.Table, error) {
	table := &domain.Table{Columns: []string{}, Rows: [][]string{}}
	if len(list) == 0 {
		return table, nil
	}

	objects := true
	var keys []string
	seen := make(map[string]bool)
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			objects = false
			break
		}
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	if !objects {
		table.Columns = []string{"value"}
		for _, el := range list {
			table.Rows = append(table.Rows, []string{stringify(el)})
		}
		return table, nil
	}

	sort.Strings(keys)
	table.Columns = keys
	for _, el := range list {
		m := el.(map[string]any)
		row := make([]string, len(keys))
		for i, k := range keys {
			if v, ok := m[k]; ok {
				row[i] = stringify(v)
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func splitLines(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
