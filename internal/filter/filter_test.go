package filter

import (
	"testing"

	"github.com/openbioscience/finch/internal/domain"
)

func sampleRows() []domain.EnrichmentRow {
	return []domain.EnrichmentRow{
		{
			PathwayID:   "hsa04110",
			PathwayName: "Cell cycle",
			Matched:     []string{"BRCA1", "TP53"},
			PValue:      0.0009,
			FDR:         0.012,
			Database:    domain.DatabaseKEGG,
		},
		{
			PathwayID:   "R-HSA-162582",
			PathwayName: "Signal Transduction",
			Matched:     []string{"EGFR"},
			PValue:      0.03,
			FDR:         0.2,
			Database:    domain.DatabaseReactome,
		},
		{
			PathwayID:   "hsa04115",
			PathwayName: "p53 signaling pathway",
			Matched:     []string{"TP53"},
			PValue:      0.004,
			FDR:         0.04,
			Database:    domain.DatabaseKEGG,
		},
	}
}

func TestCompile(t *testing.T) {
	t.Run("PresetsResolveToExpressions", func(t *testing.T) {
		f, err := Compile("significant")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if f.Expression() != "row.fdr < 0.05" {
			t.Errorf("unexpected resolved expression %q", f.Expression())
		}

		f, err = Compile("strict")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if f.Expression() != "row.pvalue < 0.01" {
			t.Errorf("unexpected resolved expression %q", f.Expression())
		}
	})

	t.Run("EmptyExpression", func(t *testing.T) {
		if _, err := Compile(""); !domain.IsConfigError(err) {
			t.Fatalf("expected config error, got %v", err)
		}
	})

	t.Run("SyntaxError", func(t *testing.T) {
		if _, err := Compile("row.fdr <"); !domain.IsConfigError(err) {
			t.Fatalf("expected config error, got %v", err)
		}
	})

	t.Run("NonBoolExpression", func(t *testing.T) {
		for _, expr := range []string{"row.pvalue", "1 + 1", `"kegg"`} {
			if _, err := Compile(expr); !domain.IsConfigError(err) {
				t.Errorf("%q: expected config error, got %v", expr, err)
			}
		}
	})
}

func TestApply(t *testing.T) {
	rows := sampleRows()

	t.Run("SignificantPreset", func(t *testing.T) {
		f, err := Compile("significant")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		kept, err := f.Apply(rows)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if len(kept) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(kept))
		}
		if kept[0].PathwayID != "hsa04110" || kept[1].PathwayID != "hsa04115" {
			t.Errorf("unexpected rows kept: %v, %v", kept[0].PathwayID, kept[1].PathwayID)
		}
	})

	t.Run("DatabaseEquality", func(t *testing.T) {
		f, err := Compile(`row.database == "kegg"`)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		kept, err := f.Apply(rows)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if len(kept) != 2 {
			t.Fatalf("expected 2 kegg rows, got %d", len(kept))
		}
		for _, row := range kept {
			if row.Database != domain.DatabaseKEGG {
				t.Errorf("unexpected database %q", row.Database)
			}
		}
	})

	t.Run("MatchedListFunctions", func(t *testing.T) {
		f, err := Compile("size(row.matched) >= 2")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		kept, err := f.Apply(rows)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if len(kept) != 1 || kept[0].PathwayID != "hsa04110" {
			t.Fatalf("expected only the two-gene row, got %v", kept)
		}

		f, err = Compile(`row.matched.exists(g, g == "TP53")`)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		kept, err = f.Apply(rows)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if len(kept) != 2 {
			t.Fatalf("expected 2 rows containing TP53, got %d", len(kept))
		}
	})

	t.Run("TrueKeepsEverything", func(t *testing.T) {
		f, err := Compile("true")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		kept, err := f.Apply(rows)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if len(kept) != len(rows) {
			t.Fatalf("expected all %d rows, got %d", len(rows), len(kept))
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		f, err := Compile("significant")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		kept, err := f.Apply(nil)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if len(kept) != 0 {
			t.Fatalf("expected no rows, got %d", len(kept))
		}
	})

	t.Run("RuntimeTypeMismatch", func(t *testing.T) {
		f, err := Compile("row.pvalue < row.name")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if _, err := f.Apply(rows); !domain.IsConfigError(err) {
			t.Fatalf("expected config error from a type mismatch, got %v", err)
		}
	})
}

func TestPresets(t *testing.T) {
	names := Presets()
	if len(names) != 2 || names[0] != "significant" || names[1] != "strict" {
		t.Fatalf("unexpected preset names %v", names)
	}
}
