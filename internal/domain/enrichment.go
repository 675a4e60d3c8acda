package domain

import (
	"time"
)

// EnrichmentRequest asks for over-representation analysis of a gene set
// against the pathway catalogs of one or more databases.
type EnrichmentRequest struct {
	Genes     []string   `json:"genes"`
	Organism  string     `json:"organism"`
	Databases []Database `json:"databases"`

	// PValueCutoff is advisory metadata for downstream consumers.
	// Rows are never filtered by it before merging.
	PValueCutoff float64 `json:"pValueCutoff,omitempty"`

	// Background overrides the organism-wide identifier universe when set.
	// When empty the background is derived per database.
	Background []string `json:"background,omitempty"`
}

// EnrichmentRow is one pathway's test outcome. Rows are created once, never
// mutated, and belong to exactly one report.
type EnrichmentRow struct {
	PathwayID   string   `json:"pathwayId"`
	PathwayName string   `json:"pathwayName"`
	Matched     []string `json:"matched"`
	PValue      float64  `json:"pValue"`
	FDR         float64  `json:"fdr"`
	Database    Database `json:"database"`
}

// ReportColumns is the standard header every report carries, present even
// when no row was produced.
func ReportColumns() []string {
	return []string{"pathway_id", "pathway_name", "matched", "p_value", "fdr", "database"}
}

// Report is the merged outcome of one enrichment call: rows across all
// contributing databases sorted ascending by p-value, plus the reasons any
// database contributed nothing.
type Report struct {
	Columns []string        `json:"columns"`
	Rows    []EnrichmentRow `json:"rows"`

	// Skipped records, per database, why it produced no rows.
	Skipped map[Database]string `json:"skipped,omitempty"`

	Meta ReportMeta `json:"meta"`
}

// ReportMeta carries processing metadata for one enrichment run.
type ReportMeta struct {
	RunID         string     `json:"runId"`
	Organism      string     `json:"organism"`
	Databases     []Database `json:"databases"`
	PValueCutoff  float64    `json:"pValueCutoff,omitempty"`
	GeneCount     int        `json:"geneCount"`
	DurationMs    int64      `json:"durationMs"`
	EngineVersion string     `json:"engineVersion"`
}

// Contingency is the 2x2 count table Fisher's exact test runs on, laid out
// as [[SetPathway, PathwayOnly], [SetOnly, Neither]].
type Contingency struct {
	// SetPathway counts query genes inside the pathway.
	SetPathway int `json:"setPathway"`

	// PathwayOnly counts pathway genes outside the query set.
	PathwayOnly int `json:"pathwayOnly"`

	// SetOnly counts query genes outside the pathway.
	SetOnly int `json:"setOnly"`

	// Neither counts background genes in neither set.
	Neither int `json:"neither"`
}

// Validate checks the table against the background size. All counts must be
// non-negative and sum to the background. When the neither cell is derived
// as the background remainder the sum holds by construction; it is the
// negative cell that reports an undersized background, never silent clipping.
func (c Contingency) Validate(background int) error {
	if c.SetPathway < 0 || c.PathwayOnly < 0 || c.SetOnly < 0 || c.Neither < 0 {
		return ConfigErrorf("negative contingency count in %v", c)
	}
	if sum := c.SetPathway + c.PathwayOnly + c.SetOnly + c.Neither; sum != background {
		return ConfigErrorf("contingency counts sum to %d, background size is %d", sum, background)
	}
	return nil
}

// Run lifecycle states.
const (
	RunStatusPending   = "pending"
	RunStatusCompleted = "completed"
	RunStatusEmpty     = "empty"
	RunStatusFailed    = "failed"
)

// Run is the persisted form of an enrichment report, read by downstream
// consumers (ML pipelines, visualization) from the repository.
type Run struct {
	ID         string              `json:"id"`
	Organism   string              `json:"organism"`
	Databases  []Database          `json:"databases"`
	GeneCount  int                 `json:"geneCount"`
	Status     string              `json:"status"`
	Skipped    map[Database]string `json:"skipped,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	DurationMs int64               `json:"durationMs"`
	Rows       []EnrichmentRow     `json:"rows"`
}

// ToRun converts a report into its persisted form.
func (r *Report) ToRun() *Run {
	status := RunStatusCompleted
	if len(r.Rows) == 0 {
		status = RunStatusEmpty
	}
	return &Run{
		ID:         r.Meta.RunID,
		Organism:   r.Meta.Organism,
		Databases:  r.Meta.Databases,
		GeneCount:  r.Meta.GeneCount,
		Status:     status,
		Skipped:    r.Skipped,
		CreatedAt:  time.Now().UTC(),
		DurationMs: r.Meta.DurationMs,
		Rows:       r.Rows,
	}
}
