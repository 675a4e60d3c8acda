package repository

// Schema definitions for Finch run persistence.
// Compatible with both SQLite and PostgreSQL.

const schemaRuns = `
CREATE TABLE IF NOT EXISTS enrichment_runs (
    id TEXT PRIMARY KEY,
    organism TEXT NOT NULL,
    databases TEXT NOT NULL,
    gene_count INTEGER NOT NULL,
    status TEXT NOT NULL,
    skipped TEXT,
    created_at TIMESTAMP NOT NULL,
    duration_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON enrichment_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON enrichment_runs(status);
`

// schemaRows defines the per-pathway result rows of a run. Rank is the row's
// 1-based position in the merged, p-value sorted report.
const schemaRows = `
CREATE TABLE IF NOT EXISTS enrichment_rows (
    run_id TEXT NOT NULL,
    rank INTEGER NOT NULL,
    pathway_id TEXT NOT NULL,
    pathway_name TEXT NOT NULL,
    matched TEXT NOT NULL,
    p_value REAL NOT NULL,
    fdr REAL NOT NULL,
    source_db TEXT NOT NULL,
    PRIMARY KEY (run_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_rows_run ON enrichment_rows(run_id);
CREATE INDEX IF NOT EXISTS idx_rows_pathway ON enrichment_rows(pathway_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRuns,
		schemaRows,
	}
}
