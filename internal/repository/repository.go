// Package repository persists enrichment runs for downstream consumers.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/openbioscience/finch/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores a run and its rows atomically. Re-saving an existing run ID
// replaces its rows.
func (r *SQLRepository) SaveRun(ctx context.Context, run *domain.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run ID is required", ErrInvalidInput)
	}

	databases, _ := json.Marshal(run.Databases)
	skipped, _ := json.Marshal(run.Skipped)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	runQuery := `
		INSERT INTO enrichment_runs (
			id, organism, databases, gene_count, status, skipped, created_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			organism = excluded.organism,
			databases = excluded.databases,
			gene_count = excluded.gene_count,
			status = excluded.status,
			skipped = excluded.skipped,
			duration_ms = excluded.duration_ms
	`

	_, err = tx.ExecContext(ctx, r.rebind(runQuery),
		run.ID, run.Organism, string(databases),
		run.GeneCount, run.Status, string(skipped),
		run.CreatedAt, run.DurationMs,
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM enrichment_rows WHERE run_id = ?`), run.ID); err != nil {
		return err
	}

	rowQuery := `
		INSERT INTO enrichment_rows (
			run_id, rank, pathway_id, pathway_name, matched, p_value, fdr, source_db
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i, row := range run.Rows {
		matched, _ := json.Marshal(row.Matched)
		_, err := tx.ExecContext(ctx, r.rebind(rowQuery),
			run.ID, i+1, row.PathwayID, row.PathwayName,
			string(matched), row.PValue, row.FDR, string(row.Database),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run by ID with its rows rehydrated in rank order.
func (r *SQLRepository) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: run ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, organism, databases, gene_count, status, skipped, created_at, duration_ms
		FROM enrichment_runs
		WHERE id = ?
	`

	var run domain.Run
	var databases, skipped string

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&run.ID, &run.Organism, &databases,
		&run.GeneCount, &run.Status, &skipped,
		&run.CreatedAt, &run.DurationMs,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(databases), &run.Databases)
	if skipped != "" {
		json.Unmarshal([]byte(skipped), &run.Skipped)
	}

	rows, err := r.getRows(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Rows = rows

	return &run, nil
}

func (r *SQLRepository) getRows(ctx context.Context, runID string) ([]domain.EnrichmentRow, error) {
	query := `
		SELECT pathway_id, pathway_name, matched, p_value, fdr, source_db
		FROM enrichment_rows
		WHERE run_id = ?
		ORDER BY rank
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.EnrichmentRow, 0, 16)
	for rows.Next() {
		var row domain.EnrichmentRow
		var matched, sourceDB string

		if err := rows.Scan(
			&row.PathwayID, &row.PathwayName, &matched,
			&row.PValue, &row.FDR, &sourceDB,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(matched), &row.Matched)
		row.Database = domain.Database(sourceDB)
		results = append(results, row)
	}

	return results, rows.Err()
}

// ListRuns retrieves run summaries, newest first. Rows are not hydrated;
// fetch a run by ID for its rows.
func (r *SQLRepository) ListRuns(ctx context.Context, limit, offset int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, organism, databases, gene_count, status, skipped, created_at, duration_ms
		FROM enrichment_runs
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		var run domain.Run
		var databases, skipped string

		if err := rows.Scan(
			&run.ID, &run.Organism, &databases,
			&run.GeneCount, &run.Status, &skipped,
			&run.CreatedAt, &run.DurationMs,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(databases), &run.Databases)
		if skipped != "" {
			json.Unmarshal([]byte(skipped), &run.Skipped)
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// UpdateRunStatus transitions a run's lifecycle status.
func (r *SQLRepository) UpdateRunStatus(ctx context.Context, id string, status string) error {
	if id == "" || status == "" {
		return fmt.Errorf("%w: run ID and status are required", ErrInvalidInput)
	}

	query := `
		UPDATE enrichment_runs
		SET status = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), status, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
