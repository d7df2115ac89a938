package database

import (
	"context"
	stdsql "database/sql"
	"fmt"
)

// CreateGINIndexes creates a GIN (jsonb_path_ops) index over persisted
// estimate JSON, which serves JSON containment (@>) queries; it is not a
// full-text index.
func CreateGINIndexes(ctx context.Context, db *stdsql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_processing_results_estimate_gin
		ON processing_results USING gin(estimate_json jsonb_path_ops)`)
	if err != nil {
		return fmt.Errorf("failed to create estimate_json GIN index: %w", err)
	}
	return nil
}
