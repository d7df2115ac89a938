// Package documents implements the Document Store (C2): the durable record
// of documents, statuses, and processing results, with row-level locking for
// the orchestrator's three-phase commit protocol.
package documents

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brant/roofpipeline/pkg/models"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// Store is the Document/ProcessingResult repository.
type Store struct {
	db *sql.DB
}

// New wraps an open *sql.DB in a Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DedupeKey computes the content-addressed idempotency key for
// start_processing: sha256(blob_name ||
// original_filename).
func DedupeKey(blobName, originalFilename string) string {
	sum := sha256.Sum256([]byte(blobName + "\x00" + originalFilename))
	return hex.EncodeToString(sum[:])
}

// CreateInput is the payload for Create.
type CreateInput struct {
	OriginalFilename string
	BlobRef          string
	ContentLength    int64
	ProjectKey       string
}

// Create inserts a new Document in StatusPending, or returns the existing
// Document if one with the same dedupe key already exists, making
// start_processing idempotent on repeats of the same (blob_name,
// original_filename) tuple. The unique index on dedupe_key has no time
// window: a repeat at any later time returns the original row. The second
// return value reports whether this call inserted the row; only the caller
// that observes true enqueues a job, so concurrent duplicate requests
// enqueue exactly once.
func (s *Store) Create(ctx context.Context, in CreateInput) (*models.Document, bool, error) {
	dedupeKey := DedupeKey(in.BlobRef, in.OriginalFilename)
	id := uuid.New().String()
	now := time.Now().UTC()

	var insertedID string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (id, original_filename, blob_ref, content_length, status, project_key, dedupe_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING id
	`, id, in.OriginalFilename, in.BlobRef, in.ContentLength, models.StatusPending, in.ProjectKey, dedupeKey, now).Scan(&insertedID)
	created := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("%w: inserting document: %v", pipeline.ErrUpstream, err)
	}

	doc, err := s.getByDedupeKey(ctx, dedupeKey)
	return doc, created, err
}

func (s *Store) getByDedupeKey(ctx context.Context, dedupeKey string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, documentSelectCols+` FROM documents WHERE dedupe_key = $1`, dedupeKey)
	return scanDocument(row)
}

// Get loads a Document by id without locking. Callers must tolerate
// staleness.
func (s *Store) Get(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, documentSelectCols+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", pipeline.ErrNotFound, id)
	}
	return doc, err
}

// RequestCancel sets the cancellation flag on a document. Legal only from
// PENDING or PROCESSING.
func (s *Store) RequestCancel(ctx context.Context, id string) (*models.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin cancel tx: %v", pipeline.ErrUpstream, err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, documentSelectCols+` FROM documents WHERE id = $1 FOR UPDATE`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", pipeline.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if doc.Status != models.StatusPending && doc.Status != models.StatusProcessing {
		return nil, fmt.Errorf("%w: cannot cancel document in status %s", pipeline.ErrConflict, doc.Status)
	}

	now := time.Now().UTC()
	if doc.Status == models.StatusPending {
		// No worker holds this document yet; transition directly to
		// CANCELLED (the PENDING -> CANCELLED state-machine edge). The flag
		// is still set so a racing Phase A that already selected the row
		// sees the request.
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET status = $2, cancel_requested = true, updated_at = $3 WHERE id = $1
		`, id, models.StatusCancelled, now); err != nil {
			return nil, fmt.Errorf("%w: cancelling pending document: %v", pipeline.ErrUpstream, err)
		}
		doc.Status = models.StatusCancelled
	} else {
		// A worker may be mid-Phase-B; set the flag and let it observe at
		// the next stage boundary.
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET cancel_requested = true, updated_at = $2 WHERE id = $1
		`, id, now); err != nil {
			return nil, fmt.Errorf("%w: flagging cancel: %v", pipeline.ErrUpstream, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit cancel: %v", pipeline.ErrUpstream, err)
	}

	doc.CancelRequested = true
	doc.UpdatedAt = now
	return doc, nil
}

// GetResult loads the persisted Estimate for a COMPLETED document.
func (s *Store) GetResult(ctx context.Context, documentID string) (*models.Estimate, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT estimate_json FROM processing_results WHERE document_id = $1`, documentID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no results for document %s", pipeline.ErrNotReady, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading result: %v", pipeline.ErrUpstream, err)
	}

	var est models.Estimate
	if err := json.Unmarshal(payload, &est); err != nil {
		return nil, fmt.Errorf("%w: decoding stored estimate: %v", pipeline.ErrInternal, err)
	}
	return &est, nil
}

const documentSelectCols = `
	SELECT id, original_filename, blob_ref, content_length, status, current_stage,
	       project_key, lease_id, lease_expiry, attempt_count, cancel_requested,
	       error_kind, error_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var d models.Document
	var leaseExpiry sql.NullTime
	if err := row.Scan(
		&d.ID, &d.OriginalFilename, &d.BlobRef, &d.ContentLength, &d.Status, &d.CurrentStage,
		&d.ProjectKey, &d.LeaseID, &leaseExpiry, &d.AttemptCount, &d.CancelRequested,
		&d.ErrorKind, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scanning document row: %v", pipeline.ErrUpstream, err)
	}
	if leaseExpiry.Valid {
		d.LeaseExpiry = &leaseExpiry.Time
	}
	return &d, nil
}
