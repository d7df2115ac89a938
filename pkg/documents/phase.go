package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brant/roofpipeline/pkg/models"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// AcquireResult is the outcome of Acquire (orchestrator Phase A).
type AcquireResult struct {
	// Document is the row as read under the lock; it is set whenever
	// Acquire returns no error, including when Acquired is false (the job
	// was a duplicate delivery of an already-claimed or terminal document
	// and should simply be acknowledged).
	Document *models.Document
	Acquired bool
	// CancelRequested is surfaced so the orchestrator can go straight to a
	// CANCELLED commit without running Phase B at all.
	CancelRequested bool
}

// Acquire implements orchestrator Phase A: under a transaction that
// SELECTs the document FOR UPDATE, claims it into
// PROCESSING with a fresh lease if it is PENDING, or re-acquires a
// PROCESSING row whose lease has expired (worker crash recovery). Any other
// status means this is a duplicate delivery; the caller should acknowledge
// without running Phase B.
func (s *Store) Acquire(ctx context.Context, documentID, leaseID string, leaseDuration time.Duration) (AcquireResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AcquireResult{}, fmt.Errorf("%w: begin acquire tx: %v", pipeline.ErrUpstream, err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, documentSelectCols+` FROM documents WHERE id = $1 FOR UPDATE`, documentID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AcquireResult{}, fmt.Errorf("%w: document %s", pipeline.ErrNotFound, documentID)
	}
	if err != nil {
		return AcquireResult{}, err
	}

	now := time.Now().UTC()

	claimable := doc.Status == models.StatusPending ||
		(doc.Status == models.StatusProcessing && doc.LeaseExpiry != nil && doc.LeaseExpiry.Before(now))
	if !claimable {
		return AcquireResult{Document: doc, Acquired: false, CancelRequested: doc.CancelRequested}, nil
	}

	expiry := now.Add(leaseDuration)
	attempt := doc.AttemptCount + 1
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET status = $2, lease_id = $3, lease_expiry = $4, attempt_count = $5, updated_at = $6
		WHERE id = $1
	`, documentID, models.StatusProcessing, leaseID, expiry, attempt, now); err != nil {
		return AcquireResult{}, fmt.Errorf("%w: claiming document: %v", pipeline.ErrUpstream, err)
	}

	if err := tx.Commit(); err != nil {
		return AcquireResult{}, fmt.Errorf("%w: commit acquire: %v", pipeline.ErrUpstream, err)
	}

	doc.Status = models.StatusProcessing
	doc.LeaseID = leaseID
	doc.LeaseExpiry = &expiry
	doc.AttemptCount = attempt
	doc.UpdatedAt = now
	return AcquireResult{Document: doc, Acquired: true, CancelRequested: doc.CancelRequested}, nil
}

// RefreshLease extends a live lease during Phase B execution. It touches
// only lease_expiry and updated_at, never status; Phase B has no other
// business writing the row. Returns false if the lease was lost (another
// worker re-acquired, or the document left PROCESSING). The orchestrator
// logs a false return and lets Phase B run to the end; Phase C's lease
// check then discards the results.
func (s *Store) RefreshLease(ctx context.Context, documentID, leaseID string, leaseDuration time.Duration) (bool, error) {
	expiry := time.Now().UTC().Add(leaseDuration)
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET lease_expiry = $3, updated_at = $4
		WHERE id = $1 AND lease_id = $2 AND status = $5
	`, documentID, leaseID, expiry, time.Now().UTC(), models.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("%w: refreshing lease: %v", pipeline.ErrUpstream, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: checking lease refresh result: %v", pipeline.ErrUpstream, err)
	}
	return n == 1, nil
}

// SetStage records the pipeline stage now in flight, for the status
// endpoint's coarse progress reporting. Like RefreshLease it is guarded by
// the lease and touches only current_stage and updated_at; a false return
// means the lease was lost.
func (s *Store) SetStage(ctx context.Context, documentID, leaseID, stage string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET current_stage = $3, updated_at = $4
		WHERE id = $1 AND lease_id = $2 AND status = $5
	`, documentID, leaseID, stage, time.Now().UTC(), models.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("%w: recording stage: %v", pipeline.ErrUpstream, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: checking stage update result: %v", pipeline.ErrUpstream, err)
	}
	return n == 1, nil
}

// IsCancelRequested checks the cancellation flag outside of a lock; reads
// tolerate staleness.
func (s *Store) IsCancelRequested(ctx context.Context, documentID string) (bool, error) {
	var flag bool
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM documents WHERE id = $1`, documentID).Scan(&flag)
	if err != nil {
		return false, fmt.Errorf("%w: reading cancel flag: %v", pipeline.ErrUpstream, err)
	}
	return flag, nil
}

// commitResult is the shared Phase C transaction shape: verify the lease is
// still held and the status is still PROCESSING, then apply a terminal
// mutation. Returns false (no error) on an "overtake" — the lease changed
// or the document left PROCESSING — in which case the caller must discard
// its in-memory results.
func (s *Store) commitResult(ctx context.Context, documentID, leaseID string, apply func(tx *sql.Tx, now time.Time) error) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin commit tx: %v", pipeline.ErrUpstream, err)
	}
	defer func() { _ = tx.Rollback() }()

	var status models.ProcessingStatus
	var dbLeaseID string
	err = tx.QueryRowContext(ctx,
		`SELECT status, lease_id FROM documents WHERE id = $1 FOR UPDATE`, documentID,
	).Scan(&status, &dbLeaseID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: document %s", pipeline.ErrNotFound, documentID)
	}
	if err != nil {
		return false, fmt.Errorf("%w: reading document for commit: %v", pipeline.ErrUpstream, err)
	}

	if status != models.StatusProcessing || dbLeaseID != leaseID {
		return false, nil // overtake
	}

	now := time.Now().UTC()
	if err := apply(tx, now); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit phase C: %v", pipeline.ErrUpstream, err)
	}
	return true, nil
}

// CommitCompleted implements the success path of orchestrator Phase C:
// persists the Estimate and transitions the document to COMPLETED.
func (s *Store) CommitCompleted(ctx context.Context, documentID, leaseID string, estimate models.Estimate) (bool, error) {
	payload, err := json.Marshal(estimate)
	if err != nil {
		return false, fmt.Errorf("%w: encoding estimate: %v", pipeline.ErrInternal, err)
	}

	return s.commitResult(ctx, documentID, leaseID, func(tx *sql.Tx, now time.Time) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO processing_results (document_id, estimate_json, completed_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (document_id) DO NOTHING
		`, documentID, payload, now); err != nil {
			return fmt.Errorf("%w: persisting estimate: %v", pipeline.ErrUpstream, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET status = $2, current_stage = '', lease_id = '', lease_expiry = NULL, updated_at = $3
			WHERE id = $1
		`, documentID, models.StatusCompleted, now); err != nil {
			return fmt.Errorf("%w: marking completed: %v", pipeline.ErrUpstream, err)
		}
		return nil
	})
}

// CommitFailed implements Phase C': a deterministic Phase B failure, or
// broker-level retries exhausted, transitions the document to FAILED with
// the recorded error kind/message.
func (s *Store) CommitFailed(ctx context.Context, documentID, leaseID, errKind, errMessage string) (bool, error) {
	return s.commitResult(ctx, documentID, leaseID, func(tx *sql.Tx, now time.Time) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET status = $2, current_stage = '', lease_id = '', lease_expiry = NULL, error_kind = $3, error_message = $4, updated_at = $5
			WHERE id = $1
		`, documentID, models.StatusFailed, errKind, errMessage, now)
		if err != nil {
			return fmt.Errorf("%w: marking failed: %v", pipeline.ErrUpstream, err)
		}
		return nil
	})
}

// CommitCancelled transitions a document from PROCESSING to CANCELLED when
// Phase B observed the cancellation flag.
func (s *Store) CommitCancelled(ctx context.Context, documentID, leaseID string) (bool, error) {
	return s.commitResult(ctx, documentID, leaseID, func(tx *sql.Tx, now time.Time) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE documents SET status = $2, current_stage = '', lease_id = '', lease_expiry = NULL, updated_at = $3
			WHERE id = $1
		`, documentID, models.StatusCancelled, now)
		if err != nil {
			return fmt.Errorf("%w: marking cancelled: %v", pipeline.ErrUpstream, err)
		}
		return nil
	})
}

// StaleProcessingDocument is one row found by ListStaleProcessing.
type StaleProcessingDocument struct {
	ID           string
	AttemptCount int
}

// ListStaleProcessing finds documents in PROCESSING with an expired lease,
// for the janitor.
func (s *Store) ListStaleProcessing(ctx context.Context, now time.Time) ([]StaleProcessingDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attempt_count FROM documents
		WHERE status = $1 AND lease_expiry IS NOT NULL AND lease_expiry < $2
	`, models.StatusProcessing, now)
	if err != nil {
		return nil, fmt.Errorf("%w: scanning stale leases: %v", pipeline.ErrUpstream, err)
	}
	defer rows.Close()

	var out []StaleProcessingDocument
	for rows.Next() {
		var d StaleProcessingDocument
		if err := rows.Scan(&d.ID, &d.AttemptCount); err != nil {
			return nil, fmt.Errorf("%w: scanning stale lease row: %v", pipeline.ErrUpstream, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReturnToPending resets a stale PROCESSING document to PENDING so another
// worker can claim it, only if it is still in PROCESSING with an expired
// lease (guards against a race with a worker that refreshed its lease
// between the janitor's scan and this call).
func (s *Store) ReturnToPending(ctx context.Context, documentID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = $2, current_stage = '', lease_id = '', lease_expiry = NULL, updated_at = $3
		WHERE id = $1 AND status = $4 AND lease_expiry < $3
	`, documentID, models.StatusPending, now, models.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("%w: returning to pending: %v", pipeline.ErrUpstream, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// FailExhausted marks a stale PROCESSING document FAILED because its
// attempt counter is at the retry cap.
func (s *Store) FailExhausted(ctx context.Context, documentID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET status = $2, current_stage = '', lease_id = '', lease_expiry = NULL, error_kind = 'internal_error',
		    error_message = 'lease expired and retry attempts exhausted', updated_at = $3
		WHERE id = $1 AND status = $4 AND lease_expiry < $3
	`, documentID, models.StatusFailed, now, models.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("%w: failing exhausted document: %v", pipeline.ErrUpstream, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
