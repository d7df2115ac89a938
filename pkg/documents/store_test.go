package documents

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/brant/roofpipeline/pkg/database"
	"github.com/brant/roofpipeline/pkg/models"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// newTestStore provisions a throwaway Postgres, applies the embedded
// migrations, and returns a ready Store.
func newTestStore(t *testing.T) *Store {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db, "test"))
	return New(db)
}

func createDoc(t *testing.T, store *Store, blobRef string) *models.Document {
	t.Helper()
	doc, created, err := store.Create(context.Background(), CreateInput{
		OriginalFilename: "plan.pdf",
		BlobRef:          blobRef,
		ContentLength:    2 << 20,
	})
	require.NoError(t, err)
	require.True(t, created)
	return doc
}

func TestCreate_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := CreateInput{OriginalFilename: "plan.pdf", BlobRef: "uploads/a/plan.pdf"}

	first, created, err := store.Create(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.StatusPending, first.Status)

	second, created, err := store.Create(ctx, in)
	require.NoError(t, err)
	assert.False(t, created, "duplicate create must not report a fresh insert")
	assert.Equal(t, first.ID, second.ID, "same dedupe key resolves to the same document")
}

func TestAcquire_ClaimsPendingDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/b/plan.pdf")

	result, err := store.Acquire(ctx, doc.ID, "lease-1", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Acquired)
	assert.Equal(t, models.StatusProcessing, result.Document.Status)
	assert.Equal(t, 1, result.Document.AttemptCount)
	require.NotNil(t, result.Document.LeaseExpiry)
}

// A second delivery while a live lease is held is acknowledged without
// reprocessing.
func TestAcquire_DuplicateDeliveryNotAcquired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/c/plan.pdf")

	first, err := store.Acquire(ctx, doc.ID, "lease-1", 10*time.Minute)
	require.NoError(t, err)
	require.True(t, first.Acquired)

	second, err := store.Acquire(ctx, doc.ID, "lease-2", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, second.Acquired, "live lease blocks re-acquisition")
}

// After a worker crash the expired lease is re-acquirable.
func TestAcquire_ExpiredLeaseReacquired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/d/plan.pdf")

	_, err := store.Acquire(ctx, doc.ID, "lease-1", -1*time.Minute) // already expired
	require.NoError(t, err)

	second, err := store.Acquire(ctx, doc.ID, "lease-2", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, second.Acquired, "expired lease is claimable by a new worker")
	assert.Equal(t, 2, second.Document.AttemptCount)
}

func TestAcquire_UnknownDocument(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Acquire(context.Background(), "7b4f3a90-0000-4000-8000-abcdefabcdef", "lease", time.Minute)
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func sampleEstimate(documentID string) models.Estimate {
	return models.Estimate{
		DocumentID:      documentID,
		RoofAreaSqft:    2500,
		EstimatedCost:   30000,
		Timeline:        "4-6 days",
		Confidence:      0.8,
		StagesCompleted: []string{"analyze", "extract", "measure", "interpret", "compose"},
	}
}

func TestCommitCompleted_PersistsAndTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/e/plan.pdf")

	acq, err := store.Acquire(ctx, doc.ID, "lease-1", 10*time.Minute)
	require.NoError(t, err)
	require.True(t, acq.Acquired)

	ok, err := store.CommitCompleted(ctx, doc.ID, "lease-1", sampleEstimate(doc.ID))
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, reloaded.Status)
	assert.Empty(t, reloaded.LeaseID)
	assert.Nil(t, reloaded.LeaseExpiry)

	estimate, err := store.GetResult(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, sampleEstimate(doc.ID), *estimate)
}

// A stale worker whose lease was taken over must not commit (at-most-once
// result commit).
func TestCommitCompleted_OvertakeDiscardsResult(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/f/plan.pdf")

	_, err := store.Acquire(ctx, doc.ID, "lease-1", -1*time.Minute)
	require.NoError(t, err)
	second, err := store.Acquire(ctx, doc.ID, "lease-2", 10*time.Minute)
	require.NoError(t, err)
	require.True(t, second.Acquired)

	ok, err := store.CommitCompleted(ctx, doc.ID, "lease-1", sampleEstimate(doc.ID))
	require.NoError(t, err)
	assert.False(t, ok, "stale lease holder is overtaken, result discarded")

	reloaded, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, reloaded.Status, "live worker's claim survives")

	_, err = store.GetResult(ctx, doc.ID)
	assert.ErrorIs(t, err, pipeline.ErrNotReady, "no result row was written")
}

func TestCommitFailed_RecordsErrorKind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/g/plan.pdf")

	_, err := store.Acquire(ctx, doc.ID, "lease-1", 10*time.Minute)
	require.NoError(t, err)

	ok, err := store.CommitFailed(ctx, doc.ID, "lease-1", "insufficient_data", "no roof area found")
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, reloaded.Status)
	assert.Equal(t, "insufficient_data", reloaded.ErrorKind)
	assert.Equal(t, "no roof area found", reloaded.ErrorMessage)
}

func TestRequestCancel_PendingGoesStraightToCancelled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/h/plan.pdf")

	cancelled, err := store.RequestCancel(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	reloaded, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, reloaded.Status)
	assert.True(t, reloaded.CancelRequested)
}

func TestRequestCancel_ProcessingSetsFlagOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/i/plan.pdf")

	_, err := store.Acquire(ctx, doc.ID, "lease-1", 10*time.Minute)
	require.NoError(t, err)

	_, err = store.RequestCancel(ctx, doc.ID)
	require.NoError(t, err)

	reloaded, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, reloaded.Status, "worker still owns the document")
	assert.True(t, reloaded.CancelRequested)

	flagged, err := store.IsCancelRequested(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, flagged)

	ok, err := store.CommitCancelled(ctx, doc.ID, "lease-1")
	require.NoError(t, err)
	assert.True(t, ok)

	final, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, final.Status)
}

func TestRequestCancel_TerminalStatusConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/j/plan.pdf")

	_, err := store.Acquire(ctx, doc.ID, "lease-1", 10*time.Minute)
	require.NoError(t, err)
	_, err = store.CommitCompleted(ctx, doc.ID, "lease-1", sampleEstimate(doc.ID))
	require.NoError(t, err)

	_, err = store.RequestCancel(ctx, doc.ID)
	assert.ErrorIs(t, err, pipeline.ErrConflict)
}

func TestJanitor_StaleLeaseRecovery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/k/plan.pdf")

	_, err := store.Acquire(ctx, doc.ID, "lease-1", -1*time.Minute)
	require.NoError(t, err)

	now := time.Now().UTC()
	stale, err := store.ListStaleProcessing(ctx, now)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, doc.ID, stale[0].ID)
	assert.Equal(t, 1, stale[0].AttemptCount)

	ok, err := store.ReturnToPending(ctx, doc.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reloaded.Status)
	assert.Equal(t, 1, reloaded.AttemptCount, "attempt counter survives recovery")
}

func TestJanitor_FailExhausted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/l/plan.pdf")

	_, err := store.Acquire(ctx, doc.ID, "lease-1", -1*time.Minute)
	require.NoError(t, err)

	ok, err := store.FailExhausted(ctx, doc.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, reloaded.Status)
	assert.Equal(t, "internal_error", reloaded.ErrorKind)
}

func TestJanitor_LiveLeaseNotRecovered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/m/plan.pdf")

	_, err := store.Acquire(ctx, doc.ID, "lease-1", 10*time.Minute)
	require.NoError(t, err)

	stale, err := store.ListStaleProcessing(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, stale)

	ok, err := store.ReturnToPending(ctx, doc.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok, "guard rejects recovery of a live lease")
}

func TestRefreshLease(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/n/plan.pdf")

	acq, err := store.Acquire(ctx, doc.ID, "lease-1", 10*time.Minute)
	require.NoError(t, err)
	before := *acq.Document.LeaseExpiry

	time.Sleep(10 * time.Millisecond)
	ok, err := store.RefreshLease(ctx, doc.ID, "lease-1", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.LeaseExpiry.After(before))

	ok, err = store.RefreshLease(ctx, doc.ID, "wrong-lease", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a lost lease cannot be refreshed")
}

func TestGetResult_NotReadyBeforeCompletion(t *testing.T) {
	store := newTestStore(t)
	doc := createDoc(t, store, "uploads/o/plan.pdf")

	_, err := store.GetResult(context.Background(), doc.ID)
	assert.ErrorIs(t, err, pipeline.ErrNotReady)
}

func TestDedupeKey_Deterministic(t *testing.T) {
	a := DedupeKey("uploads/x/plan.pdf", "plan.pdf")
	b := DedupeKey("uploads/x/plan.pdf", "plan.pdf")
	c := DedupeKey("uploads/y/plan.pdf", "plan.pdf")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestSetStage_TracksAndClears(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := createDoc(t, store, "uploads/p/plan.pdf")

	_, err := store.Acquire(ctx, doc.ID, "lease-1", 10*time.Minute)
	require.NoError(t, err)

	ok, err := store.SetStage(ctx, doc.ID, "lease-1", "extract")
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "extract", reloaded.CurrentStage)

	ok, err = store.SetStage(ctx, doc.ID, "wrong-lease", "measure")
	require.NoError(t, err)
	assert.False(t, ok, "a lost lease cannot record stages")

	_, err = store.CommitCompleted(ctx, doc.ID, "lease-1", sampleEstimate(doc.ID))
	require.NoError(t, err)

	final, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, final.CurrentStage, "terminal commit clears the stage")
}
