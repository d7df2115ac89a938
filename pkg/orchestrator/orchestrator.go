// Package orchestrator implements the Pipeline Orchestrator (C9): the
// three-phase commit protocol around Phases A (acquire), B (execute), and C
// (commit), driving stages C4-C8 in sequence against a document acquired
// from the Document Store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/brant/roofpipeline/pkg/blobstore"
	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/documents"
	"github.com/brant/roofpipeline/pkg/models"
	"github.com/brant/roofpipeline/pkg/pipeline"
	"github.com/brant/roofpipeline/pkg/pipeline/analyzer"
	"github.com/brant/roofpipeline/pkg/pipeline/composer"
	"github.com/brant/roofpipeline/pkg/pipeline/extractor"
	"github.com/brant/roofpipeline/pkg/pipeline/interpreter"
	"github.com/brant/roofpipeline/pkg/pipeline/measurer"
	"github.com/brant/roofpipeline/pkg/queue"
)

// Stages bundles the five pipeline stages C4-C8 the orchestrator drives.
type Stages struct {
	Analyze   *analyzer.Stage
	Extract   *extractor.Stage
	Measure   *measurer.Stage
	Interpret *interpreter.Stage
	Compose   *composer.Stage
}

// Orchestrator drives Phases A/B/C for one document job at a time on
// behalf of a worker goroutine.
type Orchestrator struct {
	store  *documents.Store
	blobs  *blobstore.Store
	broker *queue.Broker
	stages Stages
	queue  *config.QueueConfig
	log    *slog.Logger
}

// New builds an Orchestrator.
func New(store *documents.Store, blobs *blobstore.Store, broker *queue.Broker, stages Stages, queueCfg *config.QueueConfig, log *slog.Logger) *Orchestrator {
	return &Orchestrator{store: store, blobs: blobs, broker: broker, stages: stages, queue: queueCfg, log: log}
}

// ProcessDelivery runs one broker delivery through the full three-phase
// protocol and acks, naks, or dead-letters it accordingly.
func (o *Orchestrator) ProcessDelivery(ctx context.Context, d queue.Delivery) {
	job := d.Job
	leaseID := uuid.New().String()

	acquireResult, err := o.store.Acquire(ctx, job.DocumentID, leaseID, o.queue.LeaseDuration)
	if err != nil {
		o.log.Error("phase a acquire failed", "document_id", job.DocumentID, "error", err)
		_ = d.NakWithDelay(o.backoff(job.Attempt))
		return
	}
	if !acquireResult.Acquired {
		// Duplicate delivery of an already-claimed or terminal document.
		o.log.Info("duplicate delivery acknowledged without reprocessing", "document_id", job.DocumentID)
		_ = d.Ack()
		return
	}

	if acquireResult.CancelRequested {
		if ok, err := o.store.CommitCancelled(ctx, job.DocumentID, leaseID); err != nil || !ok {
			o.log.Warn("cancel commit did not apply", "document_id", job.DocumentID, "error", err)
		}
		_ = d.Ack()
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, o.queue.OverallJobTimeout)
	defer cancel()

	stopRefresh := o.startLeaseRefresh(jobCtx, job.DocumentID, leaseID)
	estimate, phaseErr := o.runPhaseB(jobCtx, acquireResult.Document, leaseID)
	stopRefresh()

	o.commit(ctx, job, leaseID, estimate, phaseErr, d)
}

// runPhaseB executes stages C4 -> C5 -> (C6 if blueprint) -> C7 -> C8,
// checking the cancellation flag and recording the stage in flight at each
// stage boundary.
func (o *Orchestrator) runPhaseB(ctx context.Context, doc *models.Document, leaseID string) (models.Estimate, error) {
	start := timeNow()
	var stagesCompleted []string
	var confidences []float64

	filePath, err := o.blobs.Download(ctx, doc.BlobRef)
	if err != nil {
		return models.Estimate{}, err
	}
	defer os.Remove(filePath)

	// Cheap local pre-scan feeding the analyzer: page count, a text sniff,
	// and a first-page thumbnail when the document embeds imagery. A failed
	// pre-scan degrades classification to filename-only rather than
	// failing the job.
	sniff, err := extractor.Presniff(filePath, presniffTextBytes)
	if err != nil {
		o.log.Warn("document pre-scan failed, classifying from filename only", "document_id", doc.ID, "error", err)
	}

	if cancelled, err := o.checkCancelled(ctx, doc.ID); err != nil || cancelled {
		return models.Estimate{}, errOrCancelled(err)
	}
	o.recordStage(ctx, doc.ID, leaseID, o.stages.Analyze.Name())

	analyzeCtx, cancelAnalyze := context.WithTimeout(ctx, o.stages.Analyze.Timeout())
	analyzeResult, err := o.stages.Analyze.Run(analyzeCtx, analyzer.Input{
		Filename:  doc.OriginalFilename,
		PageCount: sniff.PageCount,
		FirstPage: sniff.FirstPagePNG,
		SniffText: sniff.SniffText,
	})
	cancelAnalyze()
	if err != nil {
		return models.Estimate{}, wrapTimeout(o.stages.Analyze.Name(), err)
	}
	stagesCompleted = append(stagesCompleted, o.stages.Analyze.Name())
	confidences = append(confidences, analyzeResult.Confidence)

	if cancelled, err := o.checkCancelled(ctx, doc.ID); err != nil || cancelled {
		return models.Estimate{}, errOrCancelled(err)
	}
	o.recordStage(ctx, doc.ID, leaseID, o.stages.Extract.Name())

	extractCtx, cancelExtract := context.WithTimeout(ctx, o.stages.Extract.Timeout())
	content, err := o.stages.Extract.Run(extractCtx, extractor.Input{FilePath: filePath, Kind: analyzeResult.Kind})
	cancelExtract()
	if err != nil {
		return models.Estimate{}, wrapTimeout(o.stages.Extract.Name(), err)
	}
	stagesCompleted = append(stagesCompleted, o.stages.Extract.Name())
	confidences = append(confidences, content.Confidence)

	var measurement *models.RoofMeasurementResult
	if analyzeResult.Kind == models.KindBlueprint {
		if cancelled, err := o.checkCancelled(ctx, doc.ID); err != nil || cancelled {
			return models.Estimate{}, errOrCancelled(err)
		}
		o.recordStage(ctx, doc.ID, leaseID, o.stages.Measure.Name())

		measureCtx, cancelMeasure := context.WithTimeout(ctx, o.stages.Measure.Timeout())
		result, err := o.stages.Measure.Run(measureCtx, measurer.Input{Content: content})
		cancelMeasure()
		if err != nil {
			return models.Estimate{}, wrapTimeout(o.stages.Measure.Name(), err)
		}
		measurement = &result
		stagesCompleted = append(stagesCompleted, o.stages.Measure.Name())
		confidences = append(confidences, result.Confidence)
	}

	if cancelled, err := o.checkCancelled(ctx, doc.ID); err != nil || cancelled {
		return models.Estimate{}, errOrCancelled(err)
	}
	o.recordStage(ctx, doc.ID, leaseID, o.stages.Interpret.Name())

	interpretCtx, cancelInterpret := context.WithTimeout(ctx, o.stages.Interpret.Timeout())
	interpretation, err := o.stages.Interpret.Run(interpretCtx, content)
	cancelInterpret()
	if err != nil {
		return models.Estimate{}, wrapTimeout(o.stages.Interpret.Name(), err)
	}
	stagesCompleted = append(stagesCompleted, o.stages.Interpret.Name())
	confidences = append(confidences, interpretation.Confidence)

	var warnings []string
	if measurement != nil {
		warnings = append(warnings, measurement.Warnings...)
	}

	if cancelled, err := o.checkCancelled(ctx, doc.ID); err != nil || cancelled {
		return models.Estimate{}, errOrCancelled(err)
	}
	o.recordStage(ctx, doc.ID, leaseID, o.stages.Compose.Name())
	composeCtx, cancelCompose := context.WithTimeout(ctx, o.stages.Compose.Timeout())
	estimate, err := o.stages.Compose.Run(composeCtx, composer.Input{
		Interpretation:   interpretation,
		Measurement:      measurement,
		StageConfidences: confidences,
		StagesCompleted:  stagesCompleted,
		ElapsedSeconds:   timeNow().Sub(start).Seconds(),
		Warnings:         warnings,
	})
	cancelCompose()
	if err != nil {
		return models.Estimate{}, err
	}
	estimate.DocumentID = doc.ID
	return estimate, nil
}

func (o *Orchestrator) checkCancelled(ctx context.Context, documentID string) (bool, error) {
	return o.store.IsCancelRequested(ctx, documentID)
}

// presniffTextBytes bounds the text sniff fed to the analyzer's prompt.
const presniffTextBytes = 2048

// recordStage best-effort records the stage in flight for the status
// endpoint; a lost lease is not acted on here, and Phase C's lease check
// discards the results.
func (o *Orchestrator) recordStage(ctx context.Context, documentID, leaseID, stage string) {
	if _, err := o.store.SetStage(ctx, documentID, leaseID, stage); err != nil {
		o.log.Warn("recording stage failed", "document_id", documentID, "stage", stage, "error", err)
	}
}

func errOrCancelled(err error) error {
	if err != nil {
		return err
	}
	return pipeline.ErrCancelled
}

func wrapTimeout(stageName string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: stage %s", pipeline.ErrStageTimeout, stageName)
	}
	return err
}

// startLeaseRefresh runs a background ticker that extends the lease while
// Phase B executes. It returns a stop function the caller must call once Phase B
// finishes.
func (o *Orchestrator) startLeaseRefresh(ctx context.Context, documentID, leaseID string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(o.queue.LeaseRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ok, err := o.store.RefreshLease(ctx, documentID, leaseID, o.queue.LeaseDuration)
				if err != nil {
					o.log.Warn("lease refresh failed", "document_id", documentID, "error", err)
					continue
				}
				if !ok {
					o.log.Warn("lease lost to another worker", "document_id", documentID)
				}
			}
		}
	}()
	return func() { close(done) }
}

// commit implements Phase C and the retryable/terminal decision.
func (o *Orchestrator) commit(ctx context.Context, job queue.Job, leaseID string, estimate models.Estimate, phaseErr error, d queue.Delivery) {
	documentID := job.DocumentID

	if phaseErr == nil {
		if ok, err := o.store.CommitCompleted(ctx, documentID, leaseID, estimate); err != nil {
			o.log.Error("phase c commit failed", "document_id", documentID, "error", err)
			_ = d.NakWithDelay(o.backoff(job.Attempt))
			return
		} else if !ok {
			o.log.Warn("phase c overtaken, discarding results", "document_id", documentID)
		}
		_ = d.Ack()
		return
	}

	if errors.Is(phaseErr, pipeline.ErrCancelled) {
		_, _ = o.store.CommitCancelled(ctx, documentID, leaseID)
		_ = d.Ack()
		return
	}

	if !pipeline.Retryable(phaseErr) || job.Attempt >= o.queue.RetryMaxAttempts {
		_, _ = o.store.CommitFailed(ctx, documentID, leaseID, errorKind(phaseErr), phaseErr.Error())
		if job.Attempt >= o.queue.RetryMaxAttempts {
			_ = o.broker.DeadLetter(ctx, job, phaseErr.Error())
		}
		_ = d.Ack()
		return
	}

	o.log.Warn("phase b failed, will retry", "document_id", documentID, "attempt", job.Attempt, "error", phaseErr)
	_ = d.NakWithDelay(o.backoff(job.Attempt))
}

// backoff is the broker-level redelivery delay around one Phase A/B/C unit:
// exponential with jitter, parameterized by the queue configuration.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	return queue.Backoff(attempt, o.queue.RetryBase, o.queue.RetryCap)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, pipeline.ErrInvalidPdf):
		return "invalid_pdf"
	case errors.Is(err, pipeline.ErrStageTimeout):
		return "stage_timeout"
	case errors.Is(err, pipeline.ErrUpstream):
		return "upstream_error"
	default:
		return "internal_error"
	}
}

func timeNow() time.Time { return time.Now().UTC() }
