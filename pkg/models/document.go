// Package models contains the shared domain types passed between the ingest
// API, the pipeline worker, and the document store.
package models

import "time"

// ProcessingStatus is the document state machine. The zero value is not a
// legal status; always set explicitly.
type ProcessingStatus string

// Legal ProcessingStatus values. No other string is a valid status.
const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
	StatusCancelled  ProcessingStatus = "cancelled"
)

// legalTransitions enumerates the only allowed status transitions. Anything
// not listed here must be rejected by CanTransition.
var legalTransitions = map[ProcessingStatus]map[ProcessingStatus]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
		// PROCESSING -> PENDING is the janitor's lease-recovery path; it is
		// driven by the orphan scanner, not by CanTransition callers, but is
		// listed here since it is a legal state-machine edge.
		StatusPending: true,
	},
}

// CanTransition reports whether moving a Document from 'from' to 'to' is a
// legal status transition.
func CanTransition(from, to ProcessingStatus) bool {
	next, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Document is the authoritative processing unit. It is mutated only by the
// orchestrator through the document store, under row-level locking.
type Document struct {
	ID               string
	OriginalFilename string
	BlobRef          string
	ContentLength    int64
	Status           ProcessingStatus
	// CurrentStage names the pipeline stage in flight while Status is
	// StatusProcessing; empty otherwise. Written only under the worker's
	// lease, read lock-free by the status endpoint.
	CurrentStage     string
	ProjectKey       string
	LeaseID          string
	LeaseExpiry      *time.Time
	AttemptCount     int
	CancelRequested  bool
	ErrorKind        string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProcessingResult is the terminal artifact persisted alongside a COMPLETED
// Document (invariant: present iff Document.Status == StatusCompleted).
type ProcessingResult struct {
	DocumentID  string
	Estimate    Estimate
	CompletedAt time.Time
}

// DocumentKind is C4's classification output.
type DocumentKind string

// Legal DocumentKind values; "unknown" is always an acceptable answer.
const (
	KindBlueprint        DocumentKind = "blueprint"
	KindInspectionReport DocumentKind = "inspection_report"
	KindExistingEstimate DocumentKind = "existing_estimate"
	KindPhoto            DocumentKind = "photo"
	KindUnknown          DocumentKind = "unknown"
)

// MeasurementMethod tags how a roof measurement was produced.
type MeasurementMethod string

const (
	MethodCV        MeasurementMethod = "cv"
	MethodLLMVision MeasurementMethod = "llm_vision"
	MethodHybrid    MeasurementMethod = "hybrid"
)

// FeatureKind enumerates recognized roof-top features.
type FeatureKind string

const (
	FeatureExhaustPort FeatureKind = "exhaust_port"
	FeatureWalkway     FeatureKind = "walkway"
	FeatureEquipment   FeatureKind = "equipment"
	FeatureDrain       FeatureKind = "drain"
	FeaturePenetration FeatureKind = "penetration"
	FeatureEquipPad    FeatureKind = "equipment_pad"
)

// FeatureImpact is the cost-complexity band a feature falls into.
type FeatureImpact string

const (
	ImpactLow    FeatureImpact = "low"
	ImpactMedium FeatureImpact = "medium"
	ImpactHigh   FeatureImpact = "high"
)

// RoofFeature is a detected roof-top object affecting cost or complexity.
type RoofFeature struct {
	Kind   FeatureKind   `json:"kind"`
	Count  int           `json:"count"`
	Impact FeatureImpact `json:"impact"`
}

// ReconciliationRecommendation is the outcome of measurement reconciliation.
type ReconciliationRecommendation string

const (
	RecommendUseBlueprint  ReconciliationRecommendation = "use_blueprint"
	RecommendManualReview  ReconciliationRecommendation = "manual_review"
)

// Material is a line item in an Estimate's material list.
type Material struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	UnitCost float64 `json:"unit_cost"`
}

// LaborEstimate is the labor portion of an Estimate.
type LaborEstimate struct {
	Hours    float64 `json:"hours"`
	Rate     float64 `json:"rate"`
	Subtotal float64 `json:"subtotal"`
}

// Estimate is the final, persisted result of the pipeline. It is stored as
// the processing_results JSON payload and returned verbatim from the
// results endpoint, so the tags are the wire contract.
type Estimate struct {
	DocumentID      string        `json:"document_id"`
	RoofAreaSqft    float64       `json:"roof_area_sqft"`
	EstimatedCost   float64       `json:"estimated_cost"`
	Materials       []Material    `json:"materials"`
	Labor           LaborEstimate `json:"labor"`
	Timeline        string        `json:"timeline"`
	Confidence      float64       `json:"confidence"`
	Warnings        []string      `json:"warnings,omitempty"`
	StagesCompleted []string      `json:"stages_completed"`
	ElapsedSeconds  float64       `json:"elapsed_seconds"`
}
