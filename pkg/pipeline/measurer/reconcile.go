// Package measurer implements the Roof Measurer (C6, blueprint branch
// only): hybrid CV/LLM-vision measurement selection and reconciliation with
// OCR-extracted measurements.
package measurer

import (
	"math"

	"github.com/brant/roofpipeline/pkg/models"
)

// Candidate is one measurement result — either the CV path's or the
// LLM-vision fallback's — before hybrid selection.
type Candidate struct {
	TotalSqft  float64
	Regions    []models.RegionMeasurement
	Features   []models.RoofFeature
	Method     models.MeasurementMethod
	Confidence float64
}

// hybridRelDiffMinor and hybridRelDiffMajor are the relative-difference
// bands of the hybrid selection policy.
const (
	hybridRelDiffMinor = 0.05
	hybridRelDiffMajor = 0.20
)

// HybridSelect picks the authoritative measurement from a CV candidate and
// an optional LLM-vision candidate, and records any discrepancy warning.
// Method on the returned Candidate is overwritten to MethodHybrid when both
// inputs were available and at least one has a non-zero area, since the
// result is a reconciliation of the two; when both areas are zero the CV
// candidate is returned unchanged.
func HybridSelect(cv *Candidate, llmResult *Candidate) (Candidate, []string) {
	switch {
	case cv == nil && llmResult == nil:
		return Candidate{}, nil
	case llmResult == nil:
		return *cv, nil
	case cv == nil:
		return *llmResult, nil
	}

	maxArea := math.Max(cv.TotalSqft, llmResult.TotalSqft)
	if maxArea == 0 {
		return *cv, nil
	}
	relDiff := math.Abs(cv.TotalSqft-llmResult.TotalSqft) / maxArea

	switch {
	case relDiff < hybridRelDiffMinor:
		winner := moreConfident(cv, llmResult)
		out := *winner
		out.Method = models.MethodHybrid
		return out, []string{"cv and llm-vision measurements agree"}
	case relDiff < hybridRelDiffMajor:
		winner := moreConfident(cv, llmResult)
		out := *winner
		out.Method = models.MethodHybrid
		return out, []string{"minor discrepancy between cv and llm-vision measurements"}
	default:
		out := *llmResult
		out.Method = models.MethodHybrid
		return out, []string{"major discrepancy — manual review recommended"}
	}
}

func moreConfident(a, b *Candidate) *Candidate {
	if a.Confidence >= b.Confidence {
		return a
	}
	return b
}

// reconciliationRow is one row of the reconciliation thresholds table,
// kept as data (not branches) so each band is a single row.
type reconciliationRow struct {
	maxDiffPercent float64 // upper (exclusive) bound of this row's band; +Inf for the last row
	confidence     float64
	recommendation models.ReconciliationRecommendation
}

// reconciliationTable maps the OCR/blueprint difference to a verification
// confidence and a recommendation.
var reconciliationTable = []reconciliationRow{
	{maxDiffPercent: 5, confidence: 0.95, recommendation: models.RecommendUseBlueprint},
	{maxDiffPercent: 15, confidence: 0.80, recommendation: models.RecommendUseBlueprint},
	{maxDiffPercent: 30, confidence: 0.60, recommendation: models.RecommendManualReview},
	{maxDiffPercent: math.Inf(1), confidence: 0.30, recommendation: models.RecommendManualReview},
}

// VerifyMeasurements compares the OCR-derived total against the selected
// blueprint measurement and returns the verdict from reconciliationTable.
func VerifyMeasurements(ocrTotalSqft, blueprintTotalSqft float64) models.ReconciliationVerdict {
	maxTotal := math.Max(ocrTotalSqft, blueprintTotalSqft)
	var diffPercent float64
	if maxTotal > 0 {
		diffPercent = math.Abs(ocrTotalSqft-blueprintTotalSqft) / maxTotal * 100
	}

	row := reconciliationTable[len(reconciliationTable)-1]
	for _, r := range reconciliationTable {
		if diffPercent < r.maxDiffPercent {
			row = r
			break
		}
	}

	return models.ReconciliationVerdict{
		OCRTotalSqft:           ocrTotalSqft,
		BlueprintTotalSqft:     blueprintTotalSqft,
		DiffPercent:            diffPercent,
		VerificationConfidence: row.confidence,
		Recommendation:         row.recommendation,
	}
}
