package measurer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brant/roofpipeline/pkg/models"
)

// TestVerifyMeasurements_ThresholdTable pins the reconciliation verdict to
// the authoritative thresholds table: diff under 5% -> 0.95/use_blueprint,
// 5-15% -> 0.80/use_blueprint, 15-30% -> 0.60/manual_review, 30%+ ->
// 0.30/manual_review.
func TestVerifyMeasurements_ThresholdTable(t *testing.T) {
	tests := []struct {
		name           string
		ocrTotal       float64
		blueprintTotal float64
		wantConfidence float64
		wantRec        models.ReconciliationRecommendation
	}{
		{"exact agreement", 2500, 2500, 0.95, models.RecommendUseBlueprint},
		{"under 5 percent", 2500, 2400, 0.95, models.RecommendUseBlueprint},
		{"exactly 5 percent lands in second band", 2000, 1900, 0.80, models.RecommendUseBlueprint},
		{"10 percent", 2000, 1800, 0.80, models.RecommendUseBlueprint},
		{"exactly 15 percent lands in third band", 2000, 1700, 0.60, models.RecommendManualReview},
		{"25 percent", 2000, 1500, 0.60, models.RecommendManualReview},
		{"exactly 30 percent lands in last band", 2000, 1400, 0.30, models.RecommendManualReview},
		{"wild disagreement", 4421, 2500, 0.30, models.RecommendManualReview},
		{"ocr missing entirely treated as full diff", 0, 2500, 0.30, models.RecommendManualReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := VerifyMeasurements(tt.ocrTotal, tt.blueprintTotal)
			assert.Equal(t, tt.wantRec, v.Recommendation)
			assert.InDelta(t, tt.wantConfidence, v.VerificationConfidence, 1e-9)
			assert.Equal(t, tt.ocrTotal, v.OCRTotalSqft)
			assert.Equal(t, tt.blueprintTotal, v.BlueprintTotalSqft)
		})
	}
}

func TestVerifyMeasurements_DiffPercent(t *testing.T) {
	v := VerifyMeasurements(4421, 2500)
	// |4421-2500| / 4421 * 100 = 43.45...
	assert.InDelta(t, 43.45, v.DiffPercent, 0.01)
	assert.Equal(t, models.RecommendManualReview, v.Recommendation)
	assert.InDelta(t, 0.30, v.VerificationConfidence, 1e-9)
}

func TestVerifyMeasurements_BothZero(t *testing.T) {
	v := VerifyMeasurements(0, 0)
	assert.Zero(t, v.DiffPercent)
	assert.Equal(t, models.RecommendUseBlueprint, v.Recommendation)
}

func TestHybridSelect_SingleCandidate(t *testing.T) {
	cvOnly := &Candidate{TotalSqft: 2500, Method: models.MethodCV, Confidence: 0.8}
	got, warnings := HybridSelect(cvOnly, nil)
	assert.Equal(t, *cvOnly, got)
	assert.Empty(t, warnings)

	llmOnly := &Candidate{TotalSqft: 2600, Method: models.MethodLLMVision, Confidence: 0.6}
	got, _ = HybridSelect(nil, llmOnly)
	assert.Equal(t, *llmOnly, got)
}

func TestHybridSelect_Agreement(t *testing.T) {
	cvC := &Candidate{TotalSqft: 2500, Method: models.MethodCV, Confidence: 0.9}
	llmC := &Candidate{TotalSqft: 2550, Method: models.MethodLLMVision, Confidence: 0.7}

	got, warnings := HybridSelect(cvC, llmC)
	assert.Equal(t, 2500.0, got.TotalSqft, "more confident candidate wins")
	assert.Equal(t, models.MethodHybrid, got.Method)
	assert.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "agree")
}

func TestHybridSelect_MinorDiscrepancy(t *testing.T) {
	cvC := &Candidate{TotalSqft: 2500, Method: models.MethodCV, Confidence: 0.6}
	llmC := &Candidate{TotalSqft: 2800, Method: models.MethodLLMVision, Confidence: 0.8}

	got, warnings := HybridSelect(cvC, llmC)
	assert.Equal(t, 2800.0, got.TotalSqft, "more confident candidate wins in minor band")
	assert.Contains(t, warnings[0], "minor discrepancy")
}

func TestHybridSelect_MajorDiscrepancy(t *testing.T) {
	cvC := &Candidate{TotalSqft: 2500, Method: models.MethodCV, Confidence: 0.95}
	llmC := &Candidate{TotalSqft: 4000, Method: models.MethodLLMVision, Confidence: 0.5}

	got, warnings := HybridSelect(cvC, llmC)
	assert.Equal(t, 4000.0, got.TotalSqft, "llm result wins regardless of confidence in major band")
	assert.Contains(t, warnings[0], "manual review")
}

func TestHybridSelect_NoCandidates(t *testing.T) {
	got, warnings := HybridSelect(nil, nil)
	assert.Zero(t, got.TotalSqft)
	assert.Empty(t, warnings)
}
