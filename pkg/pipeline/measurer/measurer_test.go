package measurer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/llm"
	"github.com/brant/roofpipeline/pkg/models"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeCompleter) CompleteVision(_ context.Context, _ string, _ []llm.Image) (string, error) {
	f.calls++
	return f.reply, f.err
}

func newTestStage(fake *fakeCompleter) *Stage {
	return New(fake, config.DefaultCVConfig(), config.DefaultLLMVisionConfig(), 240*time.Second, 300)
}

const visionJSON = `{"roof_areas": [{"area_sqft": 2500, "confidence": 0.8, "material": "tpo"}], "overall_confidence": 0.8}`

func TestRun_LLMVisionFallbackWhenNoScale(t *testing.T) {
	fake := &fakeCompleter{reply: "Analysis:\n" + visionJSON}
	stage := newTestStage(fake)

	// No scale annotation, no page imagery: the CV path yields nothing and
	// the LLM-vision fallback carries the stage.
	got, err := stage.Run(context.Background(), Input{Content: models.ExtractedContent{
		Text: "general blueprint notes without a scale",
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, 2500.0, got.TotalAreaSqft)
	assert.Equal(t, models.MethodLLMVision, got.Method)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	assert.Nil(t, got.Reconciliation, "no OCR measurements, nothing to reconcile")
}

func TestRun_ReconciliationDisagreementFlagsManualReview(t *testing.T) {
	fake := &fakeCompleter{reply: visionJSON}
	stage := newTestStage(fake)

	got, err := stage.Run(context.Background(), Input{Content: models.ExtractedContent{
		Text: "total area 4,421 sq ft mentioned in the notes",
		OcrMeasurements: []models.OcrMeasurement{
			{ValueSqft: 4421, SourceSpan: "4,421 sq ft", Confidence: 0.85},
		},
	}})
	require.NoError(t, err)

	assert.Equal(t, 2500.0, got.TotalAreaSqft, "blueprint measurement stays authoritative")
	require.NotNil(t, got.Reconciliation)
	assert.Equal(t, models.RecommendManualReview, got.Reconciliation.Recommendation)
	assert.InDelta(t, 0.30, got.Reconciliation.VerificationConfidence, 1e-9)
	assert.Equal(t, 4421.0, got.Reconciliation.OCRTotalSqft)
	require.NotEmpty(t, got.Warnings)
	assert.Contains(t, got.Warnings[len(got.Warnings)-1], "manual review")
}

func TestRun_FallbackFailureWithNoCVSignalFailsStage(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("model overloaded")}
	stage := newTestStage(fake)

	_, err := stage.Run(context.Background(), Input{Content: models.ExtractedContent{
		Text: "no scale here",
	}})
	assert.Error(t, err)
}

func TestRun_UnparseableVisionReplyIsUpstream(t *testing.T) {
	fake := &fakeCompleter{reply: "I could not find any roof areas in the drawing."}
	stage := newTestStage(fake)

	_, err := stage.Run(context.Background(), Input{Content: models.ExtractedContent{
		Text: "no scale annotation",
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrUpstream) || errors.Is(err, pipeline.ErrInsufficientData))
}

func TestMergeFeatures(t *testing.T) {
	merged := mergeFeatures([]models.RoofFeature{
		{Kind: models.FeatureDrain, Count: 2, Impact: models.ImpactMedium},
		{Kind: models.FeatureWalkway, Count: 1, Impact: models.ImpactLow},
		{Kind: models.FeatureDrain, Count: 3, Impact: models.ImpactMedium},
	})
	require.Len(t, merged, 2)
	assert.Equal(t, models.FeatureDrain, merged[0].Kind)
	assert.Equal(t, 5, merged[0].Count)
	assert.Equal(t, models.FeatureWalkway, merged[1].Kind)
}
