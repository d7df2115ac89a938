package interpreter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brant/roofpipeline/pkg/llm"
	"github.com/brant/roofpipeline/pkg/models"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

type fakeCompleter struct {
	replies []string
	err     error
	calls   int
}

func (f *fakeCompleter) Complete(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeCompleter) CompleteVision(ctx context.Context, prompt string, _ []llm.Image) (string, error) {
	return f.Complete(ctx, prompt)
}

func newStage(fake *fakeCompleter) *Stage {
	return New(fake, 120*time.Second, 6000, 0)
}

const validReply = `{"roof_area_sqft": 1800, "material": "epdm", ` +
	`"complexity_factors": ["multiple penetrations"], "summary": "EPDM roof in fair condition", "confidence": 0.82}`

func TestRun_ValidFirstReply(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"Here is the analysis:\n" + validReply}}
	got, err := newStage(fake).Run(context.Background(), models.ExtractedContent{Text: "roof area 1,800 sq ft"})
	require.NoError(t, err)

	assert.Equal(t, 1800.0, got.RoofAreaSqft)
	assert.Equal(t, "epdm", got.Material)
	assert.Equal(t, []string{"multiple penetrations"}, got.ComplexityFactors)
	assert.InDelta(t, 0.82, got.Confidence, 1e-9)
	assert.Equal(t, 1, fake.calls, "no repair retry on a recoverable first reply")
}

func TestRun_RepairRetryRecovers(t *testing.T) {
	fake := &fakeCompleter{replies: []string{
		"I cannot express this as JSON, sorry.",
		validReply,
	}}
	got, err := newStage(fake).Run(context.Background(), models.ExtractedContent{Text: "some text"})
	require.NoError(t, err)

	assert.Equal(t, 2, fake.calls, "exactly one repair retry")
	assert.Equal(t, "epdm", got.Material)
}

func TestRun_DoubleParseFailureFallsBackDeterministically(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"not json", "still not json"}}
	content := models.ExtractedContent{
		Text: "ROOF AREA 1,800 SQ FT single-ply membrane in fair condition",
		OcrMeasurements: []models.OcrMeasurement{
			{ValueSqft: 1800, SourceSpan: "1,800 sq ft", Confidence: 0.85},
			{ValueSqft: 120, SourceSpan: "12' x 10'", Confidence: 0.6},
		},
		DomainMetadata: models.DomainMetadata{"project_number": "24-0012"},
	}

	got, err := newStage(fake).Run(context.Background(), content)
	require.NoError(t, err, "content ambiguity never raises")

	assert.Equal(t, 2, fake.calls)
	assert.Equal(t, "unknown", got.Material)
	assert.Equal(t, 1800.0, got.RoofAreaSqft, "largest OCR measurement seeds the fallback area")
	assert.InDelta(t, 0.1, got.Confidence, 1e-9)
	assert.Contains(t, got.Summary, "interpretation unavailable")
	assert.Equal(t, "24-0012", got.DomainMetadata["project_number"], "metadata passes through")
}

func TestRun_TransportErrorRaisesUpstream(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("dial tcp: connection refused")}
	_, err := newStage(fake).Run(context.Background(), models.ExtractedContent{Text: "text"})
	assert.ErrorIs(t, err, pipeline.ErrUpstream)
}

func TestRun_EmptyMaterialNormalizedToUnknown(t *testing.T) {
	fake := &fakeCompleter{replies: []string{`{"roof_area_sqft": 900, "material": "", "summary": "s", "confidence": 0.5}`}}
	got, err := newStage(fake).Run(context.Background(), models.ExtractedContent{Text: "t"})
	require.NoError(t, err)
	assert.Equal(t, "unknown", got.Material)
}

func TestBuildPrompt_TruncatesToBudget(t *testing.T) {
	stage := New(&fakeCompleter{}, time.Second, 100, 0)
	long := make([]byte, 10_000)
	for i := range long {
		long[i] = 'a'
	}
	prompt := stage.buildPrompt(models.ExtractedContent{Text: string(long)})
	assert.Less(t, len(prompt), 1000, "prompt stays bounded regardless of content size")
}
