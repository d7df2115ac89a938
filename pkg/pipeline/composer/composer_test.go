package composer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/models"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

func newStage() *Stage {
	return New(config.DefaultPricingConfig(), 10*time.Second)
}

func TestCompose_BlueprintHappyPath(t *testing.T) {
	// 2,500 sq ft at default pricing (8 + 4 per sqft), zero features.
	in := Input{
		Interpretation: models.Interpretation{Material: "tpo", Confidence: 0.9},
		Measurement: &models.RoofMeasurementResult{
			TotalAreaSqft: 2500,
			Method:        models.MethodCV,
			Confidence:    0.85,
		},
		StageConfidences: []float64{0.9, 0.8, 0.85, 0.9},
		StagesCompleted:  []string{"analyze", "extract", "measure", "interpret"},
		ElapsedSeconds:   42,
	}

	est, err := newStage().Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 2500.0, est.RoofAreaSqft)
	assert.Equal(t, 30000.00, est.EstimatedCost)
	assert.Empty(t, est.Warnings)
	assert.Equal(t, []string{"analyze", "extract", "measure", "interpret", "compose"}, est.StagesCompleted)
	assert.Equal(t, 42.0, est.ElapsedSeconds)
}

func TestCompose_AreaFallsBackToInterpretation(t *testing.T) {
	in := Input{
		Interpretation:   models.Interpretation{RoofAreaSqft: 1800, Material: "unknown", Confidence: 0.6},
		StageConfidences: []float64{0.6},
	}

	est, err := newStage().Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1800.0, est.RoofAreaSqft)
	require.NotEmpty(t, est.Warnings)
	assert.Contains(t, est.Warnings[0], "interpretation only")
}

func TestCompose_NoAreaAnywhere(t *testing.T) {
	_, err := newStage().Run(context.Background(), Input{
		Interpretation: models.Interpretation{Material: "unknown"},
	})
	assert.ErrorIs(t, err, pipeline.ErrInsufficientData)
}

// TestCompose_FeatureTable pins the feature-impact cost table: high adds
// +0.10 multiplier and +500 flat per count, medium +0.05/+200, low 0/+50.
func TestCompose_FeatureTable(t *testing.T) {
	tests := []struct {
		name     string
		features []models.RoofFeature
		wantCost float64
	}{
		{
			name:     "one high feature",
			features: []models.RoofFeature{{Kind: models.FeatureEquipment, Count: 1, Impact: models.ImpactHigh}},
			// 1000 * 12 * 1.10 + 500 = 13700
			wantCost: 13700.00,
		},
		{
			name:     "two medium features",
			features: []models.RoofFeature{{Kind: models.FeatureExhaustPort, Count: 2, Impact: models.ImpactMedium}},
			// 1000 * 12 * 1.10 + 400 = 13600
			wantCost: 13600.00,
		},
		{
			name:     "three low features add flat cost only",
			features: []models.RoofFeature{{Kind: models.FeatureWalkway, Count: 3, Impact: models.ImpactLow}},
			// 1000 * 12 * 1.0 + 150 = 12150
			wantCost: 12150.00,
		},
		{
			name: "mixed impacts",
			features: []models.RoofFeature{
				{Kind: models.FeatureEquipment, Count: 1, Impact: models.ImpactHigh},
				{Kind: models.FeatureDrain, Count: 2, Impact: models.ImpactMedium},
				{Kind: models.FeatureWalkway, Count: 1, Impact: models.ImpactLow},
			},
			// 1000 * 12 * (1 + 0.10 + 0.10) + (500 + 400 + 50) = 14400 + 950 = 15350
			wantCost: 15350.00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{
				Interpretation: models.Interpretation{Material: "tpo", Confidence: 0.9},
				Measurement: &models.RoofMeasurementResult{
					TotalAreaSqft: 1000,
					Features:      tt.features,
					Confidence:    0.9,
				},
				StageConfidences: []float64{0.9},
			}
			est, err := newStage().Run(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCost, est.EstimatedCost)
		})
	}
}

// Given identical inputs, outputs are byte-stable after rounding.
func TestCompose_Deterministic(t *testing.T) {
	in := Input{
		Interpretation: models.Interpretation{Material: "epdm", Confidence: 0.77},
		Measurement: &models.RoofMeasurementResult{
			TotalAreaSqft: 3333.33,
			Features: []models.RoofFeature{
				{Kind: models.FeatureDrain, Count: 3, Impact: models.ImpactMedium},
			},
			Confidence: 0.81,
		},
		StageConfidences: []float64{0.77, 0.81, 0.93},
		ElapsedSeconds:   9.5,
	}

	first, err := newStage().Run(context.Background(), in)
	require.NoError(t, err)
	second, err := newStage().Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCombinedConfidence(t *testing.T) {
	assert.InDelta(t, 0.72, combinedConfidence([]float64{0.9, 0.8}), 1e-9)
	assert.InDelta(t, 0.1, combinedConfidence([]float64{0.1, 0.2}), 1e-9, "clamped at lower bound")
	assert.InDelta(t, 0.99, combinedConfidence([]float64{1, 1, 1}), 1e-9, "clamped at upper bound")
	assert.InDelta(t, 0.5, combinedConfidence([]float64{0, 0.5}), 1e-9, "zero confidences are skipped")
	assert.InDelta(t, 0.1, combinedConfidence(nil), 1e-9, "no signal floors out")
}

func TestTimelineBand(t *testing.T) {
	noFeatures := []models.RoofFeature(nil)
	high := func(n int) []models.RoofFeature {
		return []models.RoofFeature{{Kind: models.FeatureEquipment, Count: n, Impact: models.ImpactHigh}}
	}

	tests := []struct {
		name     string
		area     float64
		features []models.RoofFeature
		want     string
	}{
		{"small simple roof", 1200, noFeatures, "2-4 days"},
		{"small roof with heavy equipment", 1200, high(3), "8-12 days"},
		{"mid-size", 4000, high(1), "4-6 days"},
		{"large", 12000, high(2), "6-8 days"},
		{"very large", 20000, noFeatures, "8-12 days"},
		{"many high features forces longest band", 800, high(5), "8-12 days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, timelineBand(tt.area, tt.features))
		})
	}
}
