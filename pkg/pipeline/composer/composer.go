// Package composer implements the Estimate Composer (C8): pricing,
// feature-driven complexity, timeline banding, and confidence combination.
package composer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/models"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// Input is C8's input: C7's Interpretation, C6's measurement (nil for
// non-blueprint documents), the non-zero confidences of every prior stage
// that ran, and bookkeeping the orchestrator wants echoed into the
// persisted Estimate.
type Input struct {
	Interpretation   models.Interpretation
	Measurement      *models.RoofMeasurementResult
	StageConfidences []float64
	StagesCompleted  []string
	ElapsedSeconds   float64
	Warnings         []string
}

// Stage implements pipeline.Stage[Input, models.Estimate].
type Stage struct {
	pricing *config.PricingConfig
	timeout time.Duration
}

// New builds the Estimate Composer stage.
func New(pricing *config.PricingConfig, timeout time.Duration) *Stage {
	return &Stage{pricing: pricing, timeout: timeout}
}

func (s *Stage) Name() string           { return "compose" }
func (s *Stage) Timeout() time.Duration { return s.timeout }

// Run implements pipeline.Stage.
func (s *Stage) Run(_ context.Context, in Input) (models.Estimate, error) {
	area, areaWarning := authoritativeArea(in.Interpretation, in.Measurement)
	if area <= 0 {
		return models.Estimate{}, fmt.Errorf("%w: neither roof measurement nor interpretation supplied a roof area", pipeline.ErrInsufficientData)
	}

	var features []models.RoofFeature
	if in.Measurement != nil {
		features = in.Measurement.Features
	}

	baseCost := area * (s.pricing.MaterialCostPerSqft + s.pricing.LaborCostPerSqft)
	multSum, flatSum := featureAdjustments(features, s.pricing.FeatureTable)
	adjustedCost := round2(baseCost*(1+multSum) + flatSum)

	materials := []models.Material{
		{Name: in.Interpretation.Material, Quantity: area, Unit: "sqft", UnitCost: s.pricing.MaterialCostPerSqft},
	}
	laborHours := round2(area / 150) // 150 sqft/hour baseline crew rate
	labor := models.LaborEstimate{
		Hours:    laborHours,
		Rate:     s.pricing.LaborCostPerSqft * 150,
		Subtotal: round2(area * s.pricing.LaborCostPerSqft),
	}

	warnings := append([]string{}, in.Warnings...)
	if areaWarning != "" {
		warnings = append(warnings, areaWarning)
	}

	confidence := combinedConfidence(in.StageConfidences)

	return models.Estimate{
		RoofAreaSqft:    area,
		EstimatedCost:   adjustedCost,
		Materials:       materials,
		Labor:           labor,
		Timeline:        timelineBand(area, features),
		Confidence:      confidence,
		Warnings:        warnings,
		StagesCompleted: append(in.StagesCompleted, "compose"),
		ElapsedSeconds:  in.ElapsedSeconds,
	}, nil
}

// authoritativeArea prefers the blueprint measurement's total when present,
// else the interpretation's roof area.
func authoritativeArea(interp models.Interpretation, measurement *models.RoofMeasurementResult) (float64, string) {
	if measurement != nil && measurement.TotalAreaSqft > 0 {
		return measurement.TotalAreaSqft, ""
	}
	if interp.RoofAreaSqft > 0 {
		return interp.RoofAreaSqft, "no roof measurement available; area derived from AI interpretation only"
	}
	return 0, ""
}

func featureAdjustments(features []models.RoofFeature, table []config.FeatureImpactRow) (float64, float64) {
	rowByImpact := make(map[string]config.FeatureImpactRow, len(table))
	for _, row := range table {
		rowByImpact[row.Impact] = row
	}

	var multSum, flatSum float64
	for _, f := range features {
		row, ok := rowByImpact[string(f.Impact)]
		if !ok {
			continue
		}
		multSum += row.MultiplierPerCount * float64(f.Count)
		flatSum += row.FlatCostPerCount * float64(f.Count)
	}
	return multSum, flatSum
}

// combinedConfidence is the product of non-zero stage confidences, clamped
// to [0.1, 0.99].
func combinedConfidence(confidences []float64) float64 {
	product := 1.0
	any := false
	for _, c := range confidences {
		if c <= 0 {
			continue
		}
		any = true
		product *= c
	}
	if !any {
		return 0.1
	}
	if product < 0.1 {
		return 0.1
	}
	if product > 0.99 {
		return 0.99
	}
	return product
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
