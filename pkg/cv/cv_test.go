package cv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/models"
)

func TestDetectScale_InchEqualsFeet(t *testing.T) {
	got := DetectScale(`ROOF PLAN  SCALE: 1" = 20'`, 300, false)
	require.True(t, got.Found)
	assert.InDelta(t, 15.0, got.PixelsPerFoot, 1e-9, "300 dpi / 20 feet per inch")
	assert.InDelta(t, 0.75, got.Confidence, 1e-9)
}

func TestDetectScale_FractionalInch(t *testing.T) {
	got := DetectScale(`SCALE: 1/8" = 1'-0"`, 300, false)
	require.True(t, got.Found)
	assert.InDelta(t, 37.5, got.PixelsPerFoot, 1e-9, "300 dpi / 8 feet per inch")
}

func TestDetectScale_ScaleBarBonus(t *testing.T) {
	without := DetectScale(`1" = 40'`, 300, false)
	with := DetectScale(`1" = 40'`, 300, true)
	require.True(t, without.Found)
	require.True(t, with.Found)
	assert.Greater(t, with.Confidence, without.Confidence)
	assert.InDelta(t, 0.90, with.Confidence, 1e-9)
}

func TestDetectScale_NotFound(t *testing.T) {
	got := DetectScale("general notes with no scale annotation", 300, false)
	assert.False(t, got.Found)
	assert.Zero(t, got.PixelsPerFoot)
}

// fill draws a filled rectangle of dark pixels onto a white raster.
func fill(r Raster, x0, y0, w, h int) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			r.Gray[y*r.W+x] = 0
		}
	}
}

func whiteRaster(w, h int) Raster {
	gray := make([]uint8, w*h)
	for i := range gray {
		gray[i] = 255
	}
	return Raster{W: w, H: h, Gray: gray}
}

func TestDetectBoundary_SingleRegion(t *testing.T) {
	r := whiteRaster(200, 200)
	fill(r, 20, 20, 100, 80) // 8000 px filled rectangle

	cfg := config.DefaultCVConfig()
	got := DetectBoundary(r, 10, cfg) // 10 px per foot -> 100 px^2 per sqft

	require.Len(t, got.Regions, 1)
	assert.InDelta(t, 80.0, got.Regions[0].AreaSqft, 1e-9)
	assert.InDelta(t, 80.0, got.TotalSqft, 1e-9)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9, "single clean region is the most confident case")
}

func TestDetectBoundary_FiltersBySizeAndAspect(t *testing.T) {
	r := whiteRaster(400, 200)
	fill(r, 10, 10, 15, 15)   // 225 px: below MinContourArea (400)
	fill(r, 50, 50, 200, 20)  // aspect 10: outside [0.3, 3.0]
	fill(r, 50, 100, 80, 60)  // survives

	got := DetectBoundary(r, 10, config.DefaultCVConfig())
	require.Len(t, got.Regions, 1)
	assert.InDelta(t, 48.0, got.Regions[0].AreaSqft, 1e-9)
}

func TestDetectBoundary_NoScaleYieldsZeroSqft(t *testing.T) {
	r := whiteRaster(200, 200)
	fill(r, 20, 20, 100, 80)

	got := DetectBoundary(r, 0, config.DefaultCVConfig())
	require.Len(t, got.Regions, 1)
	assert.Zero(t, got.Regions[0].AreaSqft, "pixel area cannot be converted without a scale")
	assert.Positive(t, got.Regions[0].AreaPixels)
}

func TestDetectFeatures_SmallRoundIsExhaustPort(t *testing.T) {
	r := whiteRaster(300, 300)
	fill(r, 40, 40, 25, 25)   // ~6.25 sqft at 10 px/ft: small, square-ish
	fill(r, 140, 40, 24, 26)  // another one

	got := DetectFeatures(r, 10, "")
	require.Len(t, got, 1)
	assert.Equal(t, models.FeatureExhaustPort, got[0].Kind)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, models.ImpactMedium, got[0].Impact)
}

func TestDetectFeatures_ElongatedIsWalkway(t *testing.T) {
	r := whiteRaster(400, 200)
	fill(r, 20, 20, 120, 10) // 12 sqft at 10 px/ft, aspect 12: elongated

	got := DetectFeatures(r, 10, "")
	require.Len(t, got, 1)
	assert.Equal(t, models.FeatureWalkway, got[0].Kind)
	assert.Equal(t, models.ImpactLow, got[0].Impact)
}

func TestDetectFeatures_LargeBlobWithKeywordIsEquipment(t *testing.T) {
	r := whiteRaster(400, 400)
	fill(r, 50, 50, 200, 150) // 300 sqft at 10 px/ft

	withKeyword := DetectFeatures(r, 10, "RTU-1 HVAC UNIT")
	require.Len(t, withKeyword, 1)
	assert.Equal(t, models.FeatureEquipment, withKeyword[0].Kind)
	assert.Equal(t, models.ImpactHigh, withKeyword[0].Impact)

	withoutKeyword := DetectFeatures(r, 10, "no annotations on this page")
	assert.Empty(t, withoutKeyword, "large blobs without call-out text are not equipment")
}

func TestDetectFeatures_NoScaleNoFeatures(t *testing.T) {
	r := whiteRaster(200, 200)
	fill(r, 20, 20, 30, 30)
	assert.Empty(t, DetectFeatures(r, 0, "HVAC"))
}

func TestOverallConfidence(t *testing.T) {
	found := ScaleResult{Found: true, Confidence: 0.75}
	boundary := BoundaryResult{Confidence: 0.9}

	assert.InDelta(t, 0.75, OverallConfidence(found, boundary), 1e-9, "minimum of the two")
	assert.InDelta(t, 0.45, OverallConfidence(ScaleResult{Found: false}, boundary), 1e-9, "missing scale halves boundary confidence")
}
