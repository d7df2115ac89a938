// Package cv implements the Roof Measurer's (C6) computer-vision path:
// scale-annotation detection, boundary/contour area estimation, and
// roof-feature detection.
//
// The detection math works directly against a rendered-page pixel grid
// rather than wrapping a third-party CV engine. The boundary/contour and
// feature passes are deliberately simplified relative to a full OpenCV
// Canny+Hough pipeline: connected-component analysis over a thresholded
// raster stands in for edge detection plus contour-finding, which carries
// the same filtering contract (area, aspect ratio, solidity thresholds)
// without a from-scratch CV kernel. Hybrid selection and reconciliation in
// pkg/pipeline/measurer do the heavy lifting on top of these primitives.
package cv

import (
	"regexp"
	"strconv"
)

// scalePattern is one recognized scale-annotation regex and the function
// that converts its match into a pixels-per-foot ratio at a given DPI.
// Table-driven: new annotation shapes are added as rows, not branches.
type scalePattern struct {
	name    string
	re      *regexp.Regexp
	feetPer func(groups []string) float64 // physical feet represented by one drawn inch
}

// scalePatterns enumerates the recognized scale-annotation shapes:
// `1" = N'` and `SCALE: 1/M" = 1'-0"`.
var scalePatterns = []scalePattern{
	{
		name: `1_inch_equals_feet`,
		re:   regexp.MustCompile(`1\s*"\s*=\s*(\d+(?:\.\d+)?)\s*'`),
		feetPer: func(g []string) float64 {
			ft, _ := strconv.ParseFloat(g[1], 64)
			return ft
		},
	},
	{
		name: `fractional_inch_scale`,
		re:   regexp.MustCompile(`(?i)SCALE:?\s*1/(\d+(?:\.\d+)?)\s*"\s*=\s*1\s*'-?0?"?`),
		feetPer: func(g []string) float64 {
			denom, _ := strconv.ParseFloat(g[1], 64)
			if denom == 0 {
				return 0
			}
			return denom // 1/M" = 1' means one full inch represents M feet
		},
	},
}

// ScaleResult is the outcome of DetectScale.
type ScaleResult struct {
	PixelsPerFoot float64
	Confidence    float64
	MatchedText   string
	Found         bool
}

// scaleBarConfidenceBonus is added when a scale annotation match is near a
// scale-bar graphical primitive.
const scaleBarConfidenceBonus = 0.15

const baseScaleConfidence = 0.75

// DetectScale scans OCR'd page text for a recognized scale annotation and
// converts it to a pixels-per-foot ratio at the given render DPI.
// nearScaleBar indicates a short horizontal line was found directly under
// the matched annotation.
func DetectScale(ocrText string, dpi int, nearScaleBar bool) ScaleResult {
	for _, p := range scalePatterns {
		m := p.re.FindStringSubmatch(ocrText)
		if m == nil {
			continue
		}
		feetPerInch := p.feetPer(m)
		if feetPerInch <= 0 {
			continue
		}
		pixelsPerFoot := float64(dpi) / feetPerInch

		confidence := baseScaleConfidence
		if nearScaleBar {
			confidence += scaleBarConfidenceBonus
		}
		if confidence > 1 {
			confidence = 1
		}

		return ScaleResult{
			PixelsPerFoot: pixelsPerFoot,
			Confidence:    confidence,
			MatchedText:   m[0],
			Found:         true,
		}
	}
	return ScaleResult{Found: false}
}
