package cv

import (
	"strings"

	"github.com/brant/roofpipeline/pkg/models"
)

// circularityMin is the minimum bbox-fill ratio a small component needs to
// be treated as a Hough-circle-like detection rather
// than an arbitrary blob. A filled circle fills ~78.5% of its bounding
// square; comfortably below that still reads as round-ish at page DPI.
const circularityMin = 0.65

// smallFeatureMaxSqft and largeFeatureMinSqft bound the three feature size
// classes (exhaust_port/drain are small and round, walkway/equipment_pad
// are elongated, equipment is large and irregular).
const (
	smallFeatureMaxSqft  = 9.0
	largeFeatureMinSqft  = 25.0
)

// annotationKeywords are the text cues that promote a large irregular
// shape to an equipment detection.
var annotationKeywords = []string{"HVAC", "UNIT", "RTU", "CONDENSER"}

// DetectFeatures classifies filtered contours into RoofFeature candidates.
// annotationText is the merged OCR text of the page, used to disambiguate
// equipment call-outs from bare large blobs.
func DetectFeatures(r Raster, pixelsPerFoot float64, annotationText string) []models.RoofFeature {
	comps := labelComponents(r, darkThreshold)
	upperText := strings.ToUpper(annotationText)

	var exhaustOrDrain, walkwayOrPad, equipment int

	for _, c := range comps {
		if pixelsPerFoot <= 0 {
			continue
		}
		areaSqft := float64(c.area) / (pixelsPerFoot * pixelsPerFoot)
		if areaSqft < 0.5 {
			continue // too small to be a real feature, likely text/noise
		}

		switch {
		case areaSqft <= smallFeatureMaxSqft && c.solidity() >= circularityMin && nearSquare(c):
			exhaustOrDrain++
		case areaSqft <= largeFeatureMinSqft && (c.aspectRatio() >= 2.5 || c.aspectRatio() <= 0.4):
			walkwayOrPad++
		case areaSqft > largeFeatureMinSqft && hasAnyKeyword(upperText, annotationKeywords):
			equipment++
		}
	}

	var features []models.RoofFeature
	if exhaustOrDrain > 0 {
		features = append(features, models.RoofFeature{
			Kind: models.FeatureExhaustPort, Count: exhaustOrDrain, Impact: models.ImpactMedium,
		})
	}
	if walkwayOrPad > 0 {
		features = append(features, models.RoofFeature{
			Kind: models.FeatureWalkway, Count: walkwayOrPad, Impact: models.ImpactLow,
		})
	}
	if equipment > 0 {
		features = append(features, models.RoofFeature{
			Kind: models.FeatureEquipment, Count: equipment, Impact: models.ImpactHigh,
		})
	}
	return features
}

// nearSquare reports whether a component's bounding box aspect ratio is
// close enough to 1:1 to be consistent with a circular Hough-circle
// candidate rather than an elongated shape.
func nearSquare(c component) bool {
	a := c.aspectRatio()
	return a >= 0.7 && a <= 1.4
}

func hasAnyKeyword(haystack string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(haystack, k) {
			return true
		}
	}
	return false
}
