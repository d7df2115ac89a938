package cv

import "github.com/brant/roofpipeline/pkg/config"

// darkThreshold separates roof-outline ink from white page background in
// the simplified raster model (see package doc on labelComponents).
const darkThreshold = 128

// BoundaryRegion is one filtered contour candidate, convertible to square
// feet once a scale ratio is known.
type BoundaryRegion struct {
	AreaPixels float64
	AreaSqft   float64
	Aspect     float64
	Solidity   float64
}

// BoundaryResult is the outcome of DetectBoundary.
type BoundaryResult struct {
	Regions    []BoundaryRegion
	TotalSqft  float64
	Confidence float64
}

// DetectBoundary finds roof-outline contours in the rendered page
// (grayscale threshold, connected components, then the area, aspect-ratio,
// and solidity filters) and converts the survivors to square feet using
// pixelsPerFoot.
func DetectBoundary(r Raster, pixelsPerFoot float64, cfg *config.CVConfig) BoundaryResult {
	comps := labelComponents(r, darkThreshold)

	var regions []BoundaryRegion
	for _, c := range comps {
		area := float64(c.area)
		if area < cfg.MinContourArea {
			continue
		}
		aspect := c.aspectRatio()
		if aspect < cfg.AspectMin || aspect > cfg.AspectMax {
			continue
		}
		solidity := c.solidity()
		if solidity < cfg.SolidityMin {
			continue
		}

		areaSqft := 0.0
		if pixelsPerFoot > 0 {
			areaSqft = area / (pixelsPerFoot * pixelsPerFoot)
		}

		regions = append(regions, BoundaryRegion{
			AreaPixels: area,
			AreaSqft:   areaSqft,
			Aspect:     aspect,
			Solidity:   solidity,
		})
	}

	var total float64
	for _, reg := range regions {
		total += reg.AreaSqft
	}

	return BoundaryResult{
		Regions:    regions,
		TotalSqft:  total,
		Confidence: boundaryConfidence(regions),
	}
}

// boundaryConfidence is a simple, monotonic function of how many regions
// survived filtering: zero survivors means no measurable boundary; a single
// clean region is the most confident case (unambiguous outline); many
// fragments suggests a noisy detection.
func boundaryConfidence(regions []BoundaryRegion) float64 {
	switch n := len(regions); {
	case n == 0:
		return 0
	case n == 1:
		return 0.9
	case n <= 3:
		return 0.75
	default:
		return 0.5
	}
}
