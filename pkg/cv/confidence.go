package cv

// missingScalePenalty is applied when no scale annotation was found at all.
const missingScalePenalty = 0.5

// OverallConfidence computes the CV path's combined confidence: the minimum
// of scale-confidence and boundary-confidence, down-weighted when scale
// detection failed entirely.
func OverallConfidence(scale ScaleResult, boundary BoundaryResult) float64 {
	if !scale.Found {
		return boundary.Confidence * missingScalePenalty
	}
	if scale.Confidence < boundary.Confidence {
		return scale.Confidence
	}
	return boundary.Confidence
}
