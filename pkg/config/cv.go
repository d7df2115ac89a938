package config

// CVConfig holds the Roof Measurer's (C6) computer-vision tuning
// parameters.
type CVConfig struct {
	CannyLow        int     `yaml:"canny_low"`
	CannyHigh       int     `yaml:"canny_high"`
	MinContourArea  float64 `yaml:"min_contour_area"`
	AspectMin       float64 `yaml:"aspect_min"`
	AspectMax       float64 `yaml:"aspect_max"`
	SolidityMin     float64 `yaml:"solidity_min"`
}

// DefaultCVConfig returns the CV tuning defaults.
func DefaultCVConfig() *CVConfig {
	return &CVConfig{
		CannyLow:       50,
		CannyHigh:      150,
		MinContourArea: 400,
		AspectMin:      0.3,
		AspectMax:      3.0,
		SolidityMin:    0.6,
	}
}

// LLMVisionConfig holds the hybrid-measurement fallback threshold.
type LLMVisionConfig struct {
	ConfidenceFallbackThreshold float64 `yaml:"confidence_fallback_threshold"`
}

// DefaultLLMVisionConfig returns the default fallback threshold (0.7).
func DefaultLLMVisionConfig() *LLMVisionConfig {
	return &LLMVisionConfig{ConfidenceFallbackThreshold: 0.7}
}
