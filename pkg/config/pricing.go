package config

// FeatureImpactRow is one row of the feature-impact cost table, kept as
// data so the runtime table and the test-suite table are the same
// definition.
type FeatureImpactRow struct {
	Impact               string  `yaml:"impact"`
	MultiplierPerCount    float64 `yaml:"multiplier_per_count"`
	FlatCostPerCount      float64 `yaml:"flat_cost_per_count"`
}

// PricingConfig holds the Estimate Composer's (C8) pricing table.
type PricingConfig struct {
	MaterialCostPerSqft float64            `yaml:"material_per_sqft"`
	LaborCostPerSqft    float64            `yaml:"labor_per_sqft"`
	FeatureTable        []FeatureImpactRow `yaml:"feature_table"`
}

// DefaultPricingConfig returns the built-in pricing defaults.
func DefaultPricingConfig() *PricingConfig {
	return &PricingConfig{
		MaterialCostPerSqft: 8.00,
		LaborCostPerSqft:    4.00,
		FeatureTable: []FeatureImpactRow{
			{Impact: "high", MultiplierPerCount: 0.10, FlatCostPerCount: 500},
			{Impact: "medium", MultiplierPerCount: 0.05, FlatCostPerCount: 200},
			{Impact: "low", MultiplierPerCount: 0, FlatCostPerCount: 50},
		},
	}
}

// StageTimeoutsConfig holds per-stage soft timeouts.
type StageTimeoutsConfig struct {
	AnalyzeSeconds   int `yaml:"analyze"`
	ExtractSeconds   int `yaml:"extract"`
	MeasureSeconds   int `yaml:"measure"`
	InterpretSeconds int `yaml:"interpret"`
	ComposeSeconds   int `yaml:"compose"`
}

// DefaultStageTimeouts returns the built-in stage-timeout defaults.
func DefaultStageTimeouts() *StageTimeoutsConfig {
	return &StageTimeoutsConfig{
		AnalyzeSeconds:   30,
		ExtractSeconds:   180,
		MeasureSeconds:   240,
		InterpretSeconds: 120,
		ComposeSeconds:   10,
	}
}
