package models

// RegionMeasurement is one per-region area measurement contributing to a
// RoofMeasurementResult's total.
type RegionMeasurement struct {
	AreaSqft   float64           `json:"area_sqft"`
	Method     MeasurementMethod `json:"method"`
	Confidence float64           `json:"confidence"`
	BBox       *BoundingBox      `json:"bbox,omitempty"`
}

// BoundingBox is a pixel-space rectangle on a rendered page.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// ReconciliationVerdict is C6's verify_measurements outcome, carried into the
// final Estimate's warnings when ManualReview is recommended.
type ReconciliationVerdict struct {
	OCRTotalSqft           float64                      `json:"ocr_total_sqft"`
	BlueprintTotalSqft     float64                      `json:"blueprint_total_sqft"`
	DiffPercent            float64                      `json:"diff_percent"`
	VerificationConfidence float64                      `json:"verification_confidence"`
	Recommendation         ReconciliationRecommendation `json:"recommendation"`
}

// RoofMeasurementResult is C6's output (blueprint branch only).
type RoofMeasurementResult struct {
	TotalAreaSqft  float64                `json:"total_area_sqft"`
	Regions        []RegionMeasurement    `json:"regions"`
	Features       []RoofFeature          `json:"features,omitempty"`
	Method         MeasurementMethod      `json:"method"`
	Confidence     float64                `json:"confidence"`
	Reconciliation *ReconciliationVerdict `json:"reconciliation,omitempty"`

	// Warnings carries hybrid-selection and reconciliation notes forward
	// into the final Estimate.
	Warnings []string `json:"warnings,omitempty"`
}

// Interpretation is C7's output.
type Interpretation struct {
	RoofAreaSqft      float64        `json:"roof_area_sqft"`
	Material          string         `json:"material"`
	ComplexityFactors []string       `json:"complexity_factors,omitempty"`
	Summary           string         `json:"summary"`
	Confidence        float64        `json:"confidence"`
	DomainMetadata    DomainMetadata `json:"domain_metadata,omitempty"`
}
