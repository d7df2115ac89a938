package measurer

import (
	"context"
	"fmt"
	"time"

	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/cv"
	"github.com/brant/roofpipeline/pkg/jsonextract"
	"github.com/brant/roofpipeline/pkg/llm"
	"github.com/brant/roofpipeline/pkg/models"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// Input is C6's input: the merged content C5 produced for a blueprint
// document, including the page images for the CV and LLM-vision passes.
// Those are the JPEG images embedded in the PDF; pages are not rendered,
// so a page without an embedded raster image gives these passes nothing.
type Input struct {
	Content models.ExtractedContent
}

// Stage implements pipeline.Stage[Input, models.RoofMeasurementResult].
type Stage struct {
	llmClient llm.Completer
	cvCfg     *config.CVConfig
	visionCfg *config.LLMVisionConfig
	timeout   time.Duration
	dpi       int
}

// New builds the Roof Measurer stage.
func New(llmClient llm.Completer, cvCfg *config.CVConfig, visionCfg *config.LLMVisionConfig, timeout time.Duration, dpi int) *Stage {
	return &Stage{llmClient: llmClient, cvCfg: cvCfg, visionCfg: visionCfg, timeout: timeout, dpi: dpi}
}

// Name implements pipeline.Stage.
func (s *Stage) Name() string { return "measure" }

// Timeout implements pipeline.Stage.
func (s *Stage) Timeout() time.Duration { return s.timeout }

// Run implements pipeline.Stage: the CV path, the LLM-vision fallback when
// warranted, hybrid selection, and OCR reconciliation.
func (s *Stage) Run(ctx context.Context, in Input) (models.RoofMeasurementResult, error) {
	cvCandidate, scaleFound := s.runCV(in.Content)

	var llmCandidate *Candidate
	needsFallback := !scaleFound || cvCandidate.Confidence < s.visionCfg.ConfidenceFallbackThreshold
	if needsFallback {
		c, err := s.runLLMVision(ctx, in.Content)
		if err != nil {
			// LLM-vision is a fallback, not the sole source; a transport
			// failure here degrades to CV-only rather than failing the stage,
			// unless CV itself produced nothing usable.
			if cvCandidate.TotalSqft == 0 {
				return models.RoofMeasurementResult{}, err
			}
		} else {
			llmCandidate = &c
		}
	}

	var cvPtr *Candidate
	if cvCandidate.TotalSqft > 0 || scaleFound {
		cvPtr = &cvCandidate
	}

	selected, warnings := HybridSelect(cvPtr, llmCandidate)
	if selected.TotalSqft == 0 && selected.Confidence == 0 {
		return models.RoofMeasurementResult{}, fmt.Errorf("%w: roof measurer produced no usable area", pipeline.ErrInsufficientData)
	}

	ocrTotal := sumOCRMeasurements(in.Content)
	var verdict *models.ReconciliationVerdict
	if ocrTotal > 0 {
		v := VerifyMeasurements(ocrTotal, selected.TotalSqft)
		verdict = &v
		if v.Recommendation == models.RecommendManualReview {
			warnings = append(warnings, "measurement reconciliation recommends manual review")
		}
	}

	return models.RoofMeasurementResult{
		TotalAreaSqft:  selected.TotalSqft,
		Regions:        selected.Regions,
		Features:       selected.Features,
		Method:         selected.Method,
		Confidence:     selected.Confidence,
		Reconciliation: verdict,
		Warnings:       warnings,
	}, nil
}

// runCV runs scale detection over the text, and boundary and feature
// detection over each page image C5 extracted into ExtractedImage.
func (s *Stage) runCV(content models.ExtractedContent) (Candidate, bool) {
	scale := cv.DetectScale(content.Text, s.dpi, false)

	var regions []models.RegionMeasurement
	var allFeatures []models.RoofFeature
	var boundaryConfidences []float64

	for _, img := range content.Images {
		raster := rasterize(img)
		boundary := cv.DetectBoundary(raster, scale.PixelsPerFoot, s.cvCfg)
		boundaryConfidences = append(boundaryConfidences, boundary.Confidence)

		for _, reg := range boundary.Regions {
			regions = append(regions, models.RegionMeasurement{
				AreaSqft:   reg.AreaSqft,
				Method:     models.MethodCV,
				Confidence: boundary.Confidence,
			})
		}

		allFeatures = append(allFeatures, cv.DetectFeatures(raster, scale.PixelsPerFoot, content.Text)...)
	}

	total := 0.0
	for _, r := range regions {
		total += r.AreaSqft
	}

	avgBoundaryConf := average(boundaryConfidences)
	overall := cv.OverallConfidence(scale, cv.BoundaryResult{Confidence: avgBoundaryConf})

	return Candidate{
		TotalSqft:  total,
		Regions:    regions,
		Features:   mergeFeatures(allFeatures),
		Method:     models.MethodCV,
		Confidence: overall,
	}, scale.Found
}

// visionReply mirrors the strict schema the vision prompt requests:
// {roof_areas: [{area_sqft, confidence, material?}], overall_confidence}.
type visionReply struct {
	RoofAreas []struct {
		AreaSqft   float64 `json:"area_sqft"`
		Confidence float64 `json:"confidence"`
		Material   string  `json:"material"`
	} `json:"roof_areas"`
	OverallConfidence float64 `json:"overall_confidence"`
}

func (s *Stage) runLLMVision(ctx context.Context, content models.ExtractedContent) (Candidate, error) {
	images := make([]llm.Image, 0, len(content.Images))
	for _, img := range content.Images {
		images = append(images, llm.Image{MediaType: "image/png", Data: img.PNGBytes})
	}

	prompt := `You are analyzing a commercial roofing blueprint. Return ONLY a JSON object ` +
		`matching this schema: {"roof_areas": [{"area_sqft": number, "confidence": number, ` +
		`"material": string}], "overall_confidence": number}. Do not include any other text.`

	reply, err := s.llmClient.CompleteVision(ctx, prompt, images)
	if err != nil {
		return Candidate{}, err
	}

	var parsed visionReply
	if err := jsonextract.Unmarshal(reply, &parsed); err != nil {
		return Candidate{}, fmt.Errorf("%w: parsing llm-vision reply: %v", pipeline.ErrUpstream, err)
	}

	var total float64
	var regions []models.RegionMeasurement
	for _, a := range parsed.RoofAreas {
		total += a.AreaSqft
		regions = append(regions, models.RegionMeasurement{
			AreaSqft: a.AreaSqft, Method: models.MethodLLMVision, Confidence: a.Confidence,
		})
	}

	return Candidate{
		TotalSqft:  total,
		Regions:    regions,
		Method:     models.MethodLLMVision,
		Confidence: parsed.OverallConfidence,
	}, nil
}

func sumOCRMeasurements(content models.ExtractedContent) float64 {
	var total float64
	for _, m := range content.OcrMeasurements {
		total += m.ValueSqft
	}
	return total
}

func average(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// mergeFeatures sums counts for features of the same kind detected across
// multiple pages.
func mergeFeatures(features []models.RoofFeature) []models.RoofFeature {
	byKind := make(map[models.FeatureKind]*models.RoofFeature)
	var order []models.FeatureKind
	for _, f := range features {
		if existing, ok := byKind[f.Kind]; ok {
			existing.Count += f.Count
			continue
		}
		cp := f
		byKind[f.Kind] = &cp
		order = append(order, f.Kind)
	}
	out := make([]models.RoofFeature, 0, len(order))
	for _, k := range order {
		out = append(out, *byKind[k])
	}
	return out
}

// rasterize converts a rendered page image into the cv package's Raster.
func rasterize(img models.ExtractedImage) cv.Raster {
	return cv.Raster{W: img.Width, H: img.Height, Gray: img.Gray}
}
