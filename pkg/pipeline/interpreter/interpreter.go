// Package interpreter implements the AI Interpreter (C7): constructs a
// bounded prompt from extracted content, asks the LLM for a strict JSON
// Interpretation, and never raises on content ambiguity.
package interpreter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brant/roofpipeline/pkg/jsonextract"
	"github.com/brant/roofpipeline/pkg/llm"
	"github.com/brant/roofpipeline/pkg/models"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// Stage implements pipeline.Stage[models.ExtractedContent, models.Interpretation].
type Stage struct {
	llmClient     llm.Completer
	timeout       time.Duration
	textBudget    int
	maxImageCount int
}

// New builds the AI Interpreter stage.
func New(llmClient llm.Completer, timeout time.Duration, textBudget, maxImageCount int) *Stage {
	return &Stage{llmClient: llmClient, timeout: timeout, textBudget: textBudget, maxImageCount: maxImageCount}
}

func (s *Stage) Name() string           { return "interpret" }
func (s *Stage) Timeout() time.Duration { return s.timeout }

type interpretationReply struct {
	RoofAreaSqft      float64  `json:"roof_area_sqft"`
	Material          string   `json:"material"`
	ComplexityFactors []string `json:"complexity_factors"`
	Summary           string   `json:"summary"`
	Confidence        float64  `json:"confidence"`
}

// Run implements pipeline.Stage: bounded prompt -> strict JSON -> one
// repair retry -> deterministic low-confidence fallback.
func (s *Stage) Run(ctx context.Context, content models.ExtractedContent) (models.Interpretation, error) {
	prompt := s.buildPrompt(content)
	images := visionImages(content.Images, s.maxImageCount)

	reply, err := s.complete(ctx, prompt, images)
	if err != nil {
		return models.Interpretation{}, err
	}

	parsed, parseErr := parseReply(reply)
	if parseErr == nil {
		return toInterpretation(parsed, content.DomainMetadata), nil
	}

	repairPrompt := prompt + "\n\nYour previous reply was not valid JSON. Respond with ONLY the JSON object, no other text."
	reply, err = s.complete(ctx, repairPrompt, images)
	if err != nil {
		return models.Interpretation{}, err
	}

	parsed, parseErr = parseReply(reply)
	if parseErr == nil {
		return toInterpretation(parsed, content.DomainMetadata), nil
	}

	return deterministicFallback(content), nil
}

func (s *Stage) complete(ctx context.Context, prompt string, images []llm.Image) (string, error) {
	var reply string
	var err error
	if len(images) > 0 {
		reply, err = s.llmClient.CompleteVision(ctx, prompt, images)
	} else {
		reply, err = s.llmClient.Complete(ctx, prompt)
	}
	if err != nil {
		return "", fmt.Errorf("%w: interpreter llm call: %v", pipeline.ErrUpstream, err)
	}
	return reply, nil
}

func parseReply(reply string) (interpretationReply, error) {
	var parsed interpretationReply
	err := jsonextract.Unmarshal(reply, &parsed)
	return parsed, err
}

func (s *Stage) buildPrompt(content models.ExtractedContent) string {
	text := content.Text
	if len(text) > s.textBudget {
		text = text[:s.textBudget]
	}

	var b strings.Builder
	b.WriteString("You are interpreting extracted content from a commercial roofing document. ")
	b.WriteString(`Respond with ONLY a JSON object matching {"roof_area_sqft": number, "material": string, `)
	b.WriteString(`"complexity_factors": [string], "summary": string, "confidence": number 0-1}.`)
	if len(content.DomainMetadata) > 0 {
		b.WriteString(" Known metadata: ")
		for _, k := range models.RecognizedMetadataKeys {
			if v, ok := content.DomainMetadata[k]; ok {
				fmt.Fprintf(&b, "%s=%s; ", k, v)
			}
		}
	}
	b.WriteString(" Extracted text follows:\n")
	b.WriteString(text)
	return b.String()
}

func visionImages(images []models.ExtractedImage, max int) []llm.Image {
	if max <= 0 || len(images) == 0 {
		return nil
	}
	n := max
	if n > len(images) {
		n = len(images)
	}
	out := make([]llm.Image, 0, n)
	for _, img := range images[:n] {
		if len(img.PNGBytes) == 0 {
			continue
		}
		out = append(out, llm.Image{MediaType: "image/png", Data: img.PNGBytes})
	}
	return out
}

func toInterpretation(r interpretationReply, metadata models.DomainMetadata) models.Interpretation {
	material := r.Material
	if material == "" {
		material = "unknown"
	}
	return models.Interpretation{
		RoofAreaSqft:      r.RoofAreaSqft,
		Material:          material,
		ComplexityFactors: r.ComplexityFactors,
		Summary:           r.Summary,
		Confidence:        clamp01(r.Confidence),
		DomainMetadata:    metadata,
	}
}

// deterministicFallback handles the second parse failure: never raise on
// content ambiguity, return a low-confidence Interpretation whose narrative
// is a deterministic summary of what was extracted.
func deterministicFallback(content models.ExtractedContent) models.Interpretation {
	var area float64
	for _, m := range content.OcrMeasurements {
		if m.ValueSqft > area {
			area = m.ValueSqft
		}
	}

	summary := "Automated interpretation unavailable; summary derived from extracted text only."
	if len(content.Text) > 0 {
		snippet := content.Text
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		summary = fmt.Sprintf("Automated interpretation unavailable. Extracted text begins: %q", strings.TrimSpace(snippet))
	}

	return models.Interpretation{
		RoofAreaSqft:      area,
		Material:          "unknown",
		ComplexityFactors: nil,
		Summary:           summary,
		Confidence:        0.1,
		DomainMetadata:    content.DomainMetadata,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
