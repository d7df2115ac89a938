// Package extractor implements the Content Extractor (C5): fast-text PDF
// parsing merged with an OCR pass, page image extraction, measurement
// candidate recognition, and domain-metadata extraction, all table-driven.
package extractor

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/brant/roofpipeline/pkg/models"
	"github.com/brant/roofpipeline/pkg/ocr"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// Input is C5's input: the path of the already-downloaded document and the
// kind C4 assigned. Run does not read Kind: every kind gets the same OCR
// pass over the embedded page images at their native resolution, and the
// same pattern tables.
type Input struct {
	FilePath string
	Kind     models.DocumentKind
}

// Stage implements pipeline.Stage[Input, models.ExtractedContent].
type Stage struct {
	ocrClient *ocr.Client
	timeout   time.Duration
	maxImages int
}

// New builds the Content Extractor stage.
func New(ocrClient *ocr.Client, timeout time.Duration, maxImages int) *Stage {
	return &Stage{ocrClient: ocrClient, timeout: timeout, maxImages: maxImages}
}

func (s *Stage) Name() string           { return "extract" }
func (s *Stage) Timeout() time.Duration { return s.timeout }

// Deterministic errors, not retried: wrap pipeline.ErrInvalidPdf
// so pipeline.Retryable classifies them as terminal.
var (
	ErrEmptyPdf          = fmt.Errorf("%w: empty pdf", pipeline.ErrInvalidPdf)
	ErrPasswordProtected = fmt.Errorf("%w: password protected", pipeline.ErrInvalidPdf)
	ErrUnreadablePage    = fmt.Errorf("%w: all pages unreadable", pipeline.ErrInvalidPdf)
)

// Run implements pipeline.Stage. Temporary files live under a per-call
// scratch directory removed on every exit path, including errors.
func (s *Stage) Run(ctx context.Context, in Input) (models.ExtractedContent, error) {
	scratch, err := os.MkdirTemp("", "roofpipeline-extract-*")
	if err != nil {
		return models.ExtractedContent{}, fmt.Errorf("%w: creating scratch dir: %v", pipeline.ErrInternal, err)
	}
	defer os.RemoveAll(scratch)

	raw, err := os.ReadFile(in.FilePath)
	if err != nil {
		return models.ExtractedContent{}, fmt.Errorf("%w: reading document: %v", pipeline.ErrUpstream, err)
	}
	if len(raw) == 0 {
		return models.ExtractedContent{}, ErrEmptyPdf
	}
	if isEncrypted(raw) {
		return models.ExtractedContent{}, ErrPasswordProtected
	}

	fastText := extractFastText(raw)
	images := extractImages(raw, s.maxImages)

	ocrText, ocrErr := s.runOCR(ctx, images)
	if ocrErr != nil && fastText == "" && len(images) == 0 {
		return models.ExtractedContent{}, ErrUnreadablePage
	}

	mergedText := strings.TrimSpace(fastText + "\n" + ocrText)
	if mergedText == "" && len(images) == 0 {
		return models.ExtractedContent{}, ErrUnreadablePage
	}

	method := models.ExtractionMerged
	switch {
	case fastText == "" && ocrText != "":
		method = models.ExtractionOCR
	case fastText != "" && ocrText == "":
		method = models.ExtractionFastText
	}

	measurements := scanMeasurements(mergedText)
	metadata := scanDomainMetadata(mergedText)
	tables := scanTables(mergedText)

	return models.ExtractedContent{
		Text:            mergedText,
		Images:          images,
		OcrMeasurements: measurements,
		Tables:          tables,
		Method:          method,
		Confidence:      confidenceFor(fastText, ocrText, images, ocrErr),
		DomainMetadata:  metadata,
	}, nil
}

// runOCR merges OCR text across all extracted page images. A per-image OCR
// failure is recorded but does not abort the merge; the caller decides
// whether the combined signal is sufficient.
func (s *Stage) runOCR(ctx context.Context, images []models.ExtractedImage) (string, error) {
	if s.ocrClient == nil || len(images) == 0 {
		return "", nil
	}
	var b strings.Builder
	var lastErr error
	for _, img := range images {
		result, err := s.ocrClient.Ocr(ctx, img.PNGBytes)
		if err != nil {
			lastErr = fmt.Errorf("%w: ocr pass: %v", pipeline.ErrUpstream, err)
			continue
		}
		b.WriteString(result.Text)
		b.WriteByte('\n')
	}
	return b.String(), lastErr
}

func scanMeasurements(text string) []models.OcrMeasurement {
	var out []models.OcrMeasurement
	for _, p := range measurementPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			var sqft float64
			var ok bool
			if p.toSqft != nil {
				sqft, ok = p.toSqft(m)
			} else {
				sqft, ok = parseFloatLoose(m[p.valueGroup])
			}
			if !ok || sqft <= 0 {
				continue
			}
			out = append(out, models.OcrMeasurement{
				ValueSqft:  sqft,
				SourceSpan: m[0],
				Confidence: p.confidence,
			})
		}
	}
	return out
}

func scanDomainMetadata(text string) models.DomainMetadata {
	metadata := models.DomainMetadata{}
	for _, p := range domainMetadataPatterns {
		if m := p.re.FindStringSubmatch(text); len(m) > 1 {
			metadata[p.key] = strings.TrimSpace(m[1])
		}
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

// tableLinePattern is a coarse heuristic for schedule/line-item tables:
// three or more columns separated by runs of whitespace or a pipe.
var tableLinePattern = regexp.MustCompile(`\s{2,}|\|`)

func scanTables(text string) []models.Table {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		cols := tableLinePattern.Split(strings.TrimSpace(line), -1)
		if len(cols) >= 3 {
			rows = append(rows, cols)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return []models.Table{{Rows: rows}}
}

func confidenceFor(fastText, ocrText string, images []models.ExtractedImage, ocrErr error) float64 {
	conf := 0.3
	if fastText != "" {
		conf += 0.3
	}
	if ocrText != "" {
		conf += 0.25
	}
	if len(images) > 0 {
		conf += 0.1
	}
	if ocrErr != nil {
		conf -= 0.15
	}
	if conf > 0.95 {
		conf = 0.95
	}
	if conf < 0.1 {
		conf = 0.1
	}
	return conf
}
