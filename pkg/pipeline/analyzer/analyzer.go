// Package analyzer implements the Document Analyzer (C4): classify a
// document's kind from a short LLM prompt, falling back to keyword
// heuristics when the model's reply is not strict JSON.
package analyzer

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

// Input is C4's input: the filename plus the page count, text sniff and
// optional first-page thumbnail produced by the extractor's lightweight
// pre-scan (extractor.Presniff).
type Input struct {
	Filename  string
	PageCount int
	FirstPage []byte // first-page thumbnail, PNG, optional
	SniffText string // first bytes of extractable text, optional
}

// Result is C4's output.
type Result struct {
	Kind       models.DocumentKind
	Confidence float64
}

// Stage implements pipeline.Stage[Input, Result].
type Stage struct {
	llmClient llm.Completer
	timeout   time.Duration
}

// New builds the Document Analyzer stage.
func New(llmClient llm.Completer, timeout time.Duration) *Stage {
	return &Stage{llmClient: llmClient, timeout: timeout}
}

func (s *Stage) Name() string           { return "analyze" }
func (s *Stage) Timeout() time.Duration { return s.timeout }

type classifyReply struct {
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
}

var validKinds = map[string]models.DocumentKind{
	"blueprint":         models.KindBlueprint,
	"inspection_report": models.KindInspectionReport,
	"existing_estimate": models.KindExistingEstimate,
	"photo":             models.KindPhoto,
	"unknown":           models.KindUnknown,
}

// Run implements pipeline.Stage: a bounded LLM prompt, strict-JSON parse,
// keyword fallback on a non-JSON reply.
func (s *Stage) Run(ctx context.Context, in Input) (Result, error) {
	prompt := buildPrompt(in)

	var reply string
	var err error
	if len(in.FirstPage) > 0 {
		reply, err = s.llmClient.CompleteVision(ctx, prompt, []llm.Image{{MediaType: "image/png", Data: in.FirstPage}})
	} else {
		reply, err = s.llmClient.Complete(ctx, prompt)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: analyzer llm call: %v", pipeline.ErrUpstream, err)
	}

	var parsed classifyReply
	if jsonErr := jsonextract.Unmarshal(reply, &parsed); jsonErr == nil {
		if kind, ok := validKinds[parsed.Kind]; ok {
			conf := parsed.Confidence
			if conf <= 0 {
				conf = 0.5
			}
			return Result{Kind: kind, Confidence: clamp01(conf)}, nil
		}
	}

	return keywordFallback(in.SniffText + " " + reply), nil
}

func buildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Classify this commercial roofing document. Respond with ONLY a JSON object ")
	b.WriteString(`matching {"kind": one of "blueprint"|"inspection_report"|"existing_estimate"|"photo"|"unknown", "confidence": number 0-1}.`)
	b.WriteString(fmt.Sprintf(" Filename: %s. Page count: %d.", in.Filename, in.PageCount))
	if in.SniffText != "" {
		snippet := in.SniffText
		if len(snippet) > 800 {
			snippet = snippet[:800]
		}
		b.WriteString(" First extracted text: ")
		b.WriteString(snippet)
	}
	return b.String()
}

// keywordHeuristics is the fallback table used when the model's reply isn't
// parseable JSON. Ordered: first matching row wins.
var keywordHeuristics = []struct {
	keywords []string
	kind     models.DocumentKind
}{
	{[]string{"SCALE:", "1\"=", "ROOF PLAN", "BLUEPRINT"}, models.KindBlueprint},
	{[]string{"INSPECTION", "CONDITION ASSESSMENT", "DEFICIENC"}, models.KindInspectionReport},
	{[]string{"ESTIMATE", "QUOTE", "PROPOSAL", "LINE ITEM"}, models.KindExistingEstimate},
	{[]string{"JPEG", "IMAGE CAPTURE", "PHOTO"}, models.KindPhoto},
}

func keywordFallback(text string) Result {
	upper := strings.ToUpper(text)
	for _, row := range keywordHeuristics {
		for _, kw := range row.keywords {
			if strings.Contains(upper, kw) {
				return Result{Kind: row.kind, Confidence: 0.4}
			}
		}
	}
	return Result{Kind: models.KindUnknown, Confidence: 0.2}
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
