package extractor

import (
	"fmt"
	"os"
	"regexp"

	"github.com/brant/roofpipeline/pkg/pipeline"
)

// PresniffResult is the cheap, local pre-scan of a downloaded document that
// feeds the Document Analyzer before any extraction stage runs: page count,
// the first bytes of extractable text, and a first-page thumbnail when the
// document embeds raster imagery.
type PresniffResult struct {
	PageCount    int
	SniffText    string
	FirstPagePNG []byte
}

// pagePattern counts page objects; \b keeps /Pages (the page-tree root)
// from matching.
var pagePattern = regexp.MustCompile(`/Type\s*/Page\b`)

// Presniff derives the analyzer's inputs from the file alone, without
// calling any external service. Errors are reported so the caller can
// degrade to filename-only classification rather than failing the job.
func Presniff(path string, maxTextBytes int) (PresniffResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PresniffResult{}, fmt.Errorf("%w: reading document for pre-scan: %v", pipeline.ErrUpstream, err)
	}

	text := extractFastText(raw)
	if maxTextBytes > 0 && len(text) > maxTextBytes {
		text = text[:maxTextBytes]
	}

	var firstPage []byte
	if imgs := extractImages(raw, 1); len(imgs) > 0 {
		firstPage = imgs[0].PNGBytes
	}

	return PresniffResult{
		PageCount:    countPages(raw),
		SniffText:    text,
		FirstPagePNG: firstPage,
	}, nil
}

func countPages(raw []byte) int {
	n := len(pagePattern.FindAll(raw, -1))
	if n == 0 {
		// No page objects recognized; a readable document still has at
		// least one page.
		n = 1
	}
	return n
}
