package validation

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brant/roofpipeline/pkg/pipeline"
)

// minimalPDF builds a syntactically acceptable PDF byte stream: magic
// header, filler body, startxref and %%EOF trailer tokens.
func minimalPDF(fillerBytes int) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	b.Write(bytes.Repeat([]byte("x"), fillerBytes))
	b.WriteString("\nstartxref\n12345\n%%EOF\n")
	return b.Bytes()
}

func TestValidate_AcceptsWellFormedPDF(t *testing.T) {
	data := minimalPDF(1024)
	result, err := Validate(bytes.NewReader(data), "site plan.pdf", 10*1024*1024)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), result.SizeBytes)
	assert.Equal(t, "site_plan.pdf", result.CanonicalName)
}

func TestValidate_RejectsMissingMagic(t *testing.T) {
	// A JPEG renamed to .pdf: starts with the JPEG SOI marker.
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0}, 64)...)
	_, err := Validate(bytes.NewReader(jpeg), "photo.pdf", 10*1024*1024)
	assert.ErrorIs(t, err, pipeline.ErrInvalidPdf)
}

func TestValidate_RejectsMissingTrailer(t *testing.T) {
	data := []byte("%PDF-1.7\nbody with no trailer tokens at all")
	_, err := Validate(bytes.NewReader(data), "doc.pdf", 10*1024*1024)
	assert.ErrorIs(t, err, pipeline.ErrInvalidPdf)
}

func TestValidate_RejectsEOFBeforeStartxref(t *testing.T) {
	data := []byte("%PDF-1.7\n%%EOF\nstartxref\n")
	_, err := Validate(bytes.NewReader(data), "doc.pdf", 10*1024*1024)
	assert.ErrorIs(t, err, pipeline.ErrInvalidPdf)
}

func TestValidate_EnforcesSizeCapDuringStreaming(t *testing.T) {
	data := minimalPDF(64 * 1024)
	_, err := Validate(bytes.NewReader(data), "big.pdf", 16*1024)
	assert.ErrorIs(t, err, pipeline.ErrTooLarge)
}

func TestValidate_TinyTruncatedStream(t *testing.T) {
	_, err := Validate(bytes.NewReader([]byte("%PD")), "doc.pdf", 1024)
	assert.ErrorIs(t, err, pipeline.ErrInvalidPdf)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "roof-plan.pdf", "roof-plan.pdf"},
		{"path traversal", "../../etc/passwd.pdf", "passwd.pdf"},
		{"leading dots", "...hidden.pdf", "hidden.pdf"},
		{"control characters", "plan\x00\x1f.pdf", "plan.pdf"},
		{"spaces and symbols coerced", "store #42 (north).pdf", "store__42__north_.pdf"},
		{"non-ascii letters coerced", "café-façade.pdf", "caf_-fa_ade.pdf"},
		{"missing extension appended", "blueprint", "blueprint.pdf"},
		{"empty becomes placeholder", "", "upload.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestSanitizeFilename_CapsLength(t *testing.T) {
	long := strings.Repeat("a", 400) + ".pdf"
	got := SanitizeFilename(long)
	assert.LessOrEqual(t, len(got), MaxFilenameBytes)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}
