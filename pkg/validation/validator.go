// Package validation implements the File Validator (C1): bounded-size
// streaming reads, PDF magic/trailer checks, and filename sanitization.
package validation

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/brant/roofpipeline/pkg/pdfscan"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// MaxFilenameBytes is the maximum sanitized filename length.
const MaxFilenameBytes = 255

// DefaultMaxFileSizeBytes is the configurable size cap's default.
const DefaultMaxFileSizeBytes = 100 * 1024 * 1024

// AdminMaxFileSizeBytes is the upper admin ceiling.
const AdminMaxFileSizeBytes = 200 * 1024 * 1024

const chunkSize = 32 * 1024

// Result is the validated upload's canonical name and observed size.
type Result struct {
	CanonicalName string
	SizeBytes     int64
}

// Validate streams reader in bounded chunks, enforcing the size cap and the
// PDF magic/trailer checks, and returns the sanitized filename. It never
// reads the full body into memory at once.
//
// On TooLargeError or InvalidPdfError, callers are responsible for removing
// any partial file they wrote while streaming.
func Validate(reader io.Reader, declaredName string, maxSizeBytes int64) (Result, error) {
	if maxSizeBytes <= 0 {
		maxSizeBytes = DefaultMaxFileSizeBytes
	}

	br := bufio.NewReaderSize(reader, chunkSize)

	header := make([]byte, 5)
	n, err := io.ReadFull(br, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return Result{}, fmt.Errorf("%w: reading header: %v", pipeline.ErrInvalidPdf, err)
	}
	if n < 5 || !pdfscan.HasMagic(header[:n]) {
		return Result{}, fmt.Errorf("%w: missing PDF magic", pipeline.ErrInvalidPdf)
	}

	// Ring buffer of the last TrailerWindowSize bytes seen, for the trailer
	// scan once streaming completes.
	tail := make([]byte, 0, pdfscan.TrailerWindowSize*2)
	total := int64(n)

	buf := make([]byte, chunkSize)
	for {
		m, readErr := br.Read(buf)
		if m > 0 {
			total += int64(m)
			if total > maxSizeBytes {
				return Result{}, fmt.Errorf("%w: observed %d bytes exceeds cap %d", pipeline.ErrTooLarge, total, maxSizeBytes)
			}
			tail = appendBounded(tail, buf[:m], pdfscan.TrailerWindowSize)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Result{}, fmt.Errorf("%w: streaming read: %v", pipeline.ErrUpstream, readErr)
		}
	}

	if !pdfscan.HasTrailer(tail) {
		return Result{}, fmt.Errorf("%w: missing PDF trailer", pipeline.ErrInvalidPdf)
	}

	return Result{
		CanonicalName: SanitizeFilename(declaredName),
		SizeBytes:     total,
	}, nil
}

// appendBounded appends src to dst, keeping only the trailing window bytes.
func appendBounded(dst, src []byte, window int) []byte {
	dst = append(dst, src...)
	if len(dst) > window {
		dst = dst[len(dst)-window:]
	}
	return dst
}

// isSafeASCII reports whether r belongs to the sanitized-filename alphabet
// [A-Za-z0-9._-]. Everything else, non-ASCII letters included, is coerced.
func isSafeASCII(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	default:
		return false
	}
}

// SanitizeFilename strips path separators, control characters, and leading
// dots, coerces to the [A-Za-z0-9._-] alphabet, preserves the .pdf
// extension, and caps the result at MaxFilenameBytes UTF-8 bytes.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.TrimLeft(name, ".")

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsControl(r):
			continue
		case r == '/' || r == '\\':
			continue
		case isSafeASCII(r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	clean := b.String()
	if clean == "" {
		clean = "upload"
	}
	if !strings.HasSuffix(strings.ToLower(clean), ".pdf") {
		clean += ".pdf"
	}

	if len(clean) > MaxFilenameBytes {
		ext := ".pdf"
		base := clean[:len(clean)-len(ext)]
		maxBase := MaxFilenameBytes - len(ext)
		if maxBase < 0 {
			maxBase = 0
		}
		if len(base) > maxBase {
			base = base[:maxBase]
		}
		clean = base + ext
	}

	return clean
}
