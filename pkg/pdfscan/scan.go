// Package pdfscan implements the structural PDF checks used by the file
// validator (C1): magic-byte detection and trailer scanning. The checks
// work against the raw byte stream; no full PDF parse is needed to decide
// whether an upload is structurally a PDF.
package pdfscan

import "bytes"

// Magic is the required PDF header prefix.
var Magic = []byte("%PDF-")

// trailerToken and startxrefToken are the trailing-window markers that
// together indicate a syntactically complete PDF.
var (
	trailerToken   = []byte("%%EOF")
	startxrefToken = []byte("startxref")
)

// HasMagic reports whether the given header bytes (at least 5 bytes) begin
// with the PDF magic.
func HasMagic(header []byte) bool {
	return bytes.HasPrefix(header, Magic)
}

// HasTrailer scans the trailing window of a PDF byte stream for a valid
// trailer: a startxref token followed later by %%EOF.
func HasTrailer(tail []byte) bool {
	xrefIdx := bytes.LastIndex(tail, startxrefToken)
	if xrefIdx == -1 {
		return false
	}
	eofIdx := bytes.LastIndex(tail, trailerToken)
	return eofIdx > xrefIdx
}

// TrailerWindowSize bounds how much of the tail of a streamed upload is
// buffered for the trailer scan, avoiding buffering the whole file.
const TrailerWindowSize = 4096
