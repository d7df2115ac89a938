package extractor

import (
	"bytes"
	"compress/zlib"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// streamPattern locates a PDF stream object's dictionary and payload. This
// is a deliberately simplified scanner, not a conforming PDF parser: the
// fast-text path works directly off the byte grammar rather than a
// cross-reference table. Encoded or garbage text simply fails to match and
// contributes nothing; the OCR pass covers those pages.
var streamPattern = regexp.MustCompile(`(?s)<<(.*?)>>\s*stream\r?\n(.*?)endstream`)

// textShowPattern matches "(...) Tj" and "[(...) ...] TJ" text-showing
// operators in a (decompressed) content stream.
var textShowPattern = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj|\[((?:[^\[\]]|\\.)*)\]\s*TJ`)

var literalInArray = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

// isEncrypted reports whether the PDF declares an /Encrypt dictionary in
// its trailer.
func isEncrypted(raw []byte) bool {
	return bytes.Contains(raw, []byte("/Encrypt"))
}

// extractFastText walks every stream object, decompresses FlateDecode
// payloads, and pulls text-showing operators out of the result. Non-text
// streams (images, fonts) simply fail to match textShowPattern and
// contribute nothing; that is the expected, inexpensive behavior of this
// simplified scanner.
func extractFastText(raw []byte) string {
	var out strings.Builder
	for _, m := range streamPattern.FindAllSubmatch(raw, -1) {
		dict, payload := m[1], m[2]
		content := payload
		if bytes.Contains(dict, []byte("/FlateDecode")) {
			if decoded, ok := inflate(payload); ok {
				content = decoded
			} else {
				continue
			}
		} else if bytes.Contains(dict, []byte("/DCTDecode")) || bytes.Contains(dict, []byte("/Image")) {
			continue // image stream, not text
		}
		appendShownText(&out, content)
	}
	return out.String()
}

func inflate(payload []byte) ([]byte, bool) {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, false
	}
	defer r.Close()
	decoded, err := io.ReadAll(r)
	if err != nil && len(decoded) == 0 {
		return nil, false
	}
	return decoded, true
}

func appendShownText(out *strings.Builder, content []byte) {
	for _, m := range textShowPattern.FindAllSubmatch(content, -1) {
		switch {
		case len(m[1]) > 0:
			out.Write(unescapePDFString(m[1]))
			out.WriteByte(' ')
		case len(m[2]) > 0:
			for _, lit := range literalInArray.FindAllSubmatch(m[2], -1) {
				out.Write(unescapePDFString(lit[1]))
			}
			out.WriteByte(' ')
		}
	}
}

func unescapePDFString(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == '\\' && i+1 < len(b) {
			i++
			switch b[i] {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, b[i])
			}
			continue
		}
		out = append(out, b[i])
	}
	return out
}

func parseFloatLoose(s string) (float64, bool) {
	cleaned := strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	return v, err == nil
}
