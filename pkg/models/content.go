package models

// ExtractedImage is a rendered page image held for downstream CV/LLM-vision
// consumers. Payload holds two encodings side by side: PNGBytes (for the
// LLM-vision adapter, which needs a real image container) and Gray (the
// decoded single-channel grayscale grid the cv package operates on
// directly, row-major, Width*Height bytes).
type ExtractedImage struct {
	PageIndex int     `json:"page_index"`
	PNGBytes  []byte  `json:"-"`
	Gray      []uint8 `json:"-"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	DPI       int     `json:"dpi"`
}

// OcrMeasurement is a measurement candidate recovered by pattern-matching
// over merged (fast-path + OCR) text.
type OcrMeasurement struct {
	ValueSqft  float64 `json:"value_sqft"`
	SourceSpan string  `json:"source_span"`
	Confidence float64 `json:"confidence"`
}

// Table is a rectangular block of text recovered from the document (e.g. a
// materials schedule or a line-item estimate table).
type Table struct {
	Rows [][]string `json:"rows"`
}

// RecognizedMetadataKeys is the bounded set of domain-metadata keys this
// system understands.
var RecognizedMetadataKeys = []string{
	"project_number",
	"store_number",
	"client_name",
	"site_address",
}

// DomainMetadata is a free-form mapping restricted, by convention, to
// RecognizedMetadataKeys. Unrecognized keys may still be present but are
// never relied upon by downstream stages.
type DomainMetadata map[string]string

// ExtractionMethod tags which code path produced ExtractedContent.Text.
type ExtractionMethod string

const (
	ExtractionFastText ExtractionMethod = "fast_text"
	ExtractionOCR      ExtractionMethod = "ocr"
	ExtractionMerged   ExtractionMethod = "merged"
)

// ExtractedContent is C5's output: the normalized, merged view of a document
// that all downstream stages consume.
type ExtractedContent struct {
	Text            string           `json:"text"`
	Images          []ExtractedImage `json:"images,omitempty"`
	OcrMeasurements []OcrMeasurement `json:"ocr_measurements,omitempty"`
	Tables          []Table          `json:"tables,omitempty"`
	Method          ExtractionMethod `json:"method"`
	Confidence      float64          `json:"confidence"`
	DomainMetadata  DomainMetadata   `json:"domain_metadata,omitempty"`
}
