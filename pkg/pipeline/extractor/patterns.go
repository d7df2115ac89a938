package extractor

import "regexp"

// measurementPattern is one row of the measurement-candidate table.
// Represented as data, not branches, so new shapes are added as rows.
type measurementPattern struct {
	re         *regexp.Regexp
	valueGroup int
	confidence float64
	// toSqft converts the matched numeric value to square feet; nil means
	// the matched value is already in square feet.
	toSqft func(groups []string) (float64, bool)
}

var measurementPatterns = []measurementPattern{
	{
		// "12,500 sq ft" / "12500 SF" / "12500 square feet"
		re:         regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*(?:sq\.?\s*ft\.?|sf|square\s+feet)\b`),
		valueGroup: 1,
		confidence: 0.85,
	},
	{
		// "120' x 90'" rectangular dimension pair
		re:         regexp.MustCompile(`(\d+(?:\.\d+)?)\s*'\s*[xX×]\s*(\d+(?:\.\d+)?)\s*'`),
		valueGroup: 1,
		confidence: 0.6,
		toSqft: func(groups []string) (float64, bool) {
			l, err1 := parseFloatLoose(groups[1])
			w, err2 := parseFloatLoose(groups[2])
			if !err1 || !err2 {
				return 0, false
			}
			return l * w, true
		},
	},
}

// domainMetadataPattern is one row of the recognized-key pattern table.
// Keys must be members of models.RecognizedMetadataKeys.
type domainMetadataPattern struct {
	key string
	re  *regexp.Regexp
}

var domainMetadataPatterns = []domainMetadataPattern{
	{key: "project_number", re: regexp.MustCompile(`\b(\d{2}-\d{4})\b`)},
	{key: "store_number", re: regexp.MustCompile(`(?i)STORE\s*#?\s*(\d{3,6})`)},
	{key: "client_name", re: regexp.MustCompile(`(?i)CLIENT:?\s*([A-Za-z0-9 &.,'-]{3,60})`)},
	{key: "site_address", re: regexp.MustCompile(`(?i)(?:SITE ADDRESS|PROJECT ADDRESS):?\s*([A-Za-z0-9 ,.#-]{5,120})`)},
}
