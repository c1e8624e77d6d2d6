package node

import (
	"regexp"
	"strconv"
)

// DefaultLabel is the label the node firmware writes in front of the drone
// class probability, e.g. "background: 0.58 drone: 0.42".
const DefaultLabel = "drone"

// Extractor pulls a single labelled decimal out of a free-form text field.
type Extractor struct {
	label string
	re    *regexp.Regexp
}

var defaultExtractor = NewExtractor(DefaultLabel)

// NewExtractor creates an extractor for "<label>:<optional spaces><decimal>".
func NewExtractor(label string) *Extractor {
	return &Extractor{
		label: label,
		re:    regexp.MustCompile(regexp.QuoteMeta(label) + `:\s*(\d+(?:\.\d+)?|\.\d+)`),
	}
}

// Label returns the label the extractor looks for.
func (e *Extractor) Label() string {
	return e.label
}

// Extract returns the first labelled value found in text. The boolean is
// false when the label is missing or not followed by a number.
func (e *Extractor) Extract(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}

	m := e.re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}

	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ExtractProbability runs the default "drone" extractor.
func ExtractProbability(text string) (float64, bool) {
	return defaultExtractor.Extract(text)
}
