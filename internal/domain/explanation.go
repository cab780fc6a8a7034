package domain

import (
	"slices"
	"strings"
)

// DescriptionUnavailable replaces a missing explanation text so that
// Description is never empty.
const DescriptionUnavailable = "unavailable"

// Term is a (word, value) pair from a feature's top positive or negative logits.
type Term struct {
	Word  string
	Value float64
}

// Histogram is a pair of equal-length sequences: bar positions (X) and bar heights (Y).
type Histogram struct {
	X []float64
	Y []float64
}

// NewHistogram builds a Histogram, returning the empty histogram when the
// two sides disagree in length.
func NewHistogram(x, y []float64) Histogram {
	if len(x) != len(y) || len(x) == 0 {
		return Histogram{X: []float64{}, Y: []float64{}}
	}
	return Histogram{X: x, Y: y}
}

// Len returns the number of bars.
func (h Histogram) Len() int { return len(h.X) }

// Valid reports whether both sides have the same length.
func (h Histogram) Valid() bool { return len(h.X) == len(h.Y) }

// FeatureExplanation is the canonical record produced from a lookup response.
type FeatureExplanation struct {
	Description        string
	SourceID           *string
	NegativeTerms      []Term
	PositiveTerms      []Term
	FrequencyHistogram Histogram
	LogitsHistogram    Histogram
}

// HasDescription reports whether the source data carried a real description.
func (f FeatureExplanation) HasDescription() bool {
	return f.Description != "" && f.Description != DescriptionUnavailable
}

// Source splits SourceID ("model/layer/index" or "layer/index").
func (f FeatureExplanation) Source() (modelID, layer, index string, ok bool) {
	if f.SourceID == nil {
		return "", "", "", false
	}
	parts := strings.Split(*f.SourceID, "/")
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2], true
	case 2:
		return "", parts[0], parts[1], true
	default:
		return "", "", "", false
	}
}

// Equal reports structural equality. It is used to check that a selected
// explanation belongs to a token's result set.
func (f FeatureExplanation) Equal(o FeatureExplanation) bool {
	if f.Description != o.Description {
		return false
	}
	if (f.SourceID == nil) != (o.SourceID == nil) {
		return false
	}
	if f.SourceID != nil && *f.SourceID != *o.SourceID {
		return false
	}
	return slices.Equal(f.NegativeTerms, o.NegativeTerms) &&
		slices.Equal(f.PositiveTerms, o.PositiveTerms) &&
		histEqual(f.FrequencyHistogram, o.FrequencyHistogram) &&
		histEqual(f.LogitsHistogram, o.LogitsHistogram)
}

func histEqual(a, b Histogram) bool {
	return slices.Equal(a.X, b.X) && slices.Equal(a.Y, b.Y)
}

// IndexOf returns the position of f in list, or -1.
func IndexOf(list []FeatureExplanation, f FeatureExplanation) int {
	for i := range list {
		if list[i].Equal(f) {
			return i
		}
	}
	return -1
}
