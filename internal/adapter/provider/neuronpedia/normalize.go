package neuronpedia

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/heartmarshall/featurelens/internal/domain"
	"github.com/heartmarshall/featurelens/internal/provider"
)

// Payload keys produced by the search API.
const (
	keyDescription  = "description"
	keyNeuron       = "neuron"
	keyExplanations = "explanations"

	keyNegWords   = "neg_str"
	keyNegValues  = "neg_values"
	keyPosWords   = "pos_str"
	keyPosValues  = "pos_values"
	keyFreqX      = "freq_hist_data_bar_values"
	keyFreqY      = "freq_hist_data_bar_heights"
	keyLogitsX    = "logits_hist_data_bar_values"
	keyLogitsY    = "logits_hist_data_bar_heights"
	keyModelID    = "modelId"
	keyLayer      = "layer"
	keyFeatureIdx = "index"
)

// payloadPath locates the list of result elements inside a payload.
type payloadPath struct {
	name    string
	extract func(payload any) ([]any, bool)
}

// payloadPaths is probed in order; the first match wins.
var payloadPaths = []payloadPath{
	{name: "described object", extract: describedObject},
	{name: "results", extract: listUnder("results")},
	{name: "result", extract: listUnder("result")},
	{name: "explanations", extract: listUnder(keyExplanations)},
	{name: "bare list", extract: bareList},
	{name: "neuron object", extract: neuronObject},
}

// descriptionPath locates the description value(s) of one element. A match
// yields one record per returned value.
type descriptionPath struct {
	name    string
	extract func(element, neuron map[string]any) ([]any, bool)
}

// descriptionPaths is probed in order per element; the first match wins.
var descriptionPaths = []descriptionPath{
	{name: "element description", extract: func(el, _ map[string]any) ([]any, bool) {
		return usableDescription(el)
	}},
	{name: "neuron description", extract: func(_, neuron map[string]any) ([]any, bool) {
		return usableDescription(neuron)
	}},
	{name: "neuron explanations", extract: func(_, neuron map[string]any) ([]any, bool) {
		return explanationList(neuron)
	}},
	{name: "element explanations", extract: func(el, _ map[string]any) ([]any, bool) {
		return explanationList(el)
	}},
}

// Normalize converts the payload of a lookup response into canonical records.
func Normalize(raw provider.RawResponse) []domain.FeatureExplanation {
	return NormalizePayload(raw.Payload)
}

// NormalizePayload converts a payload of unknown shape into canonical
// records. It never fails: unusable input yields an empty or partial result.
// Input order is preserved and nothing is deduplicated.
func NormalizePayload(payload any) []domain.FeatureExplanation {
	out := []domain.FeatureExplanation{}

	var elements []any
	for _, p := range payloadPaths {
		if found, ok := p.extract(payload); ok {
			elements = found
			break
		}
	}

	for _, raw := range elements {
		el, ok := asObject(raw)
		if !ok {
			continue
		}
		out = append(out, explainElement(el)...)
	}
	return out
}

// explainElement expands one result element into one or more records that
// share the element's statistics.
func explainElement(el map[string]any) []domain.FeatureExplanation {
	neuron, _ := asObject(el[keyNeuron])

	stats := el
	if neuron != nil {
		stats = neuron
	}
	base := domain.FeatureExplanation{
		Description:        domain.DescriptionUnavailable,
		SourceID:           sourceID(el, neuron),
		NegativeTerms:      terms(stats, keyNegWords, keyNegValues),
		PositiveTerms:      terms(stats, keyPosWords, keyPosValues),
		FrequencyHistogram: histogram(stats, keyFreqX, keyFreqY),
		LogitsHistogram:    histogram(stats, keyLogitsX, keyLogitsY),
	}

	for _, p := range descriptionPaths {
		descs, ok := p.extract(el, neuron)
		if !ok {
			continue
		}
		records := make([]domain.FeatureExplanation, 0, len(descs))
		for _, d := range descs {
			rec := base
			rec.Description = descriptionText(d)
			records = append(records, rec)
		}
		return records
	}

	return []domain.FeatureExplanation{base}
}

// ---------------------------------------------------------------------------
// Payload paths
// ---------------------------------------------------------------------------

func describedObject(payload any) ([]any, bool) {
	obj, ok := asObject(payload)
	if !ok {
		return nil, false
	}
	if _, isString := obj[keyDescription].(string); !isString {
		return nil, false
	}
	return []any{obj}, true
}

// listUnder matches a list stored under key. A single object under key is
// treated as a one-element list; null and scalars count as absent.
func listUnder(key string) func(any) ([]any, bool) {
	return func(payload any) ([]any, bool) {
		obj, ok := asObject(payload)
		if !ok {
			return nil, false
		}
		switch v := obj[key].(type) {
		case []any:
			return v, true
		case map[string]any:
			return []any{v}, true
		default:
			return nil, false
		}
	}
}

func bareList(payload any) ([]any, bool) {
	list, ok := payload.([]any)
	return list, ok
}

func neuronObject(payload any) ([]any, bool) {
	obj, ok := asObject(payload)
	if !ok {
		return nil, false
	}
	if _, ok := asObject(obj[keyNeuron]); !ok {
		return nil, false
	}
	return []any{obj}, true
}

// ---------------------------------------------------------------------------
// Description paths
// ---------------------------------------------------------------------------

func usableDescription(obj map[string]any) ([]any, bool) {
	if obj == nil {
		return nil, false
	}
	s, ok := obj[keyDescription].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, false
	}
	return []any{s}, true
}

// explanationList returns the description values of a non-empty
// explanations list. Items may be objects carrying a description or bare
// strings; anything else yields the unavailable sentinel.
func explanationList(obj map[string]any) ([]any, bool) {
	if obj == nil {
		return nil, false
	}
	list, ok := obj[keyExplanations].([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	descs := make([]any, len(list))
	for i, item := range list {
		if exp, ok := asObject(item); ok {
			descs[i] = exp[keyDescription]
			continue
		}
		descs[i] = item
	}
	return descs, true
}

func descriptionText(v any) string {
	s, ok := v.(string)
	if !ok {
		return domain.DescriptionUnavailable
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.DescriptionUnavailable
	}
	return s
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

// terms pairs words with values. The whole pair is dropped when either side
// is missing, the lengths differ, or any item has the wrong type.
func terms(obj map[string]any, wordsKey, valuesKey string) []domain.Term {
	empty := []domain.Term{}

	words, ok := obj[wordsKey].([]any)
	if !ok {
		return empty
	}
	values, ok := obj[valuesKey].([]any)
	if !ok || len(words) != len(values) {
		return empty
	}

	out := make([]domain.Term, 0, len(words))
	for i := range words {
		w, ok := words[i].(string)
		if !ok {
			return empty
		}
		v, ok := asNumber(values[i])
		if !ok {
			return empty
		}
		out = append(out, domain.Term{Word: w, Value: v})
	}
	return out
}

// histogram reads bar positions (x) and heights (y). A malformed or
// mismatched pair yields the empty histogram.
func histogram(obj map[string]any, xKey, yKey string) domain.Histogram {
	x, okX := numbers(obj[xKey])
	y, okY := numbers(obj[yKey])
	if !okX || !okY {
		return domain.NewHistogram(nil, nil)
	}
	return domain.NewHistogram(x, y)
}

func numbers(v any) ([]float64, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(list))
	for _, item := range list {
		f, ok := asNumber(item)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// ---------------------------------------------------------------------------
// Source identity
// ---------------------------------------------------------------------------

// sourceID builds "model/layer/index" (or "layer/index") from the element,
// falling back to the neuron object for each part.
func sourceID(el, neuron map[string]any) *string {
	pick := func(key string) string {
		if s := scalarText(el[key]); s != "" {
			return s
		}
		if neuron != nil {
			return scalarText(neuron[key])
		}
		return ""
	}

	layer, index := pick(keyLayer), pick(keyFeatureIdx)
	if layer == "" || index == "" {
		return nil
	}

	id := layer + "/" + index
	if model := pick(keyModelID); model != "" {
		id = model + "/" + id
	}
	return &id
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		// Integral values outside the int64 range keep their float form.
		if t == math.Trunc(t) && math.Abs(t) < 1<<63 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// ---------------------------------------------------------------------------
// Type helpers
// ---------------------------------------------------------------------------

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

func asNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
