package neuronpedia

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/featurelens/internal/domain"
	"github.com/heartmarshall/featurelens/internal/provider"
)

// decode parses a JSON fixture the way the client does.
func decode(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func descriptions(exps []domain.FeatureExplanation) []string {
	out := make([]string, len(exps))
	for i, e := range exps {
		out[i] = e.Description
	}
	return out
}

func TestNormalize_FrogsExample(t *testing.T) {
	t.Parallel()

	raw := provider.RawResponse{
		Token:   "Frogs",
		Payload: decode(t, `{"results":[{"description":"amphibian concept","neuron":{"pos_str":["toad"],"pos_values":[0.9]}}]}`),
	}

	exps := Normalize(raw)
	require.Len(t, exps, 1)
	assert.Equal(t, "amphibian concept", exps[0].Description)
	assert.Equal(t, []domain.Term{{Word: "toad", Value: 0.9}}, exps[0].PositiveTerms)
	assert.NotNil(t, exps[0].NegativeTerms)
	assert.Empty(t, exps[0].NegativeTerms)
	assert.Equal(t, 0, exps[0].FrequencyHistogram.Len())
	assert.Nil(t, exps[0].SourceID)
}

func TestNormalize_TopLevelDescription(t *testing.T) {
	t.Parallel()

	exps := NormalizePayload(decode(t, `{"description":"capital letters","results":[{"description":"ignored"}]}`))
	require.Len(t, exps, 1)
	assert.Equal(t, "capital letters", exps[0].Description)
	assert.True(t, exps[0].HasDescription())
}

func TestNormalize_NeuronExplanationsShareStatistics(t *testing.T) {
	t.Parallel()

	payload := decode(t, `{"results":[{
		"modelId":"gemma-2-2b","layer":"20-gemmascope-res-16k","index":"1234",
		"neuron":{
			"explanations":[{"description":"first"},{"description":"second"},"third",{"description":null}],
			"neg_str":["a","b"],"neg_values":[-1.5,-0.5],
			"pos_str":["c"],"pos_values":[2],
			"freq_hist_data_bar_values":[0.1,0.2],"freq_hist_data_bar_heights":[10,20],
			"logits_hist_data_bar_values":[-1,0,1],"logits_hist_data_bar_heights":[3,4,5]
		}
	}]}`)

	exps := NormalizePayload(payload)
	require.Len(t, exps, 4)
	assert.Equal(t, []string{"first", "second", "third", domain.DescriptionUnavailable}, descriptions(exps))

	for _, e := range exps[1:] {
		assert.Equal(t, exps[0].NegativeTerms, e.NegativeTerms)
		assert.Equal(t, exps[0].PositiveTerms, e.PositiveTerms)
		assert.Equal(t, exps[0].FrequencyHistogram, e.FrequencyHistogram)
		assert.Equal(t, exps[0].LogitsHistogram, e.LogitsHistogram)
		assert.Equal(t, exps[0].SourceID, e.SourceID)
	}

	assert.Equal(t, []domain.Term{{Word: "a", Value: -1.5}, {Word: "b", Value: -0.5}}, exps[0].NegativeTerms)
	assert.Equal(t, []domain.Term{{Word: "c", Value: 2}}, exps[0].PositiveTerms)
	assert.Equal(t, []float64{0.1, 0.2}, exps[0].FrequencyHistogram.X)
	assert.Equal(t, []float64{10, 20}, exps[0].FrequencyHistogram.Y)
	assert.Equal(t, 3, exps[0].LogitsHistogram.Len())
	require.NotNil(t, exps[0].SourceID)
	assert.Equal(t, "gemma-2-2b/20-gemmascope-res-16k/1234", *exps[0].SourceID)
}

func TestNormalize_MismatchedPairsDropped(t *testing.T) {
	t.Parallel()

	payload := decode(t, `{"results":[{"description":"d","neuron":{
		"neg_str":["a","b","c"],"neg_values":[1,2],
		"pos_str":["x",7],"pos_values":[1,2],
		"freq_hist_data_bar_values":[1,2,3],"freq_hist_data_bar_heights":[1],
		"logits_hist_data_bar_values":[1,"two"],"logits_hist_data_bar_heights":[1,2]
	}}]}`)

	exps := NormalizePayload(payload)
	require.Len(t, exps, 1)
	assert.Empty(t, exps[0].NegativeTerms)
	assert.Empty(t, exps[0].PositiveTerms)
	assert.Equal(t, 0, exps[0].FrequencyHistogram.Len())
	assert.True(t, exps[0].FrequencyHistogram.Valid())
	assert.Equal(t, 0, exps[0].LogitsHistogram.Len())
}

func TestNormalize_PayloadShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{name: "results list", payload: `{"results":[{"description":"a"},{"description":"b"}]}`, want: []string{"a", "b"}},
		{name: "result list", payload: `{"result":[{"description":"a"}]}`, want: []string{"a"}},
		{name: "top-level explanations", payload: `{"explanations":[{"description":"a"}]}`, want: []string{"a"}},
		{name: "results wins over result", payload: `{"result":[{"description":"r"}],"results":[{"description":"rs"}]}`, want: []string{"rs"}},
		{name: "null results falls through", payload: `{"results":null,"result":[{"description":"r"}]}`, want: []string{"r"}},
		{name: "single object under results", payload: `{"results":{"description":"only"}}`, want: []string{"only"}},
		{name: "bare list", payload: `[{"description":"a"},{"description":"b"}]`, want: []string{"a", "b"}},
		{name: "bare neuron object", payload: `{"neuron":{"description":"n"}}`, want: []string{"n"}},
		{name: "neuron description", payload: `{"results":[{"neuron":{"description":"n"}}]}`, want: []string{"n"}},
		{name: "element explanations", payload: `{"results":[{"explanations":[{"description":"e1"},{"description":"e2"}]}]}`, want: []string{"e1", "e2"}},
		{name: "empty neuron explanations falls through", payload: `{"results":[{"neuron":{"explanations":[]},"explanations":[{"description":"e"}]}]}`, want: []string{"e"}},
		{name: "missing description is sentinel", payload: `{"results":[{"neuron":{}}]}`, want: []string{domain.DescriptionUnavailable}},
		{name: "blank description is sentinel", payload: `{"results":[{"description":"   "}]}`, want: []string{domain.DescriptionUnavailable}},
		{name: "non-string description is sentinel", payload: `{"results":[{"description":42}]}`, want: []string{domain.DescriptionUnavailable}},
		{name: "element description wins over neuron", payload: `{"results":[{"description":"el","neuron":{"description":"n"}}]}`, want: []string{"el"}},
		{name: "non-object elements skipped", payload: `{"results":["junk",3,null,{"description":"ok"}]}`, want: []string{"ok"}},
		{name: "duplicates kept in order", payload: `{"results":[{"description":"x"},{"description":"y"},{"description":"x"}]}`, want: []string{"x", "y", "x"}},
		{name: "empty results", payload: `{"results":[]}`, want: []string{}},
		{name: "unknown shape", payload: `{"foo":"bar"}`, want: []string{}},
		{name: "scalar payload", payload: `"nope"`, want: []string{}},
		{name: "null payload", payload: `null`, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			exps := NormalizePayload(decode(t, tt.payload))
			require.NotNil(t, exps)
			assert.Equal(t, tt.want, descriptions(exps))
		})
	}
}

func TestNormalize_StatsFromElementWithoutNeuron(t *testing.T) {
	t.Parallel()

	exps := NormalizePayload(decode(t, `[{"description":"d","layer":"6-res-jb","index":7,"pos_str":["p"],"pos_values":[1.25]}]`))
	require.Len(t, exps, 1)
	assert.Equal(t, []domain.Term{{Word: "p", Value: 1.25}}, exps[0].PositiveTerms)
	require.NotNil(t, exps[0].SourceID)
	assert.Equal(t, "6-res-jb/7", *exps[0].SourceID)
}

func TestNormalize_SourceIDFromNeuron(t *testing.T) {
	t.Parallel()

	exps := NormalizePayload(decode(t, `{"results":[{"description":"d","neuron":{"modelId":"m","layer":"l","index":"9"}}]}`))
	require.Len(t, exps, 1)
	require.NotNil(t, exps[0].SourceID)
	assert.Equal(t, "m/l/9", *exps[0].SourceID)
}

func TestNormalize_GoValuesAccepted(t *testing.T) {
	t.Parallel()

	// Payloads built in Go rather than decoded from JSON.
	payload := map[string]any{
		"results": []any{
			map[string]any{
				"description": "go",
				"neg_str":     []any{"n"},
				"neg_values":  []any{3},
				"layer":       float64(5),
				"index":       int64(11),
			},
		},
	}

	exps := NormalizePayload(payload)
	require.Len(t, exps, 1)
	assert.Equal(t, []domain.Term{{Word: "n", Value: 3}}, exps[0].NegativeTerms)
	require.NotNil(t, exps[0].SourceID)
	assert.Equal(t, "5/11", *exps[0].SourceID)
}

func TestNormalize_LargeFloatIndexKeepsValue(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"results": []any{
			map[string]any{
				"description": "big",
				"layer":       float64(3),
				"index":       1e20,
			},
			map[string]any{
				"description": "edge",
				"layer":       float64(3),
				"index":       float64(1 << 63),
			},
		},
	}

	exps := NormalizePayload(payload)
	require.Len(t, exps, 2)
	require.NotNil(t, exps[0].SourceID)
	assert.Equal(t, "3/100000000000000000000", *exps[0].SourceID)
	require.NotNil(t, exps[1].SourceID)
	assert.Equal(t, "3/9223372036854775808", *exps[1].SourceID)
}

func TestNormalize_NeverPanics(t *testing.T) {
	t.Parallel()

	inputs := []any{
		nil,
		42,
		[]any{nil, []any{}, map[string]any{"neuron": "x"}},
		map[string]any{"results": map[string]any{"neuron": []any{1}}},
		map[string]any{"neuron": map[string]any{"explanations": "x"}},
		map[string]any{"results": []any{map[string]any{"neg_str": nil, "neg_values": []any{1}}}},
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { NormalizePayload(in) })
	}
}

func FuzzNormalizePayload(f *testing.F) {
	f.Add(`{"results":[{"description":"amphibian concept","neuron":{"pos_str":["toad"],"pos_values":[0.9]}}]}`)
	f.Add(`{"result":[{"neuron":{"explanations":[{"description":"a"}]}}]}`)
	f.Add(`[1,"x",{"neg_str":["a"],"neg_values":[1,2]}]`)

	f.Fuzz(func(t *testing.T, s string) {
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return
		}
		for _, e := range NormalizePayload(v) {
			if e.Description == "" {
				t.Fatal("description must never be empty")
			}
			if len(e.FrequencyHistogram.X) != len(e.FrequencyHistogram.Y) ||
				len(e.LogitsHistogram.X) != len(e.LogitsHistogram.Y) {
				t.Fatal("histogram sides must match")
			}
		}
	})
}
