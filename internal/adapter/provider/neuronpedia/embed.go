package neuronpedia

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/heartmarshall/featurelens/internal/domain"
)

// DefaultEmbedHeight is the dashboard height used when none is given.
const DefaultEmbedHeight = 300

var errNoSource = errors.New("neuronpedia: explanation has no source id")

// EmbedURL builds the embeddable dashboard URL of one feature:
// {base}/{model}/{layer}/{index}?embed=true&...&height=N.
func EmbedURL(base, modelID, layer, index string, height int) (string, error) {
	if modelID == "" || layer == "" || index == "" {
		return "", domain.NewValidationError("feature", "model, layer and index are required")
	}
	if height <= 0 {
		height = DefaultEmbedHeight
	}

	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", domain.NewValidationError("base_url", "must be an absolute URL")
	}
	u = u.JoinPath(modelID, layer, index)

	// Parameter order is fixed so URLs are stable across calls.
	u.RawQuery = strings.Join([]string{
		"embed=true",
		"embedexplanation=true",
		"embedplots=true",
		"embedtest=true",
		"height=" + strconv.Itoa(height),
	}, "&")
	return u.String(), nil
}

// EmbedURLFor builds the dashboard URL for f from its SourceID. A SourceID
// without a model segment falls back to defaultModel.
func EmbedURLFor(base, defaultModel string, f domain.FeatureExplanation, height int) (string, error) {
	model, layer, index, ok := f.Source()
	if !ok {
		return "", errNoSource
	}
	if model == "" {
		model = defaultModel
	}
	return EmbedURL(base, model, layer, index, height)
}
