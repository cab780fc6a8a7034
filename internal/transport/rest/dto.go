package rest

import (
	"time"

	"github.com/heartmarshall/featurelens/internal/domain"
	"github.com/heartmarshall/featurelens/internal/service/session"
)

// EmbedFunc derives the dashboard URL for an explanation. It returns an
// error when the explanation carries no usable source.
type EmbedFunc func(f domain.FeatureExplanation) (string, error)

type tokenResponse struct {
	Text     string `json:"text"`
	Position int    `json:"position"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

type termResponse struct {
	Word  string  `json:"word"`
	Value float64 `json:"value"`
}

type histogramResponse struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

type explanationResponse struct {
	Description        string            `json:"description"`
	HasDescription     bool              `json:"hasDescription"`
	SourceID           *string           `json:"sourceId,omitempty"`
	EmbedURL           string            `json:"embedUrl,omitempty"`
	PositiveTerms      []termResponse    `json:"positiveTerms"`
	NegativeTerms      []termResponse    `json:"negativeTerms"`
	FrequencyHistogram histogramResponse `json:"frequencyHistogram"`
	LogitsHistogram    histogramResponse `json:"logitsHistogram"`
}

type sessionResponse struct {
	ID              string                `json:"id"`
	Sentence        string                `json:"sentence"`
	Tokens          []tokenResponse       `json:"tokens"`
	Phase           string                `json:"phase"`
	SelectedToken   *string               `json:"selectedToken"`
	Explanations    []explanationResponse `json:"explanations"`
	SelectedFeature *explanationResponse  `json:"selectedFeature"`
	SelectedIndex   *int                  `json:"selectedIndex"`
	Loading         bool                  `json:"loading"`
	LastError       *errorResponse        `json:"lastError,omitempty"`
	CachedTokens    int                   `json:"cachedTokens"`
	CreatedAt       time.Time             `json:"createdAt"`
	LastUsed        time.Time             `json:"lastUsed"`
}

type lookupRecordResponse struct {
	ID          string    `json:"id"`
	Token       string    `json:"token"`
	Outcome     string    `json:"outcome"`
	ResultCount int       `json:"resultCount"`
	StatusCode  *int      `json:"statusCode,omitempty"`
	Attempts    int       `json:"attempts"`
	DurationMs  int64     `json:"durationMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toTokens(tokens []domain.Token) []tokenResponse {
	out := make([]tokenResponse, len(tokens))
	for i, t := range tokens {
		out[i] = tokenResponse{Text: t.Text, Position: t.Position, Start: t.Start, End: t.End}
	}
	return out
}

func toTerms(terms []domain.Term) []termResponse {
	out := make([]termResponse, len(terms))
	for i, t := range terms {
		out[i] = termResponse{Word: t.Word, Value: t.Value}
	}
	return out
}

func toHistogram(h domain.Histogram) histogramResponse {
	x, y := h.X, h.Y
	if x == nil {
		x = []float64{}
	}
	if y == nil {
		y = []float64{}
	}
	return histogramResponse{X: x, Y: y}
}

func toExplanation(f domain.FeatureExplanation, embed EmbedFunc) explanationResponse {
	resp := explanationResponse{
		Description:        f.Description,
		HasDescription:     f.HasDescription(),
		SourceID:           f.SourceID,
		PositiveTerms:      toTerms(f.PositiveTerms),
		NegativeTerms:      toTerms(f.NegativeTerms),
		FrequencyHistogram: toHistogram(f.FrequencyHistogram),
		LogitsHistogram:    toHistogram(f.LogitsHistogram),
	}
	if embed != nil && f.SourceID != nil {
		if u, err := embed(f); err == nil {
			resp.EmbedURL = u
		}
	}
	return resp
}

func toExplanations(list []domain.FeatureExplanation, embed EmbedFunc) []explanationResponse {
	out := make([]explanationResponse, len(list))
	for i, f := range list {
		out[i] = toExplanation(f, embed)
	}
	return out
}

func toSession(s session.Snapshot, embed EmbedFunc) sessionResponse {
	resp := sessionResponse{
		ID:            s.ID.String(),
		Sentence:      s.Sentence,
		Tokens:        toTokens(s.Tokens),
		Phase:         s.Phase.String(),
		SelectedToken: s.SelectedToken,
		Loading:       s.Loading,
		CachedTokens:  s.CachedTokens,
		CreatedAt:     s.CreatedAt,
		LastUsed:      s.LastUsed,
	}
	if s.Explanations != nil {
		resp.Explanations = toExplanations(s.Explanations, embed)
	}
	if s.SelectedFeature != nil {
		f := toExplanation(*s.SelectedFeature, embed)
		resp.SelectedFeature = &f
		idx := s.SelectedIndex
		resp.SelectedIndex = &idx
	}
	if s.LastError != nil {
		_, kind := statusFor(s.LastError)
		resp.LastError = &errorResponse{Error: domain.UserMessage(s.LastError), Kind: kind}
	}
	return resp
}

func toLookupRecords(records []domain.LookupRecord) []lookupRecordResponse {
	out := make([]lookupRecordResponse, len(records))
	for i, r := range records {
		out[i] = lookupRecordResponse{
			ID:          r.ID.String(),
			Token:       r.Token,
			Outcome:     r.Outcome.String(),
			ResultCount: r.ResultCount,
			StatusCode:  r.StatusCode,
			Attempts:    r.Attempts,
			DurationMs:  r.Duration.Milliseconds(),
			CreatedAt:   r.CreatedAt,
		}
	}
	return out
}
