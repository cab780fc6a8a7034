package domain

// SelectionPhase is the state of a SelectionState machine.
type SelectionPhase string

const (
	PhaseIdle            SelectionPhase = "IDLE"
	PhaseTokenSelected   SelectionPhase = "TOKEN_SELECTED"
	PhaseFeatureSelected SelectionPhase = "FEATURE_SELECTED"
)

func (p SelectionPhase) String() string { return string(p) }

// SelectionState holds at most one selected token and at most one selected
// explanation. It is a value: transitions return a new state and never
// modify the receiver. The zero value is Idle.
type SelectionState struct {
	token    string
	hasToken bool
	feature  *FeatureExplanation
}

// Phase returns the current state of the machine.
func (s SelectionState) Phase() SelectionPhase {
	switch {
	case s.feature != nil:
		return PhaseFeatureSelected
	case s.hasToken:
		return PhaseTokenSelected
	default:
		return PhaseIdle
	}
}

// Token returns the selected token, if any.
func (s SelectionState) Token() (string, bool) {
	return s.token, s.hasToken
}

// Feature returns the selected explanation, if any.
func (s SelectionState) Feature() (FeatureExplanation, bool) {
	if s.feature == nil {
		return FeatureExplanation{}, false
	}
	return *s.feature, true
}

// SelectToken moves to TokenSelected from any state, discarding any
// previously selected explanation.
func (s SelectionState) SelectToken(token string) SelectionState {
	return SelectionState{token: token, hasToken: true}
}

// SelectFeature moves to FeatureSelected. f must be a member of candidates,
// the cached explanation list of the selected token. On failure the
// receiver is returned unchanged together with an *InvalidSelectionError.
func (s SelectionState) SelectFeature(f FeatureExplanation, candidates []FeatureExplanation) (SelectionState, error) {
	if !s.hasToken {
		return s, &InvalidSelectionError{Reason: "no token selected"}
	}
	if IndexOf(candidates, f) < 0 {
		return s, &InvalidSelectionError{Token: s.token, Reason: "explanation is not in the token's results"}
	}
	selected := f
	return SelectionState{token: s.token, hasToken: true, feature: &selected}, nil
}
