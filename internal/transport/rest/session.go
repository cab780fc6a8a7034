package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/featurelens/internal/domain"
	"github.com/heartmarshall/featurelens/internal/service/session"
	"github.com/heartmarshall/featurelens/pkg/ctxutil"
)

// sessionRegistry defines the minimal interface needed by SessionHandler.
type sessionRegistry interface {
	Create() (*session.Session, error)
	Get(id uuid.UUID) (*session.Session, error)
	Delete(id uuid.UUID) error
}

// SessionHandler serves the interactive sentence/token/feature flow.
type SessionHandler struct {
	sessions sessionRegistry
	embed    EmbedFunc
	log      *slog.Logger
}

// NewSessionHandler creates a SessionHandler. embed may be nil.
func NewSessionHandler(sessions sessionRegistry, embed EmbedFunc, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, embed: embed, log: logger.With("handler", "session")}
}

type sentenceRequest struct {
	Text string `json:"text"`
}

type sentenceResponse struct {
	Tokens []tokenResponse `json:"tokens"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type tokenSelectionResponse struct {
	Token        string                `json:"token"`
	Explanations []explanationResponse `json:"explanations"`
}

type featureRequest struct {
	Index       *int    `json:"index"`
	Description *string `json:"description"`
}

type featureSelectionResponse struct {
	Index   int                 `json:"index"`
	Feature explanationResponse `json:"feature"`
}

// Create handles POST /sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create()
	if err != nil {
		writeDomainError(r.Context(), h.log, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSession(s.Snapshot(), h.embed))
}

// Get handles GET /sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSession(s.Snapshot(), h.embed))
}

// Delete handles DELETE /sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeDomainError(r.Context(), h.log, w, err)
		return
	}
	if err := h.sessions.Delete(id); err != nil {
		writeDomainError(r.Context(), h.log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetSentence handles PUT /sessions/{id}/sentence.
func (h *SessionHandler) SetSentence(w http.ResponseWriter, r *http.Request) {
	s, ctx, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req sentenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(ctx, h.log, w, err)
		return
	}

	tokens := s.SetSentence(req.Text)
	writeJSON(w, http.StatusOK, sentenceResponse{Tokens: toTokens(tokens)})
}

// SelectToken handles POST /sessions/{id}/token. Lookup failures answer 502
// with a message for the end user; a selection replaced while its lookup
// was running answers 409.
func (h *SessionHandler) SelectToken(w http.ResponseWriter, r *http.Request) {
	s, ctx, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(ctx, h.log, w, err)
		return
	}
	if req.Token == "" {
		writeDomainError(ctx, h.log, w, domain.NewValidationError("token", "required"))
		return
	}

	exps, err := s.SelectToken(ctx, req.Token)
	if err != nil {
		writeDomainError(ctx, h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenSelectionResponse{
		Token:        req.Token,
		Explanations: toExplanations(exps, h.embed),
	})
}

// SelectFeature handles POST /sessions/{id}/feature. The body names the
// explanation either by index or by description, not both.
func (h *SessionHandler) SelectFeature(w http.ResponseWriter, r *http.Request) {
	s, ctx, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req featureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(ctx, h.log, w, err)
		return
	}

	var (
		index int
		f     domain.FeatureExplanation
		err   error
	)
	switch {
	case req.Index != nil && req.Description != nil:
		err = domain.NewValidationError("body", "set either index or description, not both")
	case req.Index != nil:
		index = *req.Index
		f, err = s.SelectFeature(index)
	case req.Description != nil:
		index, f, err = s.SelectFeatureByDescription(*req.Description)
	default:
		err = domain.NewValidationError("body", "index or description is required")
	}
	if err != nil {
		writeDomainError(ctx, h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, featureSelectionResponse{
		Index:   index,
		Feature: toExplanation(f, h.embed),
	})
}

// lookup resolves the {id} path value to a session and tags the request
// context with its id.
func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, context.Context, bool) {
	id, err := parseSessionID(r)
	if err != nil {
		writeDomainError(r.Context(), h.log, w, err)
		return nil, nil, false
	}
	s, err := h.sessions.Get(id)
	if err != nil {
		writeDomainError(r.Context(), h.log, w, err)
		return nil, nil, false
	}
	return s, ctxutil.WithSessionID(r.Context(), id), true
}

func parseSessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domain.NewValidationError("id", "must be a UUID")
	}
	return id, nil
}
