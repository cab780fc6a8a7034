package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/heartmarshall/featurelens/internal/domain"
	"github.com/heartmarshall/featurelens/internal/service/session"
	"github.com/heartmarshall/featurelens/pkg/ctxutil"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.NewValidationError("body", "must contain a single JSON object")
	}
	return nil
}

// statusFor maps an error to its HTTP status and client-facing kind.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, domain.ErrInvalidSelection):
		return http.StatusUnprocessableEntity, "invalid_selection"
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusServiceUnavailable, "too_many_sessions"
	case errors.Is(err, domain.ErrAuth), errors.Is(err, domain.ErrService), errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway, domain.OutcomeOf(err).String()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeDomainError writes err as a JSON error with a message fit for end users.
// Server-side failures are logged.
func writeDomainError(ctx context.Context, log *slog.Logger, w http.ResponseWriter, err error) {
	status, kind := statusFor(err)

	msg := domain.UserMessage(err)
	if errors.Is(err, session.ErrTooManySessions) {
		msg = "Too many active sessions. Try again later."
	}

	if status >= http.StatusInternalServerError {
		attrs := append(ctxutil.LogAttrs(ctx),
			slog.Int("status", status),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		log.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
	}

	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}
