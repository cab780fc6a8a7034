package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/heartmarshall/featurelens/internal/domain"
)

type lookupHistory interface {
	History(ctx context.Context, limit int) ([]domain.LookupRecord, error)
}

// LookupHandler serves the lookup log.
type LookupHandler struct {
	history lookupHistory
	log     *slog.Logger
}

// NewLookupHandler creates a LookupHandler.
func NewLookupHandler(history lookupHistory, logger *slog.Logger) *LookupHandler {
	return &LookupHandler{history: history, log: logger.With("handler", "lookups")}
}

type lookupListResponse struct {
	Lookups []lookupRecordResponse `json:"lookups"`
}

// List handles GET /lookups?limit=N. A missing limit uses the service default.
func (h *LookupHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeDomainError(ctx, h.log, w, domain.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	records, err := h.history.History(ctx, limit)
	if err != nil {
		writeDomainError(ctx, h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, lookupListResponse{Lookups: toLookupRecords(records)})
}
