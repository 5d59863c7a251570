package handlers

import (
	"net/http"

	"github.com/mamage/photo-similarity/internal/constants"
	"github.com/mamage/photo-similarity/internal/database"
)

// StatsHandler reports embedding counts per model.
type StatsHandler struct {
	store database.Store
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(store database.Store) *StatsHandler {
	return &StatsHandler{store: store}
}

// StatsResponse is the per-model embedding census.
type StatsResponse struct {
	ModelName  string `json:"modelName"`
	Backend    string `json:"backend"`
	Embeddings int    `json:"embeddings"`
	Duplicates int    `json:"duplicates"`
}

// Get handles GET /similarity/stats
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	model := stringParam(r.URL.Query(), "modelName", constants.DefaultModel)

	count, err := h.store.CountByModel(r.Context(), model)
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	dups, err := h.store.DuplicateCount(r.Context(), model)
	if err != nil {
		respondQueryError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		ModelName:  model,
		Backend:    h.store.Backend(),
		Embeddings: count,
		Duplicates: dups,
	})
}
