package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatsHandler_Get(t *testing.T) {
	store := newTestStore()
	store.AddVector(1, "resnet50", []float32{1, 0})
	store.AddVector(1, "clip", []float32{1, 0})

	handler := NewStatsHandler(store)

	tests := []struct {
		name       string
		query      string
		model      string
		embeddings int
		duplicates int
	}{
		{"default model", "", "resnet50", 5, 1},
		{"explicit model", "?modelName=clip", "clip", 1, 0},
		{"unknown model", "?modelName=vit", "vit", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/similarity/stats"+tt.query, nil)
			recorder := httptest.NewRecorder()
			handler.Get(recorder, req)

			assertStatusCode(t, recorder, http.StatusOK)

			var resp StatsResponse
			parseJSONResponse(t, recorder, &resp)
			if resp.ModelName != tt.model {
				t.Errorf("expected model %q, got %q", tt.model, resp.ModelName)
			}
			if resp.Backend != "mock" {
				t.Errorf("expected backend mock, got %q", resp.Backend)
			}
			if resp.Embeddings != tt.embeddings {
				t.Errorf("expected %d embeddings, got %d", tt.embeddings, resp.Embeddings)
			}
			if resp.Duplicates != tt.duplicates {
				t.Errorf("expected %d duplicates, got %d", tt.duplicates, resp.Duplicates)
			}
		})
	}
}

func TestStatsHandler_StoreError(t *testing.T) {
	store := newTestStore()
	store.CountError = errors.New("connection refused")

	req := httptest.NewRequest("GET", "/api/v1/similarity/stats", nil)
	recorder := httptest.NewRecorder()
	NewStatsHandler(store).Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "internal error")
}
