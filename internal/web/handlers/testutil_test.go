package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mamage/photo-similarity/internal/database"
	"github.com/mamage/photo-similarity/internal/database/mock"
	"github.com/mamage/photo-similarity/internal/query"
)

// newTestStore holds project 1 with photos 1 and 2 nearly identical and photo 3
// orthogonal to both. Photo 5 has no embedding and no image.
func newTestStore() *mock.MockStore {
	store := mock.NewMockStore()
	store.AddPhoto(1, 1, "/uploads/1.jpg")
	store.AddPhoto(2, 1, "/uploads/2.jpg")
	store.AddPhoto(3, 1, "/uploads/3.jpg")
	store.AddPhoto(4, 2, "/uploads/4.jpg")
	store.AddPhoto(5, 1, "")

	store.AddVector(1, "resnet50", []float32{1, 0})
	store.AddText(2, "resnet50", "[0.99, 0.14]")
	store.AddVector(3, "resnet50", []float32{0, 1})
	store.AddVector(4, "resnet50", []float32{1, 0})
	return store
}

// newTestService creates a query service over store without image resolution.
func newTestService(t *testing.T, store database.Store) *query.Service {
	t.Helper()
	loader, err := database.NewVectorLoader(store, 0, nil)
	if err != nil {
		t.Fatalf("failed to create vector loader: %v", err)
	}
	return query.NewService(query.Config{Loader: loader})
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
