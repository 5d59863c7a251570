package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mamage/photo-similarity/internal/config"
	"github.com/mamage/photo-similarity/internal/database"
	"github.com/mamage/photo-similarity/internal/database/mock"
	"github.com/mamage/photo-similarity/internal/query"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := mock.NewMockStore()
	store.AddPhoto(1, 1, "")
	store.AddPhoto(2, 1, "")
	store.AddVector(1, "resnet50", []float32{1, 0})
	store.AddVector(2, "resnet50", []float32{1, 0.05})

	loader, err := database.NewVectorLoader(store, 10, nil)
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	cfg := &config.Config{Web: config.WebConfig{Host: "127.0.0.1", Port: 0, AllowedOrigins: []string{"https://photos.example.com"}}}
	s := NewServer(cfg, query.NewService(query.Config{Loader: loader}), store, nil)
	t.Cleanup(s.jobManager.Shutdown)
	return s
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{"GET", "/api/v1/health", "", http.StatusOK},
		{"GET", "/api/v1/similarity/groups?projectId=1", "", http.StatusOK},
		{"GET", "/api/v1/similarity/groups/simple?projectId=1", "", http.StatusOK},
		{"GET", "/api/v1/similarity/pairs?projectId=1", "", http.StatusOK},
		{"POST", "/api/v1/similarity/query", `{"photoId":1}`, http.StatusOK},
		{"GET", "/api/v1/similarity/stats", "", http.StatusOK},
		{"GET", "/api/v1/similarity/groups/jobs", "", http.StatusOK},
		{"GET", "/api/v1/similarity/groups/jobs/nope", "", http.StatusNotFound},
		{"GET", "/api/v1/similarity/groups", "", http.StatusBadRequest},
		{"GET", "/api/v1/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d\nBody: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	s.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/similarity/groups?projectId=1", nil))

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "photosim_http_requests_total") {
		t.Error("expected request counter in metrics output")
	}
}

func TestServer_CORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/similarity/groups", nil)
	req.Header.Set("Origin", "https://photos.example.com")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://photos.example.com" {
		t.Errorf("expected allowed origin echoed, got %q", got)
	}
}
