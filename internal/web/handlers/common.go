package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mamage/photo-similarity/internal/database"
	"github.com/mamage/photo-similarity/internal/extractor"
	"github.com/mamage/photo-similarity/internal/logger"
	"github.com/mamage/photo-similarity/internal/query"
	"go.uber.org/zap"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorStatus maps a query error to its HTTP status and client message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, query.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, query.ErrNoImage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, "photo not found"
	case extractor.IsModelLoad(err):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// respondQueryError maps err to a status and logs server-side failures.
func respondQueryError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			zap.String("path", sanitizeForLog(r.URL.Path)),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	respondError(w, status, msg)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
