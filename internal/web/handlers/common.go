package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-annotator/internal/annotation"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// Error codes returned next to the error message.
const (
	codeInvalidRequest     = "INVALID_REQUEST"
	codeInvalidImage       = "INVALID_IMAGE"
	codeUnknownMovie       = "UNKNOWN_MOVIE"
	codeUnknownCluster     = "UNKNOWN_CLUSTER"
	codeRevisionConflict   = "REVISION_CONFLICT"
	codeLabelCountRead     = "LABEL_COUNT_READ"
	codeActorCountRead     = "ACTOR_COUNT_READ"
	codeDatabaseReadError  = "DATABASE_READ_ERROR"
	codeDatabaseWriteError = "DATABASE_WRITE_ERROR"
)

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

// respondError sends an error response with a machine-readable code.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": message, "code": code})
}

// intParam parses a numeric chi URL parameter.
func intParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, sanitizeForLog(raw))
	}
	return v, nil
}

// respondLookupError handles unknown movie and cluster errors. It returns false
// if err is neither.
func respondLookupError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, annotation.ErrUnknownMovie):
		respondError(w, http.StatusNotFound, codeUnknownMovie, err.Error())
	case errors.Is(err, annotation.ErrUnknownCluster):
		respondError(w, http.StatusNotFound, codeUnknownCluster, err.Error())
	default:
		return false
	}
	return true
}

// respondStorageError logs a storage failure and hides its details from the client.
func respondStorageError(w http.ResponseWriter, r *http.Request, code string, err error) {
	log.Printf("%s %s: %v", r.Method, sanitizeForLog(r.URL.Path), err)
	respondError(w, http.StatusInternalServerError, code, "annotation storage unavailable")
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
