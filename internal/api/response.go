package api

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/presence.report/internal/monitoring"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// writeJSONError writes {"error": msg} with the given status code.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusBadRequest, msg)
}

func internalError(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusInternalServerError, msg)
}
