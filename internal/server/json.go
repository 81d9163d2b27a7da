package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/playperu/amongirl/internal/amongirl"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	// View is set when the caller is not allowed on the route; it tells the
	// client where to go instead.
	View  amongirl.View `json:"view,omitempty"`
	Retry bool          `json:"retry,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeNoSession(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error: "not authenticated",
		View:  amongirl.ViewUnauthenticated,
	})
}

func writeForbidden(w http.ResponseWriter, msg string, p amongirl.Player) {
	writeJSON(w, http.StatusForbidden, ErrorResponse{Error: msg, View: amongirl.Route(&p)})
}

// writeStoreError logs a failed store operation and tells the client it
// may retry.
func writeStoreError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	logger.Error(op+" failed",
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: op + " failed",
		Retry: true,
	})
}
