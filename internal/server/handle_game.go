package server

import (
	"log/slog"
	"net/http"
	"strconv"
)

const (
	defaultEventLimit = 20
	maxEventLimit     = 100
)

func handleGetPhase(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phase, err := store.CurrentPhase(r.Context())
		if err != nil {
			writeStoreError(w, r, logger, "load phase", err)
			return
		}
		writeJSON(w, http.StatusOK, phase)
	}
}

// handleListEvents returns recent game events for clients that cannot
// hold a realtime connection.
func handleListEvents(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultEventLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxEventLimit)
		}

		events, err := store.ListEvents(r.Context(), limit)
		if err != nil {
			writeStoreError(w, r, logger, "list events", err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}
