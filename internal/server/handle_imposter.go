package server

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/amongirl/internal/amongirl"
)

// ImposterResponse is the response for GET /api/imposter.
type ImposterResponse struct {
	Targets    []amongirl.Player       `json:"targets"`
	Eliminated []amongirl.Player       `json:"eliminated"`
	Counts     amongirl.ImposterCounts `json:"counts"`
}

// EliminateResponse is the response for POST /api/imposter/eliminate/{playerID}.
type EliminateResponse struct {
	Victim amongirl.Player `json:"victim"`
	Event  amongirl.Event  `json:"event"`
}

// CooldownResponse is returned when an emergency meeting is on cooldown.
type CooldownResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

func handleImposter(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := playerFrom(r)

		players, err := store.ListPlayers(r.Context())
		if err != nil {
			writeStoreError(w, r, logger, "list players", err)
			return
		}

		resp := ImposterResponse{
			Targets:    []amongirl.Player{},
			Eliminated: []amongirl.Player{},
			Counts:     amongirl.CountForImposter(players, me.ID),
		}
		for _, p := range players {
			switch {
			case p.ID == me.ID || p.IsAdmin:
			case p.Status == amongirl.StatusDead:
				resp.Eliminated = append(resp.Eliminated, p)
			default:
				resp.Targets = append(resp.Targets, p)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleEliminate(store Store, feed *Feed, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := playerFrom(r)

		victim, event, err := store.Eliminate(r.Context(), me.ID, chi.URLParam(r, "playerID"))
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "player not found")
			return
		case errors.Is(err, ErrInvalidTarget):
			writeError(w, http.StatusConflict, "player cannot be eliminated")
			return
		case err != nil:
			writeStoreError(w, r, logger, "eliminate", err)
			return
		}

		logger.Info("player eliminated", "killer_id", me.ID, "victim_id", victim.ID)
		feed.PlayerChanged(r.Context(), eventUpdate, victim)
		feed.EventCreated(r.Context(), event)
		writeJSON(w, http.StatusOK, EliminateResponse{Victim: victim, Event: event})
	}
}

func handleCallMeeting(store Store, feed *Feed, logger *slog.Logger, cooldown time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := playerFrom(r)
		if me.Status != amongirl.StatusAlive {
			writeForbidden(w, "only alive players can call meetings", me)
			return
		}

		event, err := store.CallMeeting(r.Context(), me, cooldown)
		var cd *CooldownError
		if errors.As(err, &cd) {
			secs := int(math.Ceil(cd.Remaining.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeJSON(w, http.StatusTooManyRequests, CooldownResponse{
				Error:             cd.Error(),
				RetryAfterSeconds: secs,
			})
			return
		}
		if err != nil {
			writeStoreError(w, r, logger, "call meeting", err)
			return
		}

		logger.Info("emergency meeting", "caller_id", me.ID)
		feed.EventCreated(r.Context(), event)
		writeJSON(w, http.StatusCreated, event)
	}
}
