package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/amongirl/internal/amongirl"
)

const revealConcurrency = 8

// AdminPlayer is a player row in the admin console.
type AdminPlayer struct {
	amongirl.Player
	Tasks []amongirl.Task `json:"tasks,omitempty"`
}

// AdminPlayersResponse is the response for GET /api/admin/players.
type AdminPlayersResponse struct {
	Players []AdminPlayer         `json:"players"`
	Counts  amongirl.PlayerCounts `json:"counts"`
}

// AdminStatusRequest is the request body for PUT /api/admin/players/{id}/status.
type AdminStatusRequest struct {
	Status amongirl.Status `json:"status"`
}

// StartGameResponse is the response for POST /api/admin/game/start.
type StartGameResponse struct {
	Phase    amongirl.Phase `json:"phase"`
	Revealed []string       `json:"revealed"`
	Failed   []string       `json:"failed"`
}

func handleAdminListPlayers(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		players, err := store.ListPlayers(r.Context())
		if err != nil {
			writeStoreError(w, r, logger, "list players", err)
			return
		}

		var tasks map[string][]amongirl.Task
		if r.URL.Query().Get("include") == "tasks" {
			if tasks, err = store.ListAllTasks(r.Context()); err != nil {
				writeStoreError(w, r, logger, "list tasks", err)
				return
			}
		}

		resp := AdminPlayersResponse{
			Players: make([]AdminPlayer, 0, len(players)),
			Counts:  amongirl.CountPlayers(players),
		}
		for _, p := range players {
			row := AdminPlayer{Player: p}
			if tasks != nil {
				row.Tasks = tasks[p.ID]
				if row.Tasks == nil {
					row.Tasks = []amongirl.Task{}
				}
			}
			resp.Players = append(resp.Players, row)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// updatePlayer applies fn to the player named in the URL, publishes the
// change and writes the updated player.
func updatePlayer(w http.ResponseWriter, r *http.Request, store Store, feed *Feed, logger *slog.Logger, op string, fn func(*amongirl.Player) error) {
	id := chi.URLParam(r, "id")
	p, err := store.UpdatePlayer(r.Context(), id, fn)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}
	if err != nil {
		writeStoreError(w, r, logger, op, err)
		return
	}

	logger.Info(op, "player_id", p.ID, "actor_id", playerFrom(r).ID,
		"role", p.Role, "status", p.Status, "admin", p.IsAdmin)
	feed.PlayerChanged(r.Context(), eventUpdate, p)
	writeJSON(w, http.StatusOK, p)
}

func handleAdminToggleRole(store Store, feed *Feed, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updatePlayer(w, r, store, feed, logger, "toggle role", func(p *amongirl.Player) error {
			p.Role = p.Role.Toggle()
			return nil
		})
	}
}

func handleAdminToggleAdmin(store Store, feed *Feed, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updatePlayer(w, r, store, feed, logger, "toggle admin", func(p *amongirl.Player) error {
			p.IsAdmin = !p.IsAdmin
			return nil
		})
	}
}

func handleAdminSetStatus(store Store, feed *Feed, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminStatusRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !req.Status.Valid() {
			writeError(w, http.StatusBadRequest, "status must be alive or dead")
			return
		}

		updatePlayer(w, r, store, feed, logger, "set status", func(p *amongirl.Player) error {
			p.Status = req.Status
			return nil
		})
	}
}

func handleAdminApproveTask(store Store, feed *Feed, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := store.ApproveTask(r.Context(), chi.URLParam(r, "taskID"))
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "task not found")
			return
		case errors.Is(err, amongirl.ErrTaskNotCompleted):
			writeError(w, http.StatusConflict, "task is not completed")
			return
		case err != nil:
			writeStoreError(w, r, logger, "approve task", err)
			return
		}

		feed.TaskChanged(r.Context(), eventUpdate, t)
		writeJSON(w, http.StatusOK, t)
	}
}

// handleAdminStartGame marks the game active and reveals every player's
// first task. Reveals run concurrently and are not rolled back when some
// of them fail.
func handleAdminStartGame(store Store, feed *Feed, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phase, err := store.AppendPhase(r.Context(), amongirl.PhaseActive, playerFrom(r).ID)
		if err != nil {
			writeStoreError(w, r, logger, "start game", err)
			return
		}
		feed.PhaseChanged(r.Context(), phase)

		players, err := store.ListPlayers(r.Context())
		if err != nil {
			writeStoreError(w, r, logger, "list players", err)
			return
		}

		revealed, failed := revealFirstTasks(r.Context(), store, feed, logger, players)
		logger.Info("game started", "players", len(players), "revealed", len(revealed), "failed", len(failed))

		writeJSON(w, http.StatusOK, StartGameResponse{
			Phase:    phase,
			Revealed: revealed,
			Failed:   failed,
		})
	}
}

func revealFirstTasks(ctx context.Context, store Store, feed *Feed, logger *slog.Logger, players []amongirl.Player) (revealed, failed []string) {
	var mu sync.Mutex
	revealed, failed = []string{}, []string{}

	var g errgroup.Group
	g.SetLimit(revealConcurrency)
	for _, p := range players {
		g.Go(func() error {
			t, changed, err := store.RevealFirstTask(ctx, p.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("reveal first task failed", "player_id", p.ID, "error", err)
				failed = append(failed, p.ID)
				return nil
			}
			if changed {
				feed.TaskChanged(ctx, eventUpdate, t)
			}
			revealed = append(revealed, p.ID)
			return nil
		})
	}
	g.Wait()

	slices.Sort(revealed)
	slices.Sort(failed)
	return revealed, failed
}

func handleAdminEndGame(store Store, feed *Feed, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phase, err := store.AppendPhase(r.Context(), amongirl.PhaseEnded, playerFrom(r).ID)
		if err != nil {
			writeStoreError(w, r, logger, "end game", err)
			return
		}
		logger.Info("game ended", "actor_id", phase.ActorID)
		feed.PhaseChanged(r.Context(), phase)
		writeJSON(w, http.StatusOK, phase)
	}
}
