package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/amongirl/internal/amongirl"
)

// TasksResponse is the response for GET /api/tasks.
type TasksResponse struct {
	Tasks   []amongirl.Task `json:"tasks"`
	Current *amongirl.Task  `json:"current"`
}

// CompleteTaskResponse is the response for POST /api/tasks/{taskID}/complete.
type CompleteTaskResponse struct {
	Completed amongirl.Task  `json:"completed"`
	Next      *amongirl.Task `json:"next"`
}

func newTasksResponse(tasks []amongirl.Task) TasksResponse {
	resp := TasksResponse{Tasks: tasks}
	if i := amongirl.CurrentTask(tasks); i >= 0 {
		resp.Current = &tasks[i]
	}
	return resp
}

func handleListTasks(store Store, feed *Feed, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := playerFrom(r)

		tasks, repaired, err := store.RepairTasks(r.Context(), p.ID)
		if err != nil {
			writeStoreError(w, r, logger, "load tasks", err)
			return
		}
		if repaired != nil {
			logger.Info("task visibility repaired", "player_id", p.ID, "task_id", repaired.ID, "order", repaired.Order)
			feed.TaskChanged(r.Context(), eventUpdate, *repaired)
		}

		writeJSON(w, http.StatusOK, newTasksResponse(tasks))
	}
}

func handleCompleteTask(store Store, feed *Feed, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := playerFrom(r)
		taskID := chi.URLParam(r, "taskID")

		changed, err := store.CompleteTask(r.Context(), p.ID, taskID)
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "task not found")
			return
		case errors.Is(err, amongirl.ErrTaskNotCurrent):
			writeError(w, http.StatusConflict, "task is not the current task")
			return
		case err != nil:
			writeStoreError(w, r, logger, "complete task", err)
			return
		}

		for _, t := range changed {
			feed.TaskChanged(r.Context(), eventUpdate, t)
		}

		resp := CompleteTaskResponse{Completed: changed[0]}
		if len(changed) > 1 {
			resp.Next = &changed[1]
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
