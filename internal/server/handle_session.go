package server

import (
	"net/http"

	"github.com/playperu/amongirl/internal/amongirl"
)

// MeResponse is the response for GET /api/me.
type MeResponse struct {
	Player   amongirl.Player `json:"player"`
	View     amongirl.View   `json:"view"`
	Channels []string        `json:"channels"`
}

// StateEvent is the payload of the SSE state event.
type StateEvent struct {
	Player amongirl.Player `json:"player"`
	View   amongirl.View   `json:"view"`
}

func handleMe(feed *Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := playerFrom(r)
		writeJSON(w, http.StatusOK, MeResponse{
			Player:   p,
			View:     amongirl.Route(&p),
			Channels: feed.Collections().DefaultChannels(p),
		})
	}
}
