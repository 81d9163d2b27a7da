package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/playperu/amongirl/internal/amongirl"
)

// handleEvents streams the caller's view as server-sent events. A state
// event with the full player record and its view is sent on connect and
// after every change to the player; task and game notifications are
// forwarded as they arrive.
func handleEvents(store Store, feed *Feed, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := playerFrom(r)

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		// Subscribe before reading so no change between the read and the
		// subscription is lost.
		cols := feed.Collections()
		sub := feed.Subscribe(cols.DefaultChannels(p)...)
		defer sub.Close()

		current, err := store.GetPlayer(r.Context(), p.ID)
		if err != nil {
			writeStoreError(w, r, logger, "load player", err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		send := func(event string, data []byte) {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
			flusher.Flush()
		}
		sendState := func(p amongirl.Player) {
			data, _ := json.Marshal(StateEvent{Player: p, View: amongirl.Route(&p)})
			send("state", data)
		}

		sendState(current)

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case n, ok := <-sub.C():
				if !ok {
					return
				}
				switch n.Collection {
				case cols.Players:
					var updated amongirl.Player
					if err := json.Unmarshal(n.Payload, &updated); err != nil {
						logger.Warn("dropping malformed player notification", "error", err)
						continue
					}
					sendState(updated)
				case cols.Tasks:
					send("task", n.Payload)
				default:
					data, _ := json.Marshal(n)
					send("game", data)
				}
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
