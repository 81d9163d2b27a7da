package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// handleRealtime upgrades to a WebSocket that streams notifications for
// the requested channels. Clients only send control frames.
func handleRealtime(feed *Feed, logger *slog.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := playerFrom(r)
		cols := feed.Collections()

		var channels []string
		for _, raw := range r.URL.Query()["channels"] {
			for _, c := range strings.Split(raw, ",") {
				if c = strings.TrimSpace(c); c != "" {
					channels = append(channels, c)
				}
			}
		}
		if len(channels) == 0 {
			channels = cols.DefaultChannels(p)
		}
		for _, c := range channels {
			if !cols.CanSubscribe(p, c) {
				writeForbidden(w, "channel not allowed: "+c, p)
				return
			}
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		sub := feed.Subscribe(channels...)
		defer sub.Close()

		ctx := conn.CloseRead(r.Context())
		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Debug("websocket closed", "player_id", p.ID, "error", context.Cause(ctx))
				return
			case n, ok := <-sub.C():
				if !ok {
					conn.Close(websocket.StatusGoingAway, "subscription closed")
					return
				}
				wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				err := wsjson.Write(wctx, conn, n)
				cancel()
				if err != nil {
					logger.Debug("websocket write failed", "error", err)
					return
				}
			case <-ping.C:
				pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				err := conn.Ping(pctx)
				cancel()
				if err != nil {
					logger.Debug("websocket ping failed", "error", err)
					return
				}
			}
		}
	}
}
