package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/playperu/amongirl/internal/amongirl"
)

type ctxKey int

const (
	ctxKeySession ctxKey = iota
	ctxKeyAccount
	ctxKeyPlayer
)

// sessionMiddleware requires a valid session cookie and stores the session
// and account in the request context.
func sessionMiddleware(identity *Identity, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, account, err := identity.SessionFromRequest(r)
			if err != nil {
				if !errors.Is(err, errNoSession) {
					logger.Error("session lookup failed",
						"error", err,
						"request_id", middleware.GetReqID(r.Context()),
					)
				}
				writeNoSession(w)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeySession, sess)
			ctx = context.WithValue(ctx, ctxKeyAccount, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// playerMiddleware resolves the session's player through the gate. Any
// failure is reported as no session.
func playerMiddleware(gate *Gate, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := gate.Resolve(r.Context(), accountFrom(r))
			if err != nil {
				logger.Error("resolving player failed",
					"error", err,
					"request_id", middleware.GetReqID(r.Context()),
				)
				writeNoSession(w)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyPlayer, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := playerFrom(r); !p.IsAdmin {
			writeForbidden(w, "admin only", p)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireImposter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := playerFrom(r); amongirl.Route(&p) != amongirl.ViewImposter {
			writeForbidden(w, "imposters only", p)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionFrom(r *http.Request) Session {
	return r.Context().Value(ctxKeySession).(Session)
}

func accountFrom(r *http.Request) Account {
	return r.Context().Value(ctxKeyAccount).(Account)
}

func playerFrom(r *http.Request) amongirl.Player {
	return r.Context().Value(ctxKeyPlayer).(amongirl.Player)
}
