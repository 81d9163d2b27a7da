package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// LocalLoginRequest is the request body for POST /api/auth/local.
type LocalLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse describes the current session.
type SessionResponse struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Provider  string `json:"provider"`
	ExpiresAt string `json:"expiresAt"`
}

// AccountResponse is the response for GET /api/account.
type AccountResponse struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

func newSessionResponse(s Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		AccountID: s.AccountID,
		Provider:  s.Provider,
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func handleAuthStart(identity *Identity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "provider")
		p, ok := identity.providers[name]
		if !ok {
			writeError(w, http.StatusNotFound, "unknown provider")
			return
		}

		success := r.URL.Query().Get("success")
		failure := r.URL.Query().Get("failure")
		if success == "" {
			success = identity.publicURL + "/"
		}
		if failure == "" {
			failure = identity.publicURL + "/"
		}
		if !identity.allowedRedirect(success) || !identity.allowedRedirect(failure) {
			writeError(w, http.StatusBadRequest, "redirect url not allowed")
			return
		}

		target, err := identity.beginFlow(w, name, p, uuid.NewString(), success, failure)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func handleAuthCallback(identity *Identity, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "provider")
		p, ok := identity.providers[name]
		if !ok {
			writeError(w, http.StatusNotFound, "unknown provider")
			return
		}

		flow, err := identity.flowFromRequest(r)
		if err != nil || flow.Provider != name {
			writeError(w, http.StatusBadRequest, "no login in progress")
			return
		}
		identity.clearCookie(w, flowCookieName)

		q := r.URL.Query()
		if q.Get("state") != flow.ID {
			logger.Warn("oauth state mismatch", "provider", name)
			http.Redirect(w, r, flow.Failure, http.StatusFound)
			return
		}
		if e := q.Get("error"); e != "" {
			logger.Info("oauth consent denied", "provider", name, "error", e)
			http.Redirect(w, r, flow.Failure, http.StatusFound)
			return
		}

		account, err := identity.completeFlow(r.Context(), name, p, q.Get("code"), flow.Verifier)
		if err == nil {
			_, err = identity.StartSession(r.Context(), w, account)
		}
		if err != nil {
			logger.Error("oauth login failed", "provider", name, "error", err)
			http.Redirect(w, r, flow.Failure, http.StatusFound)
			return
		}

		logger.Info("login", "provider", name, "account_id", account.ID)
		http.Redirect(w, r, flow.Success, http.StatusFound)
	}
}

func handleLocalLogin(identity *Identity, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !identity.localAuth {
			writeError(w, http.StatusNotFound, "local login disabled")
			return
		}

		var req LocalLoginRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		account, err := identity.store.LocalAccountByEmail(r.Context(), req.Email)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			writeStoreError(w, r, logger, "login", err)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		sess, err := identity.StartSession(r.Context(), w, account)
		if err != nil {
			writeStoreError(w, r, logger, "login", err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionResponse(sess))
	}
}

func handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, newSessionResponse(sessionFrom(r)))
	}
}

func handleGetAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a := accountFrom(r)
		writeJSON(w, http.StatusOK, AccountResponse{
			ID:       a.ID,
			Provider: a.Provider,
			Name:     a.Name,
			Email:    a.Email,
		})
	}
}

func handleDeleteSession(identity *Identity, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := identity.EndSession(w, r); err != nil {
			writeStoreError(w, r, logger, "logout", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
