package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/amongirl/internal/amongirl"
	"github.com/playperu/amongirl/internal/config"
	"github.com/playperu/amongirl/internal/database"
	"github.com/playperu/amongirl/internal/migrations"
)

const testSecret = "test-secret-test-secret-test-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupStore(t *testing.T) *DocStore {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := migrations.Run(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewDocStore(db, amongirl.DefaultCatalog())
}

func testConfig() *config.Config {
	return &config.Config{
		PublicURL:       "http://game.test",
		SessionSecret:   testSecret,
		SessionTTL:      time.Hour,
		LocalAuth:       true,
		AdminEmails:     []string{"gm@example.com"},
		MeetingCooldown: time.Minute,
	}
}

type testApp struct {
	store   *DocStore
	broker  *MemoryBroker
	handler http.Handler
}

func newTestApp(t *testing.T, cfg *config.Config) *testApp {
	t.Helper()
	logger := discardLogger()
	store := setupStore(t)
	broker := NewMemoryBroker()

	deps := Deps{
		Store:           store,
		Feed:            NewFeed(broker, DefaultCollections(), logger),
		Identity:        NewIdentity(store, cfg),
		PublicURL:       cfg.PublicURL,
		MeetingCooldown: cfg.MeetingCooldown,
	}
	return &testApp{
		store:   store,
		broker:  broker,
		handler: NewHandler(logger, deps, nil),
	}
}

// login creates a local account and signs in, returning the session
// cookies.
func (a *testApp) login(t *testing.T, email, name string) []*http.Cookie {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.store.CreateLocalAccount(context.Background(), email, name, string(hash)); err != nil {
		t.Fatalf("create account: %v", err)
	}

	w := a.do(t, http.MethodPost, "/api/auth/local", nil, LocalLoginRequest{Email: email, Password: "password"})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, w.Code, w.Body.String())
	}
	return w.Result().Cookies()
}

// join logs in and resolves the player through the gate.
func (a *testApp) join(t *testing.T, email, name string) ([]*http.Cookie, amongirl.Player) {
	t.Helper()
	cookies := a.login(t, email, name)
	w := a.do(t, http.MethodGet, "/api/me", cookies, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me %s: expected 200, got %d: %s", email, w.Code, w.Body.String())
	}
	var resp MeResponse
	decode(t, w, &resp)
	return cookies, resp.Player
}

func (a *testApp) do(t *testing.T, method, path string, cookies []*http.Cookie, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// makeImposter flips a player's role directly in the store.
func (a *testApp) makeImposter(t *testing.T, id string) {
	t.Helper()
	_, err := a.store.UpdatePlayer(context.Background(), id, func(p *amongirl.Player) error {
		p.Role = amongirl.RoleImposter
		return nil
	})
	if err != nil {
		t.Fatalf("make imposter: %v", err)
	}
}
