package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/playperu/amongirl/internal/config"
)

const (
	sessionCookieName = "amongirl_session"
	flowCookieName    = "amongirl_oauth"
	flowTTL           = 10 * time.Minute
	tokenIssuer       = "amongirl"
)

var errNoSession = errors.New("no valid session")

// sessionClaims is the session cookie payload. The session id lives in the
// jti claim so that deleting the session row revokes the cookie.
type sessionClaims struct {
	jwt.RegisteredClaims
	Provider string `json:"provider"`
}

// flowClaims carries OAuth flow state between start and callback. The jti
// is the nonce sent as the OAuth state parameter.
type flowClaims struct {
	jwt.RegisteredClaims
	Provider string `json:"provider"`
	Verifier string `json:"verifier"`
	Success  string `json:"success"`
	Failure  string `json:"failure"`
}

// userInfo is the subset of the OpenID Connect userinfo response we use.
type userInfo struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

type oauthProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// Identity issues and verifies sessions, and drives the OAuth flow.
type Identity struct {
	store       Store
	secret      []byte
	ttl         time.Duration
	publicURL   string
	allowlist   []string
	localAuth   bool
	adminEmails map[string]bool
	providers   map[string]oauthProvider
	now         func() time.Time
}

func NewIdentity(store Store, cfg *config.Config) *Identity {
	id := &Identity{
		store:       store,
		secret:      []byte(cfg.SessionSecret),
		ttl:         cfg.SessionTTL,
		publicURL:   strings.TrimRight(cfg.PublicURL, "/"),
		allowlist:   cfg.RedirectAllowlist,
		localAuth:   cfg.LocalAuth,
		adminEmails: make(map[string]bool),
		providers:   make(map[string]oauthProvider),
		now:         time.Now,
	}
	for _, e := range cfg.AdminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			id.adminEmails[e] = true
		}
	}
	if cfg.Google.Enabled() {
		id.providers["google"] = newOAuthProvider(cfg.Google, id.publicURL+"/api/auth/google/callback")
	}
	return id
}

func newOAuthProvider(p config.OAuthProvider, defaultRedirect string) oauthProvider {
	redirect := p.RedirectURL
	if redirect == "" {
		redirect = defaultRedirect
	}
	return oauthProvider{
		config: &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  redirect,
			Scopes:       p.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   p.AuthURL,
				TokenURL:  p.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: p.UserInfoURL,
	}
}

// IsAdminEmail reports whether email is bootstrapped as an admin.
func (id *Identity) IsAdminEmail(email string) bool {
	return id.adminEmails[strings.ToLower(strings.TrimSpace(email))]
}

func (id *Identity) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(id.secret)
}

func (id *Identity) parse(token string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return id.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(id.now),
	)
	return err
}

func (id *Identity) secure() bool {
	return strings.HasPrefix(id.publicURL, "https://")
}

func (id *Identity) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   id.secure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (id *Identity) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   id.secure(),
		SameSite: http.SameSiteLaxMode,
	})
}

// StartSession creates a session for the account and sets the cookie.
func (id *Identity) StartSession(ctx context.Context, w http.ResponseWriter, a Account) (Session, error) {
	sess, err := id.store.CreateSession(ctx, a.ID, a.Provider, id.ttl)
	if err != nil {
		return Session{}, fmt.Errorf("creating session: %w", err)
	}
	token, err := id.sign(sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   a.ID,
			ID:        sess.ID,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
		Provider: a.Provider,
	})
	if err != nil {
		return Session{}, fmt.Errorf("signing session: %w", err)
	}
	id.setCookie(w, sessionCookieName, token, id.ttl)
	return sess, nil
}

// SessionFromRequest verifies the session cookie and returns the live
// session and its account.
func (id *Identity) SessionFromRequest(r *http.Request) (Session, Account, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return Session{}, Account{}, errNoSession
	}
	var claims sessionClaims
	if err := id.parse(cookie.Value, &claims); err != nil {
		return Session{}, Account{}, errNoSession
	}

	sess, err := id.store.SessionByID(r.Context(), claims.ID)
	if errors.Is(err, ErrNotFound) || (err == nil && sess.AccountID != claims.Subject) {
		return Session{}, Account{}, errNoSession
	}
	if err != nil {
		return Session{}, Account{}, err
	}
	a, err := id.store.AccountByID(r.Context(), sess.AccountID)
	if errors.Is(err, ErrNotFound) {
		return Session{}, Account{}, errNoSession
	}
	if err != nil {
		return Session{}, Account{}, err
	}
	return sess, a, nil
}

// EndSession deletes the current session, if any, and clears the cookie.
func (id *Identity) EndSession(w http.ResponseWriter, r *http.Request) error {
	defer id.clearCookie(w, sessionCookieName)

	sess, _, err := id.SessionFromRequest(r)
	if errors.Is(err, errNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := id.store.DeleteSession(r.Context(), sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// allowedRedirect reports whether target lies under the public URL or an
// allowlisted prefix. Scheme and host must match exactly and the path must
// continue the prefix at a "/" boundary.
func (id *Identity) allowedRedirect(target string) bool {
	u, err := url.Parse(target)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if id.publicURL != "" && underPrefix(u, id.publicURL) {
		return true
	}
	for _, prefix := range id.allowlist {
		if prefix != "" && underPrefix(u, prefix) {
			return true
		}
	}
	return false
}

func underPrefix(u *url.URL, prefix string) bool {
	p, err := url.Parse(prefix)
	if err != nil || !p.IsAbs() || u.User != nil {
		return false
	}
	if !strings.EqualFold(u.Scheme, p.Scheme) || !strings.EqualFold(u.Host, p.Host) {
		return false
	}
	base := strings.TrimSuffix(p.Path, "/")
	return u.Path == base || strings.HasPrefix(u.Path, base+"/")
}

// beginFlow stores the PKCE verifier and redirect targets in a short-lived
// cookie and returns the provider's consent URL.
func (id *Identity) beginFlow(w http.ResponseWriter, name string, p oauthProvider, nonce, success, failure string) (string, error) {
	verifier := oauth2.GenerateVerifier()
	now := id.now()
	token, err := id.sign(flowClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(flowTTL)),
		},
		Provider: name,
		Verifier: verifier,
		Success:  success,
		Failure:  failure,
	})
	if err != nil {
		return "", err
	}
	id.setCookie(w, flowCookieName, token, flowTTL)
	return p.config.AuthCodeURL(nonce, oauth2.S256ChallengeOption(verifier)), nil
}

func (id *Identity) flowFromRequest(r *http.Request) (flowClaims, error) {
	var claims flowClaims
	cookie, err := r.Cookie(flowCookieName)
	if err != nil || cookie.Value == "" {
		return claims, errors.New("missing oauth flow cookie")
	}
	if err := id.parse(cookie.Value, &claims); err != nil {
		return claims, fmt.Errorf("invalid oauth flow cookie: %w", err)
	}
	return claims, nil
}

// completeFlow exchanges the authorization code and resolves the account.
func (id *Identity) completeFlow(ctx context.Context, name string, p oauthProvider, code, verifier string) (Account, error) {
	tok, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Account{}, fmt.Errorf("exchanging code: %w", err)
	}

	resp, err := p.config.Client(ctx, tok).Get(p.userInfoURL)
	if err != nil {
		return Account{}, fmt.Errorf("fetching userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Account{}, fmt.Errorf("fetching userinfo: status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Account{}, fmt.Errorf("decoding userinfo: %w", err)
	}
	if info.Subject == "" {
		return Account{}, errors.New("userinfo has no subject")
	}
	if info.Name == "" {
		info.Name, _, _ = strings.Cut(info.Email, "@")
	}

	return id.store.UpsertAccount(ctx, Account{
		Provider: name,
		Subject:  info.Subject,
		Name:     info.Name,
		Email:    strings.ToLower(info.Email),
	})
}
