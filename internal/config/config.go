package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath    string     `env:"DB_PATH" envDefault:"data/amongirl.db"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir    string     `env:"SPA_DIR" envDefault:"../web/dist"`
	PublicURL string     `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`

	SessionSecret string        `env:"SESSION_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	RedisURL           string        `env:"REDIS_URL"`
	RealtimeRetries    int           `env:"REALTIME_RETRIES" envDefault:"5"`
	RealtimeRetryDelay time.Duration `env:"REALTIME_RETRY_DELAY" envDefault:"2s"`

	Google            OAuthProvider `envPrefix:"GOOGLE_"`
	RedirectAllowlist []string      `env:"REDIRECT_ALLOWLIST" envSeparator:","`
	LocalAuth         bool          `env:"LOCAL_AUTH" envDefault:"false"`
	AdminEmails       []string      `env:"ADMIN_EMAILS" envSeparator:","`

	MeetingCooldown time.Duration `env:"MEETING_COOLDOWN" envDefault:"60s"`
	TaskCatalog     string        `env:"TASK_CATALOG"`

	PlayersCollection string `env:"PLAYERS_COLLECTION" envDefault:"players"`
	TasksCollection   string `env:"TASKS_COLLECTION" envDefault:"tasks"`
	EventsCollection  string `env:"EVENTS_COLLECTION" envDefault:"events"`
}

// OAuthProvider configures an OpenID Connect style authorization-code
// provider. Endpoints default to Google's.
type OAuthProvider struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URL"`
	AuthURL      string   `env:"AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	TokenURL     string   `env:"TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	UserInfoURL  string   `env:"USERINFO_URL" envDefault:"https://openidconnect.googleapis.com/v1/userinfo"`
	Scopes       []string `env:"SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
}

func (p OAuthProvider) Enabled() bool { return p.ClientID != "" }

// Load reads configuration from the environment, after applying an
// optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	return &cfg, nil
}
