package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/amongirl/internal/amongirl"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrNoTasks       = errors.New("task generator produced no tasks")
	ErrInvalidTarget = errors.New("player cannot be eliminated")
)

// CooldownError is returned when an emergency meeting is called again
// before the caller's cooldown has elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("emergency meeting on cooldown for %s", e.Remaining.Round(time.Second))
}

// Account is an identity known to the session provider.
type Account struct {
	ID           string    `json:"id"`
	Provider     string    `json:"provider"`
	Subject      string    `json:"subject"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Store interface {
	UpsertAccount(ctx context.Context, a Account) (Account, error)
	CreateLocalAccount(ctx context.Context, email, name, passwordHash string) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
	LocalAccountByEmail(ctx context.Context, email string) (Account, error)
	CreateSession(ctx context.Context, accountID, provider string, ttl time.Duration) (Session, error)
	SessionByID(ctx context.Context, id string) (Session, error)
	DeleteSession(ctx context.Context, id string) error

	EnsurePlayer(ctx context.Context, a Account, isAdmin bool) (amongirl.Player, []amongirl.Task, bool, error)
	PlayerByAccount(ctx context.Context, accountID string) (amongirl.Player, error)
	GetPlayer(ctx context.Context, id string) (amongirl.Player, error)
	ListPlayers(ctx context.Context) ([]amongirl.Player, error)
	UpdatePlayer(ctx context.Context, id string, fn func(*amongirl.Player) error) (amongirl.Player, error)
	SetAdminByEmail(ctx context.Context, email string, isAdmin bool) (amongirl.Player, error)

	ListTasks(ctx context.Context, playerID string) ([]amongirl.Task, error)
	ListAllTasks(ctx context.Context) (map[string][]amongirl.Task, error)
	RepairTasks(ctx context.Context, playerID string) ([]amongirl.Task, *amongirl.Task, error)
	CompleteTask(ctx context.Context, playerID, taskID string) ([]amongirl.Task, error)
	ApproveTask(ctx context.Context, taskID string) (amongirl.Task, error)
	RevealFirstTask(ctx context.Context, playerID string) (amongirl.Task, bool, error)

	AppendPhase(ctx context.Context, status amongirl.PhaseStatus, actorID string) (amongirl.Phase, error)
	CurrentPhase(ctx context.Context) (amongirl.Phase, error)
	Eliminate(ctx context.Context, killerID, victimID string) (amongirl.Player, amongirl.Event, error)
	CallMeeting(ctx context.Context, caller amongirl.Player, cooldown time.Duration) (amongirl.Event, error)
	ListEvents(ctx context.Context, limit int) ([]amongirl.Event, error)

	Ping(ctx context.Context) error
}
