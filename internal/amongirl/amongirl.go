// Package amongirl defines the core game types and the pure rules that drive
// them: task generation, task progression and player routing.
// It has no storage or transport dependencies.
package amongirl

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleCrewmate Role = "crewmate"
	RoleImposter Role = "imposter"
)

func (r Role) Valid() bool { return r == RoleCrewmate || r == RoleImposter }

// Toggle flips between crewmate and imposter.
func (r Role) Toggle() Role {
	if r == RoleImposter {
		return RoleCrewmate
	}
	return RoleImposter
}

type Status string

const (
	StatusAlive Status = "alive"
	StatusDead  Status = "dead"
)

func (s Status) Valid() bool { return s == StatusAlive || s == StatusDead }

type Category string

const (
	CategoryCoding   Category = "coding"
	CategoryPhysical Category = "physical"
	CategoryExternal Category = "external"
)

// Categories lists the task pools in the order their tasks are handed out.
var Categories = []Category{CategoryCoding, CategoryPhysical, CategoryExternal}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

type Player struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Status    Status    `json:"status"`
	IsAdmin   bool      `json:"isAdmin"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewPlayer returns a player with the defaults every new account starts with.
func NewPlayer(id, accountID, name, email string, now time.Time) Player {
	return Player{
		ID:        id,
		AccountID: accountID,
		Name:      name,
		Email:     email,
		Role:      RoleCrewmate,
		Status:    StatusAlive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p Player) Validate() error {
	if p.ID == "" || p.AccountID == "" {
		return fmt.Errorf("player: id and accountId are required")
	}
	if !p.Role.Valid() {
		return fmt.Errorf("player %s: invalid role %q", p.ID, p.Role)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("player %s: invalid status %q", p.ID, p.Status)
	}
	return nil
}

type Task struct {
	ID           string    `json:"id"`
	PlayerID     string    `json:"playerId"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	Category     Category  `json:"category"`
	ExternalLink string    `json:"externalLink,omitempty"`
	Completed    bool      `json:"completed"`
	Approved     bool      `json:"approved"`
	Visible      bool      `json:"visible"`
	Order        int       `json:"order"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Current reports whether t is the task the player is working on.
func (t Task) Current() bool { return t.Visible && !t.Completed }

func (t Task) Validate() error {
	if t.ID == "" || t.PlayerID == "" {
		return fmt.Errorf("task: id and playerId are required")
	}
	if !t.Category.Valid() {
		return fmt.Errorf("task %s: invalid category %q", t.ID, t.Category)
	}
	if t.Order < 1 {
		return fmt.Errorf("task %s: order must be positive, got %d", t.ID, t.Order)
	}
	if t.Approved && !t.Completed {
		return fmt.Errorf("task %s: approved before completion", t.ID)
	}
	return nil
}

type PhaseStatus string

const (
	PhaseWaiting PhaseStatus = "waiting"
	PhaseActive  PhaseStatus = "active"
	PhaseEnded   PhaseStatus = "ended"
)

// Phase is one entry of the game phase log. The latest entry is the
// current phase.
type Phase struct {
	Seq     int64       `json:"seq"`
	Status  PhaseStatus `json:"status"`
	At      time.Time   `json:"at"`
	ActorID string      `json:"actorId,omitempty"`
}

type EventType string

const (
	EventEmergencyMeeting EventType = "emergency_meeting"
	EventKill             EventType = "kill"
)

// Event is a broadcast-only game notification. It is never used as the
// source of player state.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	CallerID   string    `json:"callerId,omitempty"`
	CallerName string    `json:"callerName,omitempty"`
	Status     string    `json:"status,omitempty"`
	KillerID   string    `json:"killerId,omitempty"`
	VictimID   string    `json:"victimId,omitempty"`
	At         time.Time `json:"at"`
}
