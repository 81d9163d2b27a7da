package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/amongirl/internal/amongirl"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// gameStateDoc is the single-row projection of the phase log.
type gameStateDoc struct {
	Phase amongirl.Phase `json:"phase"`
}

// DocStore implements Store using per-collection tables with JSONB data
// columns. Every multi-document change runs in one transaction.
type DocStore struct {
	db      *sql.DB
	catalog amongirl.Catalog
	now     func() time.Time
	pick    func(n int) int
	newID   func() string
}

func NewDocStore(db *sql.DB, catalog amongirl.Catalog) *DocStore {
	return &DocStore{
		db:      db,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
		pick:    rand.IntN,
		newID:   uuid.NewString,
	}
}

func (s *DocStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Generic helpers, same shape for every collection.

func getDoc(ctx context.Context, q querier, table, id string, dest any) error {
	var data string
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT json(data) FROM %s WHERE id = ?`, table), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", table, id, err)
	}
	return nil
}

func queryDocs[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var d T
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("decoding document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func encode(doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (s *DocStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Per-table put helpers. Each table extracts its own index columns.

func putAccount(ctx context.Context, q querier, a Account) error {
	data, err := encode(a)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO accounts (id, provider, subject, email, data) VALUES (?, ?, ?, ?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET email = excluded.email, data = excluded.data`,
		a.ID, a.Provider, a.Subject, a.Email, data,
	)
	return err
}

func putPlayer(ctx context.Context, q querier, p amongirl.Player) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := encode(p)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO players (id, account_id, data) VALUES (?, ?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		p.ID, p.AccountID, data,
	)
	return err
}

func putTask(ctx context.Context, q querier, t amongirl.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	data, err := encode(t)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO tasks (id, player_id, ord, data) VALUES (?, ?, ?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		t.ID, t.PlayerID, t.Order, data,
	)
	return err
}

func putEvent(ctx context.Context, q querier, e amongirl.Event) error {
	data, err := encode(e)
	if err != nil {
		return err
	}
	var caller sql.NullString
	if e.CallerID != "" {
		caller = sql.NullString{String: e.CallerID, Valid: true}
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO events (id, type, caller, at, data) VALUES (?, ?, ?, ?, jsonb(?))`,
		e.ID, string(e.Type), caller, e.At.Format(time.RFC3339Nano), data,
	)
	return err
}

// Identity

func (s *DocStore) UpsertAccount(ctx context.Context, a Account) (Account, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := queryDocs[Account](ctx, tx,
			`SELECT json(data) FROM accounts WHERE provider = ? AND subject = ?`, a.Provider, a.Subject,
		)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			a.ID = existing[0].ID
			a.CreatedAt = existing[0].CreatedAt
			if a.PasswordHash == "" {
				a.PasswordHash = existing[0].PasswordHash
			}
		} else {
			a.ID = s.newID()
			a.CreatedAt = s.now()
		}
		return putAccount(ctx, tx, a)
	})
	return a, err
}

func (s *DocStore) CreateLocalAccount(ctx context.Context, email, name, passwordHash string) (Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.UpsertAccount(ctx, Account{
		Provider:     "local",
		Subject:      email,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
	})
}

func (s *DocStore) AccountByID(ctx context.Context, id string) (Account, error) {
	var a Account
	err := getDoc(ctx, s.db, "accounts", id, &a)
	return a, err
}

func (s *DocStore) LocalAccountByEmail(ctx context.Context, email string) (Account, error) {
	accounts, err := queryDocs[Account](ctx, s.db,
		`SELECT json(data) FROM accounts WHERE provider = 'local' AND subject = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	)
	if err != nil {
		return Account{}, err
	}
	if len(accounts) == 0 {
		return Account{}, ErrNotFound
	}
	return accounts[0], nil
}

func (s *DocStore) CreateSession(ctx context.Context, accountID, provider string, ttl time.Duration) (Session, error) {
	now := s.now()
	sess := Session{
		ID:        s.newID(),
		AccountID: accountID,
		Provider:  provider,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	data, err := encode(sess)
	if err != nil {
		return Session{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, account_id, expires_at, data) VALUES (?, ?, ?, jsonb(?))`,
		sess.ID, sess.AccountID, sess.ExpiresAt.Format(time.RFC3339Nano), data,
	)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *DocStore) SessionByID(ctx context.Context, id string) (Session, error) {
	var sess Session
	if err := getDoc(ctx, s.db, "sessions", id, &sess); err != nil {
		return Session{}, err
	}
	if !s.now().Before(sess.ExpiresAt) {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *DocStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Players

func (s *DocStore) PlayerByAccount(ctx context.Context, accountID string) (amongirl.Player, error) {
	return playerByAccount(ctx, s.db, accountID)
}

func playerByAccount(ctx context.Context, q querier, accountID string) (amongirl.Player, error) {
	players, err := queryDocs[amongirl.Player](ctx, q,
		`SELECT json(data) FROM players WHERE account_id = ?`, accountID,
	)
	if err != nil {
		return amongirl.Player{}, err
	}
	if len(players) == 0 {
		return amongirl.Player{}, ErrNotFound
	}
	return players[0], nil
}

// EnsurePlayer returns the player for the account, creating it together
// with its generated tasks on first sight. The boolean reports creation.
func (s *DocStore) EnsurePlayer(ctx context.Context, a Account, isAdmin bool) (amongirl.Player, []amongirl.Task, bool, error) {
	var (
		p       amongirl.Player
		tasks   []amongirl.Task
		created bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := playerByAccount(ctx, tx, a.ID)
		if err == nil {
			p = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		now := s.now()
		p = amongirl.NewPlayer(s.newID(), a.ID, a.Name, a.Email, now)
		p.IsAdmin = isAdmin
		tasks = amongirl.GenerateTasks(s.catalog, p.ID, s.pick, s.newID, now)
		if len(tasks) == 0 {
			return ErrNoTasks
		}

		if err := putPlayer(ctx, tx, p); err != nil {
			return fmt.Errorf("creating player: %w", err)
		}
		for _, t := range tasks {
			if err := putTask(ctx, tx, t); err != nil {
				return fmt.Errorf("creating task %d: %w", t.Order, err)
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return amongirl.Player{}, nil, false, err
	}
	return p, tasks, created, nil
}

func (s *DocStore) GetPlayer(ctx context.Context, id string) (amongirl.Player, error) {
	var p amongirl.Player
	err := getDoc(ctx, s.db, "players", id, &p)
	return p, err
}

func (s *DocStore) ListPlayers(ctx context.Context) ([]amongirl.Player, error) {
	players, err := queryDocs[amongirl.Player](ctx, s.db,
		`SELECT json(data) FROM players ORDER BY data ->> '$.createdAt', id`,
	)
	if err != nil {
		return nil, err
	}
	if players == nil {
		players = []amongirl.Player{}
	}
	return players, nil
}

// UpdatePlayer loads a player, applies fn, and saves it in a transaction.
func (s *DocStore) UpdatePlayer(ctx context.Context, id string, fn func(*amongirl.Player) error) (amongirl.Player, error) {
	var p amongirl.Player
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := getDoc(ctx, tx, "players", id, &p); err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		p.UpdatedAt = s.now()
		return putPlayer(ctx, tx, p)
	})
	return p, err
}

func (s *DocStore) SetAdminByEmail(ctx context.Context, email string, isAdmin bool) (amongirl.Player, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	players, err := queryDocs[amongirl.Player](ctx, s.db,
		`SELECT json(data) FROM players WHERE lower(data ->> '$.email') = ?`, email,
	)
	if err != nil {
		return amongirl.Player{}, err
	}
	if len(players) == 0 {
		return amongirl.Player{}, ErrNotFound
	}
	return s.UpdatePlayer(ctx, players[0].ID, func(p *amongirl.Player) error {
		p.IsAdmin = isAdmin
		return nil
	})
}

// Tasks

func listTasks(ctx context.Context, q querier, playerID string) ([]amongirl.Task, error) {
	tasks, err := queryDocs[amongirl.Task](ctx, q,
		`SELECT json(data) FROM tasks WHERE player_id = ? ORDER BY ord ASC`, playerID,
	)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []amongirl.Task{}
	}
	return tasks, nil
}

func (s *DocStore) ListTasks(ctx context.Context, playerID string) ([]amongirl.Task, error) {
	return listTasks(ctx, s.db, playerID)
}

// ListAllTasks groups every task by owning player.
func (s *DocStore) ListAllTasks(ctx context.Context) (map[string][]amongirl.Task, error) {
	tasks, err := queryDocs[amongirl.Task](ctx, s.db,
		`SELECT json(data) FROM tasks ORDER BY player_id, ord ASC`,
	)
	if err != nil {
		return nil, err
	}
	byPlayer := make(map[string][]amongirl.Task)
	for _, t := range tasks {
		byPlayer[t.PlayerID] = append(byPlayer[t.PlayerID], t)
	}
	return byPlayer, nil
}

// RepairTasks lists the player's tasks, making the lowest-order incomplete
// task visible when none is current. The changed task, if any, is returned
// alongside the full list.
func (s *DocStore) RepairTasks(ctx context.Context, playerID string) ([]amongirl.Task, *amongirl.Task, error) {
	var (
		tasks   []amongirl.Task
		changed *amongirl.Task
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		tasks, err = listTasks(ctx, tx, playerID)
		if err != nil {
			return err
		}
		idx := amongirl.RepairTasks(tasks, s.now())
		if idx < 0 {
			return nil
		}
		if err := putTask(ctx, tx, tasks[idx]); err != nil {
			return err
		}
		t := tasks[idx]
		changed = &t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return tasks, changed, nil
}

// CompleteTask marks the player's current task complete and reveals the
// next one atomically. It returns the tasks it changed.
func (s *DocStore) CompleteTask(ctx context.Context, playerID, taskID string) ([]amongirl.Task, error) {
	var changed []amongirl.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		tasks, err := listTasks(ctx, tx, playerID)
		if err != nil {
			return err
		}
		idxs, err := amongirl.CompleteTask(tasks, taskID, s.now())
		if errors.Is(err, amongirl.ErrTaskNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		for _, i := range idxs {
			if err := putTask(ctx, tx, tasks[i]); err != nil {
				return err
			}
			changed = append(changed, tasks[i])
		}
		return nil
	})
	return changed, err
}

func (s *DocStore) ApproveTask(ctx context.Context, taskID string) (amongirl.Task, error) {
	var t amongirl.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := getDoc(ctx, tx, "tasks", taskID, &t); err != nil {
			return err
		}
		if err := amongirl.ApproveTask(&t, s.now()); err != nil {
			return err
		}
		return putTask(ctx, tx, t)
	})
	return t, err
}

// RevealFirstTask makes the player's order-1 task visible. The boolean
// reports whether anything changed.
func (s *DocStore) RevealFirstTask(ctx context.Context, playerID string) (amongirl.Task, bool, error) {
	var (
		t       amongirl.Task
		changed bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		tasks, err := queryDocs[amongirl.Task](ctx, tx,
			`SELECT json(data) FROM tasks WHERE player_id = ? AND ord = 1`, playerID,
		)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return ErrNotFound
		}
		t = tasks[0]
		if t.Visible {
			return nil
		}
		t.Visible = true
		t.UpdatedAt = s.now()
		changed = true
		return putTask(ctx, tx, t)
	})
	return t, changed, err
}

// Game phase

// AppendPhase records a phase transition and updates the current-phase
// projection in the same transaction.
func (s *DocStore) AppendPhase(ctx context.Context, status amongirl.PhaseStatus, actorID string) (amongirl.Phase, error) {
	phase := amongirl.Phase{Status: status, At: s.now(), ActorID: actorID}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		data, err := encode(phase)
		if err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `INSERT INTO phases (data) VALUES (jsonb(?))`, data)
		if err != nil {
			return err
		}
		if phase.Seq, err = result.LastInsertId(); err != nil {
			return err
		}

		state, err := encode(gameStateDoc{Phase: phase})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO game_state (id, data) VALUES (1, jsonb(?))
			 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
			state,
		)
		return err
	})
	return phase, err
}

// CurrentPhase reads the projection. Before any transition the game is
// waiting.
func (s *DocStore) CurrentPhase(ctx context.Context) (amongirl.Phase, error) {
	var state gameStateDoc
	err := getDoc(ctx, s.db, "game_state", "1", &state)
	if errors.Is(err, ErrNotFound) {
		return amongirl.Phase{Status: amongirl.PhaseWaiting}, nil
	}
	return state.Phase, err
}

// Game events

// Eliminate marks the victim dead, keeping its role, and records the kill
// event in one transaction.
func (s *DocStore) Eliminate(ctx context.Context, killerID, victimID string) (amongirl.Player, amongirl.Event, error) {
	var (
		victim amongirl.Player
		event  amongirl.Event
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var killer amongirl.Player
		if err := getDoc(ctx, tx, "players", killerID, &killer); err != nil {
			return err
		}
		if err := getDoc(ctx, tx, "players", victimID, &victim); err != nil {
			return err
		}
		if !amongirl.CanEliminate(killer, victim) {
			return ErrInvalidTarget
		}

		now := s.now()
		victim.Status = amongirl.StatusDead
		victim.UpdatedAt = now
		if err := putPlayer(ctx, tx, victim); err != nil {
			return err
		}

		event = amongirl.Event{
			ID:       s.newID(),
			Type:     amongirl.EventKill,
			KillerID: killer.ID,
			VictimID: victim.ID,
			At:       now,
		}
		return putEvent(ctx, tx, event)
	})
	return victim, event, err
}

// CallMeeting records an emergency meeting unless the caller's previous
// meeting is younger than cooldown.
func (s *DocStore) CallMeeting(ctx context.Context, caller amongirl.Player, cooldown time.Duration) (amongirl.Event, error) {
	var event amongirl.Event
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		last, err := queryDocs[amongirl.Event](ctx, tx,
			`SELECT json(data) FROM events WHERE type = ? AND caller = ? ORDER BY seq DESC LIMIT 1`,
			string(amongirl.EventEmergencyMeeting), caller.ID,
		)
		if err != nil {
			return err
		}
		if len(last) > 0 {
			if elapsed := now.Sub(last[0].At); elapsed < cooldown {
				return &CooldownError{Remaining: cooldown - elapsed}
			}
		}

		event = amongirl.Event{
			ID:         s.newID(),
			Type:       amongirl.EventEmergencyMeeting,
			CallerID:   caller.ID,
			CallerName: caller.Name,
			Status:     "active",
			At:         now,
		}
		return putEvent(ctx, tx, event)
	})
	return event, err
}

// ListEvents returns the most recent events, newest first.
func (s *DocStore) ListEvents(ctx context.Context, limit int) ([]amongirl.Event, error) {
	events, err := queryDocs[amongirl.Event](ctx, s.db,
		`SELECT json(data) FROM events ORDER BY seq DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []amongirl.Event{}
	}
	return events, nil
}

// Ensure DocStore implements Store at compile time.
var _ Store = (*DocStore)(nil)
