package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/playperu/amongirl/internal/amongirl"
)

func newPlayer(t *testing.T, s *DocStore, subject string) (amongirl.Player, []amongirl.Task) {
	t.Helper()
	ctx := context.Background()
	a, err := s.UpsertAccount(ctx, Account{Provider: "google", Subject: subject, Name: subject, Email: subject + "@example.com"})
	if err != nil {
		t.Fatalf("upsert account: %v", err)
	}
	p, tasks, created, err := s.EnsurePlayer(ctx, a, false)
	if err != nil {
		t.Fatalf("ensure player: %v", err)
	}
	if !created {
		t.Fatal("expected player to be created")
	}
	return p, tasks
}

func TestEnsurePlayer(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	p, tasks := newPlayer(t, s, "alice")
	if p.Role != amongirl.RoleCrewmate || p.Status != amongirl.StatusAlive || p.IsAdmin {
		t.Errorf("unexpected defaults: %+v", p)
	}

	stored, err := s.ListTasks(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 3 || len(tasks) != 3 {
		t.Fatalf("tasks = %d stored, %d returned; want 3", len(stored), len(tasks))
	}
	for i, task := range stored {
		if task.Order != i+1 {
			t.Errorf("task %d order = %d", i, task.Order)
		}
		if task.Visible != (task.Order == 1) {
			t.Errorf("task %d visible = %v", task.Order, task.Visible)
		}
	}

	a, err := s.AccountByID(ctx, p.AccountID)
	if err != nil {
		t.Fatal(err)
	}
	again, _, created, err := s.EnsurePlayer(ctx, a, true)
	if err != nil {
		t.Fatal(err)
	}
	if created || again.ID != p.ID {
		t.Errorf("second ensure: created=%v id=%s, want existing %s", created, again.ID, p.ID)
	}
	if again.IsAdmin {
		t.Error("existing player must not be promoted by a later ensure")
	}
}

func TestEnsurePlayerNoTasks(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	a, err := s.UpsertAccount(ctx, Account{Provider: "google", Subject: "x"})
	if err != nil {
		t.Fatal(err)
	}

	s.newID = func() string { return "" }
	if _, _, _, err := s.EnsurePlayer(ctx, a, false); !errors.Is(err, ErrNoTasks) {
		t.Fatalf("err = %v, want ErrNoTasks", err)
	}
	if _, err := s.PlayerByAccount(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("player should not exist, err = %v", err)
	}
}

func TestUpsertAccountKeepsID(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	first, err := s.UpsertAccount(ctx, Account{Provider: "google", Subject: "sub-1", Email: "a@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.UpsertAccount(ctx, Account{Provider: "google", Subject: "sub-1", Email: "b@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %s vs %s", first.ID, second.ID)
	}
	got, err := s.AccountByID(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Email != "b@example.com" {
		t.Errorf("email = %q, want updated", got.Email)
	}
}

func TestCompleteTaskStore(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p, tasks := newPlayer(t, s, "alice")
	other, otherTasks := newPlayer(t, s, "bob")

	if _, err := s.CompleteTask(ctx, p.ID, tasks[2].ID); !errors.Is(err, amongirl.ErrTaskNotCurrent) {
		t.Fatalf("hidden task: err = %v", err)
	}
	if _, err := s.CompleteTask(ctx, p.ID, otherTasks[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign task: err = %v", err)
	}

	changed, err := s.CompleteTask(ctx, p.ID, tasks[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 2 || changed[0].ID != tasks[0].ID || changed[1].ID != tasks[1].ID {
		t.Fatalf("changed = %+v", changed)
	}

	stored, _ := s.ListTasks(ctx, p.ID)
	if !stored[0].Completed || !stored[1].Visible || stored[2].Visible {
		t.Errorf("after complete: %+v", stored)
	}

	untouched, _ := s.ListTasks(ctx, other.ID)
	if untouched[0].Completed {
		t.Error("other player's task changed")
	}
}

func TestRepairTasksStore(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p, tasks := newPlayer(t, s, "alice")

	// Simulate an interrupted advance.
	broken := tasks[0]
	broken.Completed = true
	if err := putTask(ctx, s.db, broken); err != nil {
		t.Fatal(err)
	}

	list, changed, err := s.RepairTasks(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if changed == nil || changed.ID != tasks[1].ID {
		t.Fatalf("changed = %+v, want task 2", changed)
	}
	if !list[1].Visible {
		t.Error("returned list should reflect the repair")
	}

	_, changed, err = s.RepairTasks(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if changed != nil {
		t.Fatalf("second repair changed %+v", changed)
	}
}

func TestApproveTaskStore(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p, tasks := newPlayer(t, s, "alice")

	if _, err := s.ApproveTask(ctx, tasks[0].ID); !errors.Is(err, amongirl.ErrTaskNotCompleted) {
		t.Fatalf("err = %v, want ErrTaskNotCompleted", err)
	}
	if _, err := s.ApproveTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if _, err := s.CompleteTask(ctx, p.ID, tasks[0].ID); err != nil {
		t.Fatal(err)
	}
	approved, err := s.ApproveTask(ctx, tasks[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if !approved.Approved {
		t.Error("expected approved")
	}

	stored, _ := s.ListTasks(ctx, p.ID)
	if stored[2].Visible {
		t.Error("approval must not reveal tasks")
	}
}

func TestRevealFirstTask(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p, tasks := newPlayer(t, s, "alice")

	hidden := tasks[0]
	hidden.Visible = false
	if err := putTask(ctx, s.db, hidden); err != nil {
		t.Fatal(err)
	}

	got, changed, err := s.RevealFirstTask(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !changed || !got.Visible || got.Order != 1 {
		t.Fatalf("reveal = %+v changed=%v", got, changed)
	}
	if _, changed, _ = s.RevealFirstTask(ctx, p.ID); changed {
		t.Error("second reveal should be a no-op")
	}
	if _, _, err := s.RevealFirstTask(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPhaseProjection(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	phase, err := s.CurrentPhase(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if phase.Status != amongirl.PhaseWaiting {
		t.Fatalf("initial phase = %q", phase.Status)
	}

	if _, err := s.AppendPhase(ctx, amongirl.PhaseActive, "gm"); err != nil {
		t.Fatal(err)
	}
	ended, err := s.AppendPhase(ctx, amongirl.PhaseEnded, "gm")
	if err != nil {
		t.Fatal(err)
	}
	if ended.Seq != 2 {
		t.Errorf("seq = %d, want 2", ended.Seq)
	}

	phase, err = s.CurrentPhase(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if phase.Status != amongirl.PhaseEnded || phase.Seq != 2 || phase.ActorID != "gm" {
		t.Errorf("current = %+v", phase)
	}
}

func TestEliminateStore(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	imp, _ := newPlayer(t, s, "imp")
	crew, _ := newPlayer(t, s, "crew")

	if _, _, err := s.Eliminate(ctx, imp.ID, crew.ID); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("crewmate killer: err = %v", err)
	}

	if _, err := s.UpdatePlayer(ctx, imp.ID, func(p *amongirl.Player) error {
		p.Role = amongirl.RoleImposter
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	victim, event, err := s.Eliminate(ctx, imp.ID, crew.ID)
	if err != nil {
		t.Fatal(err)
	}
	if victim.Status != amongirl.StatusDead || victim.Role != amongirl.RoleCrewmate {
		t.Errorf("victim = %+v", victim)
	}
	if event.Type != amongirl.EventKill || event.KillerID != imp.ID || event.VictimID != crew.ID {
		t.Errorf("event = %+v", event)
	}

	events, err := s.ListEvents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != event.ID {
		t.Errorf("events = %+v", events)
	}

	if _, _, err := s.Eliminate(ctx, imp.ID, crew.ID); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("dead target: err = %v", err)
	}
	if _, _, err := s.Eliminate(ctx, imp.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing target: err = %v", err)
	}
}

func TestCallMeetingCooldown(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p, _ := newPlayer(t, s, "alice")

	now := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	first, err := s.CallMeeting(ctx, p, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if first.CallerID != p.ID || first.CallerName != p.Name || first.Status != "active" {
		t.Errorf("event = %+v", first)
	}

	now = now.Add(20 * time.Second)
	_, err = s.CallMeeting(ctx, p, time.Minute)
	var cd *CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("err = %v, want CooldownError", err)
	}
	if cd.Remaining != 40*time.Second {
		t.Errorf("remaining = %v, want 40s", cd.Remaining)
	}

	// Another player is not affected.
	other, _ := newPlayer(t, s, "bob")
	if _, err := s.CallMeeting(ctx, other, time.Minute); err != nil {
		t.Fatalf("other caller: %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := s.CallMeeting(ctx, p, time.Minute); err != nil {
		t.Fatalf("after cooldown: %v", err)
	}

	events, _ := s.ListEvents(ctx, 2)
	if len(events) != 2 || events[0].CallerID != p.ID {
		t.Errorf("events newest first = %+v", events)
	}
}

func TestSessions(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	a, err := s.UpsertAccount(ctx, Account{Provider: "local", Subject: "a@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	sess, err := s.CreateSession(ctx, a.ID, a.Provider, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SessionByID(ctx, sess.ID); err != nil {
		t.Fatalf("lookup: %v", err)
	}

	s.now = func() time.Time { return sess.ExpiresAt.Add(time.Second) }
	if _, err := s.SessionByID(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired: err = %v", err)
	}

	if err := s.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSession(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
}

func TestSetAdminByEmail(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p, _ := newPlayer(t, s, "alice")

	got, err := s.SetAdminByEmail(ctx, "  ALICE@example.com ", true)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != p.ID || !got.IsAdmin {
		t.Errorf("got %+v", got)
	}
	if _, err := s.SetAdminByEmail(ctx, "nobody@example.com", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStrictBooleans(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p, tasks := newPlayer(t, s, "alice")

	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET data = jsonb_set(data, '$.completed', 'true') WHERE id = ?`, tasks[0].ID,
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ListTasks(ctx, p.ID); err == nil {
		t.Fatal("string-encoded boolean should be rejected")
	}
}

func TestListAllTasks(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	a, _ := newPlayer(t, s, "alice")
	b, _ := newPlayer(t, s, "bob")

	all, err := s.ListAllTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all[a.ID]) != 3 || len(all[b.ID]) != 3 {
		t.Errorf("grouped = %d/%d, want 3/3", len(all[a.ID]), len(all[b.ID]))
	}
}
