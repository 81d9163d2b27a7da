package amongirl_test

import (
	"testing"

	"github.com/playperu/amongirl/internal/amongirl"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name   string
		player *amongirl.Player
		want   amongirl.View
	}{
		{name: "no player", want: amongirl.ViewUnauthenticated},
		{name: "crewmate", player: &amongirl.Player{Role: amongirl.RoleCrewmate, Status: amongirl.StatusAlive}, want: amongirl.ViewCrewmate},
		{name: "imposter", player: &amongirl.Player{Role: amongirl.RoleImposter, Status: amongirl.StatusAlive}, want: amongirl.ViewImposter},
		{name: "dead crewmate", player: &amongirl.Player{Role: amongirl.RoleCrewmate, Status: amongirl.StatusDead}, want: amongirl.ViewSpectator},
		{name: "dead imposter", player: &amongirl.Player{Role: amongirl.RoleImposter, Status: amongirl.StatusDead}, want: amongirl.ViewSpectator},
		{name: "admin crewmate", player: &amongirl.Player{IsAdmin: true, Role: amongirl.RoleCrewmate, Status: amongirl.StatusAlive}, want: amongirl.ViewAdmin},
		{name: "admin dead imposter", player: &amongirl.Player{IsAdmin: true, Role: amongirl.RoleImposter, Status: amongirl.StatusDead}, want: amongirl.ViewAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := amongirl.Route(tt.player); got != tt.want {
				t.Errorf("Route = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCounts(t *testing.T) {
	players := []amongirl.Player{
		{ID: "a", Role: amongirl.RoleCrewmate, Status: amongirl.StatusAlive},
		{ID: "b", Role: amongirl.RoleCrewmate, Status: amongirl.StatusDead},
		{ID: "c", Role: amongirl.RoleImposter, Status: amongirl.StatusAlive},
		{ID: "d", Role: amongirl.RoleCrewmate, Status: amongirl.StatusAlive, IsAdmin: true},
	}

	got := amongirl.CountPlayers(players)
	want := amongirl.PlayerCounts{Total: 4, Alive: 3, Dead: 1, Imposters: 1}
	if got != want {
		t.Errorf("CountPlayers = %+v, want %+v", got, want)
	}

}

func TestCountForImposter(t *testing.T) {
	players := []amongirl.Player{
		{ID: "self", Role: amongirl.RoleImposter, Status: amongirl.StatusAlive},
		{ID: "crew", Role: amongirl.RoleCrewmate, Status: amongirl.StatusAlive},
		{ID: "dead-crew", Role: amongirl.RoleCrewmate, Status: amongirl.StatusDead},
		{ID: "dead-imp", Role: amongirl.RoleImposter, Status: amongirl.StatusDead},
		{ID: "gm", Role: amongirl.RoleCrewmate, Status: amongirl.StatusAlive, IsAdmin: true},
	}

	got := amongirl.CountForImposter(players, "self")
	want := amongirl.ImposterCounts{Crewmates: 1, Imposters: 0, Alive: 1, Eliminated: 2}
	if got != want {
		t.Errorf("CountForImposter = %+v, want %+v", got, want)
	}

	// A second alive imposter is counted as remaining.
	players = append(players, amongirl.Player{ID: "imp2", Role: amongirl.RoleImposter, Status: amongirl.StatusAlive})
	got = amongirl.CountForImposter(players, "self")
	want = amongirl.ImposterCounts{Crewmates: 1, Imposters: 1, Alive: 2, Eliminated: 2}
	if got != want {
		t.Errorf("with second imposter = %+v, want %+v", got, want)
	}
}

func TestCanEliminate(t *testing.T) {
	imp := amongirl.Player{ID: "imp", Role: amongirl.RoleImposter, Status: amongirl.StatusAlive}
	crew := amongirl.Player{ID: "crew", Role: amongirl.RoleCrewmate, Status: amongirl.StatusAlive}

	tests := []struct {
		name   string
		killer amongirl.Player
		target amongirl.Player
		want   bool
	}{
		{name: "imposter kills crewmate", killer: imp, target: crew, want: true},
		{name: "self", killer: imp, target: imp},
		{name: "crewmate killer", killer: crew, target: imp},
		{name: "dead target", killer: imp, target: amongirl.Player{ID: "x", Role: amongirl.RoleCrewmate, Status: amongirl.StatusDead}},
		{name: "fellow imposter", killer: imp, target: amongirl.Player{ID: "y", Role: amongirl.RoleImposter, Status: amongirl.StatusAlive}},
		{name: "admin target", killer: imp, target: amongirl.Player{ID: "z", Role: amongirl.RoleCrewmate, Status: amongirl.StatusAlive, IsAdmin: true}},
		{name: "dead killer", killer: amongirl.Player{ID: "imp", Role: amongirl.RoleImposter, Status: amongirl.StatusDead}, target: crew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := amongirl.CanEliminate(tt.killer, tt.target); got != tt.want {
				t.Errorf("CanEliminate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoleToggle(t *testing.T) {
	if amongirl.RoleCrewmate.Toggle() != amongirl.RoleImposter {
		t.Error("crewmate should toggle to imposter")
	}
	if amongirl.RoleImposter.Toggle() != amongirl.RoleCrewmate {
		t.Error("imposter should toggle to crewmate")
	}
}
