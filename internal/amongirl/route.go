package amongirl

// View is the screen a player is routed to.
type View string

const (
	ViewUnauthenticated View = "unauthenticated"
	ViewAdmin           View = "admin"
	ViewSpectator       View = "spectator"
	ViewImposter        View = "imposter"
	ViewCrewmate        View = "crewmate"
)

// Route derives the view from the full player record. It is evaluated on
// every change, so only the latest record matters. Admin wins over
// everything and death wins over role.
func Route(p *Player) View {
	switch {
	case p == nil:
		return ViewUnauthenticated
	case p.IsAdmin:
		return ViewAdmin
	case p.Status == StatusDead:
		return ViewSpectator
	case p.Role == RoleImposter:
		return ViewImposter
	default:
		return ViewCrewmate
	}
}

// PlayerCounts is the admin console tally.
type PlayerCounts struct {
	Total     int `json:"total"`
	Alive     int `json:"alive"`
	Dead      int `json:"dead"`
	Imposters int `json:"imposters"`
}

func CountPlayers(players []Player) PlayerCounts {
	var c PlayerCounts
	for _, p := range players {
		c.Total++
		if p.Status == StatusDead {
			c.Dead++
		} else {
			c.Alive++
		}
		if p.Role == RoleImposter {
			c.Imposters++
		}
	}
	return c
}

// ImposterCounts is the imposter console tally as seen by one imposter.
// Crewmates and Imposters count the players still alive. The caller and
// admins are left out.
type ImposterCounts struct {
	Crewmates  int `json:"crewmates"`
	Imposters  int `json:"imposters"`
	Alive      int `json:"alive"`
	Eliminated int `json:"eliminated"`
}

func CountForImposter(players []Player, selfID string) ImposterCounts {
	var c ImposterCounts
	for _, p := range players {
		if p.IsAdmin || p.ID == selfID {
			continue
		}
		if p.Status == StatusDead {
			c.Eliminated++
			continue
		}
		c.Alive++
		if p.Role == RoleImposter {
			c.Imposters++
		} else {
			c.Crewmates++
		}
	}
	return c
}

// CanEliminate reports whether killer may eliminate target.
func CanEliminate(killer, target Player) bool {
	return killer.ID != target.ID &&
		killer.Role == RoleImposter && killer.Status == StatusAlive &&
		!target.IsAdmin && target.Status == StatusAlive && target.Role != RoleImposter
}
