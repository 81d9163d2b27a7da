package server

import (
	"context"
	"log/slog"

	"github.com/playperu/amongirl/internal/amongirl"
)

// Gate resolves an authenticated account to its player, creating the
// player and its tasks the first time the account is seen.
type Gate struct {
	store    Store
	feed     *Feed
	identity *Identity
	logger   *slog.Logger
}

func NewGate(store Store, feed *Feed, identity *Identity, logger *slog.Logger) *Gate {
	return &Gate{store: store, feed: feed, identity: identity, logger: logger}
}

func (g *Gate) Resolve(ctx context.Context, a Account) (amongirl.Player, error) {
	p, tasks, created, err := g.store.EnsurePlayer(ctx, a, g.identity.IsAdminEmail(a.Email))
	if err != nil {
		return amongirl.Player{}, err
	}
	if created {
		g.logger.Info("player created", "player_id", p.ID, "account_id", a.ID, "admin", p.IsAdmin)
		g.feed.PlayerChanged(ctx, eventCreate, p)
		for _, t := range tasks {
			g.feed.TaskChanged(ctx, eventCreate, t)
		}
	}
	return p, nil
}
