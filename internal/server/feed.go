package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/playperu/amongirl/internal/amongirl"
)

const (
	eventCreate = "create"
	eventUpdate = "update"

	// phaseChannel carries game phase transitions.
	phaseChannel = "game.phase"
)

// Collections names the document collections as they appear in realtime
// channel names.
type Collections struct {
	Players string
	Tasks   string
	Events  string
}

func DefaultCollections() Collections {
	return Collections{Players: "players", Tasks: "tasks", Events: "events"}
}

func collectionChannel(collection string) string {
	return "collections." + collection + ".documents"
}

func documentChannel(collection, id string) string {
	return collectionChannel(collection) + "." + id
}

func (c Collections) PlayerChannel(playerID string) string {
	return documentChannel(c.Players, playerID)
}

func (c Collections) PlayerTasksChannel(playerID string) string {
	return "collections." + c.Tasks + ".players." + playerID
}

func (c Collections) EventsChannel() string {
	return collectionChannel(c.Events)
}

// DefaultChannels are the channels a player's client subscribes to.
func (c Collections) DefaultChannels(p amongirl.Player) []string {
	return []string{c.PlayerChannel(p.ID), c.PlayerTasksChannel(p.ID), c.EventsChannel(), phaseChannel}
}

// CanSubscribe reports whether p may listen on channel. Admins see
// everything; imposters may also watch the whole players collection.
func (c Collections) CanSubscribe(p amongirl.Player, channel string) bool {
	if p.IsAdmin {
		return true
	}
	switch channel {
	case c.PlayerChannel(p.ID), c.PlayerTasksChannel(p.ID), c.EventsChannel(), phaseChannel:
		return true
	}
	if p.Role == amongirl.RoleImposter {
		players := collectionChannel(c.Players)
		return channel == players || strings.HasPrefix(channel, players+".")
	}
	return false
}

// Feed turns document changes into notifications.
type Feed struct {
	broker      Broker
	collections Collections
	logger      *slog.Logger
	now         func() time.Time
}

func NewFeed(broker Broker, collections Collections, logger *slog.Logger) *Feed {
	return &Feed{
		broker:      broker,
		collections: collections,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (f *Feed) Collections() Collections { return f.collections }

func (f *Feed) Subscribe(channels ...string) *Subscription {
	return f.broker.Subscribe(channels...)
}

func (f *Feed) PlayerChanged(ctx context.Context, eventType string, p amongirl.Player) {
	f.publish(ctx, f.collections.Players, p.ID, eventType, p,
		collectionChannel(f.collections.Players),
		f.collections.PlayerChannel(p.ID),
	)
}

func (f *Feed) TaskChanged(ctx context.Context, eventType string, t amongirl.Task) {
	f.publish(ctx, f.collections.Tasks, t.ID, eventType, t,
		collectionChannel(f.collections.Tasks),
		documentChannel(f.collections.Tasks, t.ID),
		f.collections.PlayerTasksChannel(t.PlayerID),
	)
}

func (f *Feed) EventCreated(ctx context.Context, e amongirl.Event) {
	f.publish(ctx, f.collections.Events, e.ID, eventCreate, e,
		collectionChannel(f.collections.Events),
		documentChannel(f.collections.Events, e.ID),
	)
}

func (f *Feed) PhaseChanged(ctx context.Context, p amongirl.Phase) {
	f.publish(ctx, "game", "phase", eventUpdate, p, phaseChannel)
}

func (f *Feed) publish(ctx context.Context, collection, id, eventType string, doc any, channels ...string) {
	payload, err := json.Marshal(doc)
	if err != nil {
		f.logger.Error("encoding notification", "collection", collection, "id", id, "error", err)
		return
	}
	events := make([]string, len(channels))
	for i, c := range channels {
		events[i] = c + "." + eventType
	}
	f.broker.Publish(ctx, Notification{
		Events:     events,
		Channels:   channels,
		EventType:  eventType,
		Collection: collection,
		DocumentID: id,
		Payload:    payload,
		Timestamp:  f.now(),
	})
}
