package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTopic = "amongirl:notifications"

// RedisBroker shares notifications between server instances over Redis
// pub/sub. Local subscribers are served by an embedded MemoryBroker that
// the relay feeds. While the relay is down, publishes are delivered
// locally only.
type RedisBroker struct {
	rdb     *redis.Client
	local   *MemoryBroker
	logger  *slog.Logger
	retries int
	delay   time.Duration
	live    atomic.Bool
}

func NewRedisBroker(rdb *redis.Client, logger *slog.Logger, retries int, delay time.Duration) *RedisBroker {
	return &RedisBroker{
		rdb:     rdb,
		local:   NewMemoryBroker(),
		logger:  logger,
		retries: retries,
		delay:   delay,
	}
}

func (b *RedisBroker) Subscribe(channels ...string) *Subscription {
	return b.local.Subscribe(channels...)
}

func (b *RedisBroker) Publish(ctx context.Context, n Notification) {
	if !b.live.Load() {
		b.local.deliver(n)
		return
	}
	data, err := json.Marshal(n)
	if err == nil {
		err = b.rdb.Publish(ctx, redisTopic, data).Err()
	}
	if err != nil {
		b.logger.Warn("redis publish failed, delivering locally", "error", err)
		b.local.deliver(n)
	}
}

// Run relays Redis messages to local subscribers until ctx is done. A
// failed subscription is retried up to the configured number of times with
// a fixed delay between attempts, then abandoned.
func (b *RedisBroker) Run(ctx context.Context) error {
	failures := 0
	for {
		err := b.relay(ctx)
		if b.live.Swap(false) {
			// A subscription that came up resets the budget.
			failures = 0
		}
		if ctx.Err() != nil {
			return nil
		}

		failures++
		if failures > b.retries {
			b.logger.Error("realtime relay abandoned, delivering locally only",
				"attempts", failures, "error", err)
			return nil
		}
		b.logger.Warn("realtime relay failed, retrying",
			"attempt", failures, "delay", b.delay, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.delay):
		}
	}
}

func (b *RedisBroker) relay(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, redisTopic)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	b.live.Store(true)
	b.logger.Info("realtime relay subscribed", "topic", redisTopic)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				b.logger.Warn("dropping malformed notification", "error", err)
				continue
			}
			b.local.deliver(n)
		}
	}
}
