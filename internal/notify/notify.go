// Package notify fans out ledger change notifications to display
// consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel displays subscribe to.
const DefaultChannel = "keykiosk:changes"

// Event says that a kiosk changed the ledger.
type Event struct {
	KioskID string    `json:"kiosk_id"`
	Kind    string    `json:"event"`
	At      time.Time `json:"at"`
}

// Broadcaster publishes change events. Delivery is best effort.
type Broadcaster interface {
	Publish(ctx context.Context, ev Event) error
}

// publisher is the part of *redis.Client used here.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Redis publishes events on a Redis channel.
type Redis struct {
	rdb     publisher
	channel string
}

func NewRedis(rdb *redis.Client, channel string) *Redis {
	return newRedis(rdb, channel)
}

func newRedis(rdb publisher, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{rdb: rdb, channel: channel}
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, b).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", r.channel, err)
	}
	return nil
}

// Subscribe delivers events from channel until ctx is done. Malformed
// messages are skipped.
func Subscribe(ctx context.Context, rdb *redis.Client, channel string, fn func(Event)) error {
	if channel == "" {
		channel = DefaultChannel
	}
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Debug("skipping malformed change event", "error", err)
				continue
			}
			fn(ev)
		}
	}
}

// Log is used when no Redis is configured: events are only logged.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Publish(_ context.Context, ev Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("ledger changed", "kiosk", ev.KioskID, "event", ev.Kind)
	return nil
}
