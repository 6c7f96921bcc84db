package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// EventsChannel is the pub/sub channel shared by every server.
	EventsChannel = "deadbolt:events"

	resubscribeMinBackoff = time.Second
	resubscribeMaxBackoff = 30 * time.Second
)

// Bridge fans an event out to every server that holds streams for the
// target user. Delivery to this server's own streams happens synchronously
// inside Publish; remote servers receive the event over pub/sub.
type Bridge interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisBridge broadcasts over a Redis pub/sub channel.
//
// Self-delivery invariant: Publish stamps the event with this server's ID
// and delivers locally before publishing; the subscriber loop drops events
// carrying its own origin. Every stream therefore sees an event at most
// once, and local delivery does not depend on the broker round-trip.
type RedisBridge struct {
	log      *slog.Logger
	rdb      redis.UniversalClient
	table    *Table
	serverID string
	channel  string
	metrics  *Metrics
}

// NewRedisBridge constructs a bridge for this server.
func NewRedisBridge(log *slog.Logger, rdb redis.UniversalClient, table *Table, serverID string, metrics *Metrics) *RedisBridge {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{
		log:      log,
		rdb:      rdb,
		table:    table,
		serverID: serverID,
		channel:  EventsChannel,
		metrics:  metrics,
	}
}

// Publish delivers ev to local streams, then broadcasts it. A broker error
// is returned after local delivery has already happened; callers decide
// whether it is fatal (for revocation it is logged, not surfaced).
func (b *RedisBridge) Publish(ctx context.Context, ev Event) error {
	ev.Origin = b.serverID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	n := b.table.DeliverLocal(ctx, ev)
	b.metrics.eventPublished()
	b.log.Info("push.publish", "kind", ev.Kind, "user_id", ev.UserID, "local_delivered", n)

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

// Run subscribes to the events channel and delivers remote events to local
// streams until ctx is canceled. Broker disconnects trigger resubscription
// with bounded backoff; local streams are never touched by an outage.
func (b *RedisBridge) Run(ctx context.Context) {
	backoff := resubscribeMinBackoff

	for {
		subscribed, err := b.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			backoff = resubscribeMinBackoff
		}

		b.log.Warn("push.subscribe.retry", "channel", b.channel, "backoff", backoff.String(), "err", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > resubscribeMaxBackoff {
			backoff = resubscribeMaxBackoff
		}
	}
}

// consume runs one subscription until it fails or ctx ends. The returned
// bool reports whether the subscription was established (resets backoff).
func (b *RedisBridge) consume(ctx context.Context) (bool, error) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.log.Info("push.subscribe.ok", "channel", b.channel, "server_id", b.serverID)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, errors.New("subscription channel closed")
			}
			b.handle(ctx, msg.Payload)
		}
	}
}

func (b *RedisBridge) handle(ctx context.Context, payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		b.log.Warn("push.event.malformed", "err", err)
		return
	}

	// Own events were delivered at publish time.
	if ev.Origin == b.serverID {
		return
	}

	b.metrics.eventReceived()
	n := b.table.DeliverLocal(ctx, ev)
	b.log.Info("push.receive", "kind", ev.Kind, "user_id", ev.UserID, "origin", ev.Origin, "local_delivered", n)
}

// LoopbackBridge is the single-process fallback when no Redis is configured:
// local delivery only, nothing crosses process boundaries.
type LoopbackBridge struct {
	table    *Table
	serverID string
	metrics  *Metrics
}

// NewLoopbackBridge constructs a local-only bridge.
func NewLoopbackBridge(table *Table, serverID string, metrics *Metrics) *LoopbackBridge {
	return &LoopbackBridge{table: table, serverID: serverID, metrics: metrics}
}

func (b *LoopbackBridge) Publish(ctx context.Context, ev Event) error {
	ev.Origin = b.serverID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.table.DeliverLocal(ctx, ev)
	b.metrics.eventPublished()
	return nil
}
