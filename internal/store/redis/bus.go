package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/pulse/internal/logger"
)

// DefaultMarkerTTL bounds how long a mutation marker is kept.
const DefaultMarkerTTL = 24 * time.Hour

// Invalidation announces that a customer was mutated on some replica.
type Invalidation struct {
	CustomerID string    `json:"customer_id"`
	Origin     string    `json:"origin"`
	At         time.Time `json:"at"`
}

// Bus spreads customer invalidations across replicas over Redis pub/sub.
type Bus struct {
	client *redis.Client
	origin string
	logger logger.Logger
	now    func() time.Time
}

// NewBus creates a bus publishing as origin. Messages carrying the same
// origin are ignored on receipt.
func NewBus(client *redis.Client, origin string, log logger.Logger) *Bus {
	return &Bus{
		client: client,
		origin: origin,
		logger: log,
		now:    time.Now,
	}
}

func (b *Bus) Origin() string { return b.origin }

// Publish records the mutation marker and announces the invalidation.
func (b *Bus) Publish(ctx context.Context, customerID string) error {
	msg := Invalidation{CustomerID: customerID, Origin: b.origin, At: b.now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, MutationKey(customerID), msg.At.Format(time.RFC3339Nano), DefaultMarkerTTL)
		pipe.Publish(ctx, ChannelInvalidate, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish invalidation for %s: %w", customerID, err)
	}
	return nil
}

// LastMutation returns when the customer was last mutated on any replica.
func (b *Bus) LastMutation(ctx context.Context, customerID string) (time.Time, bool, error) {
	raw, err := b.client.Get(ctx, MutationKey(customerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get mutation marker: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid mutation marker %q: %w", raw, err)
	}
	return at, true, nil
}

// Subscribe applies invalidations from other replicas until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, apply func(Invalidation)) error {
	sub := b.client.Subscribe(ctx, ChannelInvalidate)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", ChannelInvalidate, err)
	}
	b.logger.Info("listening for invalidations", logger.String("channel", ChannelInvalidate))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(m.Payload, apply)
		}
	}
}

// handle decodes one message and applies it unless it is ours.
func (b *Bus) handle(payload string, apply func(Invalidation)) bool {
	var inv Invalidation
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		b.logger.Warn("dropping malformed invalidation", logger.Error(err))
		return false
	}
	if inv.CustomerID == "" {
		b.logger.Warn("dropping invalidation without customer")
		return false
	}
	if inv.Origin == b.origin {
		return false
	}

	b.logger.Debug("applying remote invalidation",
		logger.String("customer", inv.CustomerID),
		logger.String("origin", inv.Origin))
	apply(inv)
	return true
}
