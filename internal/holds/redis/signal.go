package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-venue-ticketing/internal/logger"
)

const keyPrefix = "hold_expiry:"

// ExpirySignal mirrors every hold as a Redis key with the same TTL. When the
// key expires Redis publishes a keyspace event, which lets the service expire
// the hold right away instead of at the next sweep. The database stays the
// source of truth; a lost event only delays expiry until the reaper runs.
type ExpirySignal struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewExpirySignal(client *redis.Client, log *logger.Logger) *ExpirySignal {
	return &ExpirySignal{Client: client, Logger: log}
}

func Key(holdID string) string {
	return keyPrefix + holdID
}

// Arm sets (or resets) the expiry key of a hold.
func (s *ExpirySignal) Arm(ctx context.Context, holdID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	return s.Client.Set(ctx, Key(holdID), holdID, ttl).Err()
}

func (s *ExpirySignal) Disarm(ctx context.Context, holdID string) error {
	return s.Client.Del(ctx, Key(holdID)).Err()
}

// EnableNotifications turns on expired-key events. Managed Redis offerings
// may refuse CONFIG SET; the failure is logged and the reaper carries on
// alone.
func (s *ExpirySignal) EnableNotifications(ctx context.Context) {
	if err := s.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
		return
	}
	s.Logger.Info("REDIS", "Keyspace notifications enabled for expired events")
}

func (s *ExpirySignal) channel() string {
	return fmt.Sprintf("__keyevent@%d__:expired", s.Client.Options().DB)
}

// Subscribe calls handler with the hold id of every expired hold key until
// ctx is cancelled. Handler errors are logged.
func (s *ExpirySignal) Subscribe(ctx context.Context, handler func(ctx context.Context, holdID string) error) error {
	pubsub := s.Client.PSubscribe(ctx, s.channel())
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.channel(), err)
	}
	s.Logger.Info("REDIS", fmt.Sprintf("Subscribed to %s", s.channel()))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(msg.Payload, keyPrefix) {
				continue
			}
			holdID := strings.TrimPrefix(msg.Payload, keyPrefix)
			s.Logger.Debug("REDIS", fmt.Sprintf("Hold expiry event: %s", holdID))
			if err := handler(ctx, holdID); err != nil {
				s.Logger.Error("REDIS", fmt.Sprintf("Failed to expire hold %s: %v", holdID, err))
			}
		}
	}
}
