package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"ms-venue-ticketing/internal/config"
	"ms-venue-ticketing/internal/logger"
)

// setupTestRedis creates a Redis client backed by miniredis
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestArmAndDisarm(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := NewExpirySignal(client, logger.Discard())
	ctx := context.Background()

	require.NoError(t, s.Arm(ctx, "h1", 30*time.Second))
	assert.True(t, mr.Exists("hold_expiry:h1"))
	assert.Equal(t, 30*time.Second, mr.TTL("hold_expiry:h1"))

	// Re-arming replaces the TTL.
	require.NoError(t, s.Arm(ctx, "h1", 90*time.Second))
	assert.Equal(t, 90*time.Second, mr.TTL("hold_expiry:h1"))

	mr.FastForward(91 * time.Second)
	assert.False(t, mr.Exists("hold_expiry:h1"))

	require.NoError(t, s.Arm(ctx, "h2", time.Minute))
	require.NoError(t, s.Disarm(ctx, "h2"))
	assert.False(t, mr.Exists("hold_expiry:h2"))

	// Disarming an unknown hold is fine.
	assert.NoError(t, s.Disarm(ctx, "missing"))
}

func TestSubscribeDispatchesHoldKeys(t *testing.T) {
	client, _ := setupTestRedis(t)
	s := NewExpirySignal(client, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Subscribe(ctx, func(_ context.Context, holdID string) error {
			mu.Lock()
			got = append(got, holdID)
			mu.Unlock()
			return nil
		})
	}()

	// miniredis does not emit keyspace events itself, so publish what Redis
	// would send on expiry.
	require.Eventually(t, func() bool {
		n, err := client.Publish(ctx, "__keyevent@0__:expired", "unrelated:key").Result()
		return err == nil && n > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, client.Publish(ctx, "__keyevent@0__:expired", "hold_expiry:h42").Err())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, []string{"h42"}, got)
}

// TestExpirySignalIntegration checks real keyspace notifications end to end.
func TestExpirySignalIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	s := NewExpirySignal(client, logger.Discard())
	s.EnableNotifications(ctx)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	expired := make(chan string, 1)
	go func() {
		_ = s.Subscribe(subCtx, func(_ context.Context, holdID string) error {
			expired <- holdID
			return nil
		})
	}()
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, s.Arm(ctx, "hold-it", 500*time.Millisecond))

	select {
	case id := <-expired:
		assert.Equal(t, "hold-it", id)
	case <-time.After(10 * time.Second):
		t.Fatal("no expiry event received")
	}
}

func TestConnect(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	addr := mr.Addr()
	client, err := Connect(config.RedisConfig{Addr: addr}, logger.Discard())
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())

	mr.Close()
	_, err = Connect(config.RedisConfig{Addr: addr}, logger.Discard())
	assert.Error(t, err)
}
