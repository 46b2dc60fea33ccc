package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	db := 0
	storeContract(t, func(t *testing.T) Store {
		db++
		client := redis.NewClient(&redis.Options{Addr: endpoint, DB: db % 16})
		require.NoError(t, client.FlushDB(ctx).Err())
		t.Cleanup(func() { client.Close() })
		return NewRedisStore(client, time.Hour)
	})

	t.Run("ttl is kept across updates", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{Addr: endpoint})
		defer client.Close()
		store := NewRedisStore(client, time.Hour)

		id := fmt.Sprintf("ttl-%d", time.Now().UnixNano())
		require.NoError(t, store.Create(ctx, NewRecord(id, testConfig(), time.Now())))
		require.NoError(t, store.UpdateStage(ctx, id, StageCreatingVectorIndex, ""))

		ttl, err := client.TTL(ctx, jobKey(id)).Result()
		require.NoError(t, err)
		require.Greater(t, ttl, time.Duration(0))
	})
}
