//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/marcelsud/priorauth-notify/subscription"
	"github.com/marcelsud/priorauth-notify/subscription/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer holds the Redis testcontainer and connection details
type RedisContainer struct {
	Container *testcontainersredis.RedisContainer
	Addr      string
}

// SetupRedisContainer creates and starts a Redis testcontainer
func SetupRedisContainer(t *testing.T, ctx context.Context) (*RedisContainer, func()) {
	t.Helper()

	redisContainer, err := testcontainersredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start Redis container")

	addr, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get Redis connection string")

	if len(addr) > 8 && addr[:8] == "redis://" {
		addr = addr[8:]
	}

	rc := &RedisContainer{
		Container: redisContainer,
		Addr:      addr,
	}

	cleanup := func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	}

	return rc, cleanup
}

// CreateTestRepository creates a Redis repository connected to the test container
func CreateTestRepository(t *testing.T, addr string) *redis.Repository {
	t.Helper()

	repo, err := redis.NewRepository(addr, "", 0)
	require.NoError(t, err, "failed to create Redis repository")

	return repo
}

// NewTestSubscription builds a subscription with a unique id
func NewTestSubscription(t *testing.T, org, endpoint string, status subscription.Status) subscription.Subscription {
	t.Helper()
	now := time.Now()
	return subscription.Subscription{
		ID:             fmt.Sprintf("test-sub-%d", now.UnixNano()),
		OrganizationID: org,
		Endpoint:       endpoint,
		AuthHeader:     "Bearer test",
		PayloadType:    subscription.FullResource,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// SetMembers returns the members of a Redis set
func SetMembers(t *testing.T, addr string, key string) []string {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()

	members, err := client.SMembers(context.Background(), key).Result()
	require.NoError(t, err)

	return members
}
