package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// GetStatusCounts returns counts of subscriptions grouped by status
func (r *Repository) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	statusCounts := map[string]int64{
		"requested": 0,
		"active":    0,
		"error":     0,
		"off":       0,
	}

	var cursor uint64
	var keys []string
	for {
		var scanKeys []string
		var err error

		scanKeys, cursor, err = r.client.Scan(ctx, cursor, hashPrefix+":*", 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning subscription keys: %w", err)
		}
		keys = append(keys, scanKeys...)

		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return statusCounts, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGet(ctx, key, "status")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("executing pipeline: %w", err)
	}

	for _, cmd := range cmds {
		status, err := cmd.Result()
		if err != nil {
			continue
		}
		if _, exists := statusCounts[status]; exists {
			statusCounts[status]++
		}
	}
	return statusCounts, nil
}
