package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/priorauth-notify/decision"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of decision.Store
 * Uses one Hash per decision: decision:{id}
 */

const hashPrefix = "decision"

type Store struct {
	client *redis.Client
}

// NewStore creates a decision store on an existing client
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Put(ctx context.Context, d decision.Decision) error {
	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	err := s.client.HSet(ctx, hashKey(d.ID), map[string]interface{}{
		"id":              d.ID,
		"organization_id": d.OrganizationID,
		"resource":        []byte(d.Resource),
		"updated_at":      updatedAt.Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("storing decision: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (decision.Decision, error) {
	data, err := s.client.HGetAll(ctx, hashKey(id)).Result()
	if err != nil {
		return decision.Decision{}, fmt.Errorf("getting decision: %w", err)
	}
	if len(data) == 0 {
		return decision.Decision{}, decision.ErrNotFound
	}

	var updatedAt int64
	fmt.Sscanf(data["updated_at"], "%d", &updatedAt)
	return decision.Decision{
		ID:             data["id"],
		OrganizationID: data["organization_id"],
		Resource:       []byte(data["resource"]),
		UpdatedAt:      time.Unix(updatedAt, 0),
	}, nil
}

func hashKey(id string) string {
	return fmt.Sprintf("%s:%s", hashPrefix, id)
}
