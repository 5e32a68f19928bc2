package redis

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/marcelsud/priorauth-notify/subscription"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of subscription.Repository
 * Uses Redis Hashes for subscription records
 * Uses a SETNX pair key to make (organization, endpoint) unique among
 * requested and active subscriptions; the key is released on error or off
 * Uses one Set per organization to index active subscriptions
 */

const (
	hashPrefix   = "subscription"         // Hash naming: subscription:{id}
	pairPrefix   = "subscription-pair"    // String naming: subscription-pair:{escaped org}:{escaped endpoint}
	activePrefix = "subscriptions-active" // Set naming: subscriptions-active:{org}
)

// releasePair deletes a pair key only while it still belongs to the given subscription
var releasePair = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Repository struct {
	client *redis.Client
}

// NewRepository creates a new Redis repository
func NewRepository(addr, password string, db int) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Repository{client: client}, nil
}

// NewRepositoryWithClient creates a repository on an existing client
func NewRepositoryWithClient(client *redis.Client) *Repository {
	return &Repository{client: client}
}

// Create stores a subscription, claiming its (organization, endpoint) pair first
func (r *Repository) Create(ctx context.Context, sub subscription.Subscription) error {
	holds := sub.Status.HoldsEndpoint()
	if holds {
		claimed, err := r.client.SetNX(ctx, pairKey(sub.OrganizationID, sub.Endpoint), sub.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("claiming organization endpoint pair: %w", err)
		}
		if !claimed {
			return subscription.ErrDuplicate
		}
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey(sub.ID), toHash(sub))
		if sub.Status == subscription.Active {
			pipe.SAdd(ctx, activeKey(sub.OrganizationID), sub.ID)
		}
		return nil
	})
	if err != nil {
		// Release the pair so a retry is not reported as a duplicate
		if holds {
			releasePair.Run(ctx, r.client, []string{pairKey(sub.OrganizationID, sub.Endpoint)}, sub.ID)
		}
		return fmt.Errorf("storing subscription: %w", err)
	}
	return nil
}

// Get retrieves a subscription by id
func (r *Repository) Get(ctx context.Context, id string) (subscription.Subscription, error) {
	data, err := r.client.HGetAll(ctx, hashKey(id)).Result()
	if err != nil {
		return subscription.Subscription{}, fmt.Errorf("getting subscription: %w", err)
	}
	if len(data) == 0 {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return fromHash(data), nil
}

// FindActiveByOrganization reads the organization's active set and loads every member
func (r *Repository) FindActiveByOrganization(ctx context.Context, organizationID string) ([]subscription.Subscription, error) {
	ids, err := r.client.SMembers(ctx, activeKey(organizationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading active subscriptions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, hashKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("executing pipeline: %w", err)
	}

	subs := make([]subscription.Subscription, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		sub := fromHash(data)
		// The set is an index; the hash is authoritative
		if sub.Status != subscription.Active || sub.OrganizationID != organizationID {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (r *Repository) ExistsByOrgAndEndpoint(ctx context.Context, organizationID, endpoint string) (bool, error) {
	n, err := r.client.Exists(ctx, pairKey(organizationID, endpoint)).Result()
	if err != nil {
		return false, fmt.Errorf("checking subscription pair: %w", err)
	}
	return n > 0, nil
}

// UpdateStatus updates the status, keeps the active index in sync and
// releases the (organization, endpoint) pair when the status no longer holds it
func (r *Repository) UpdateStatus(ctx context.Context, id string, status subscription.Status) error {
	fields, err := r.client.HMGet(ctx, hashKey(id), "organization_id", "endpoint").Result()
	if err != nil {
		return fmt.Errorf("reading subscription pair: %w", err)
	}
	org, ok := fields[0].(string)
	if !ok {
		return subscription.ErrNotFound
	}
	endpoint, _ := fields[1].(string)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey(id), map[string]interface{}{
			"status":     status.String(),
			"updated_at": time.Now().Unix(),
		})
		if status == subscription.Active {
			pipe.SAdd(ctx, activeKey(org), id)
		} else {
			pipe.SRem(ctx, activeKey(org), id)
		}
		if !status.HoldsEndpoint() {
			releasePair.Eval(ctx, pipe, []string{pairKey(org, endpoint)}, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return nil
}

// IncrementFailureCount increments the failure count of a subscription
func (r *Repository) IncrementFailureCount(ctx context.Context, id string) error {
	if _, err := r.incr(ctx, id, "failure_count"); err != nil {
		return fmt.Errorf("incrementing failure count: %w", err)
	}
	return nil
}

// NextEventNumber increments and returns the events-since-subscription-start counter
func (r *Repository) NextEventNumber(ctx context.Context, id string) (int64, error) {
	n, err := r.incr(ctx, id, "events_since_start")
	if err != nil {
		return 0, fmt.Errorf("incrementing event number: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *Repository) GetClient() *redis.Client {
	return r.client
}

// incr bumps a counter field on an existing hash; HINCRBY alone would create it
func (r *Repository) incr(ctx context.Context, id, field string) (int64, error) {
	exists, err := r.client.Exists(ctx, hashKey(id)).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, subscription.ErrNotFound
	}

	var incr *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, hashKey(id), field, 1)
		pipe.HSet(ctx, hashKey(id), "updated_at", time.Now().Unix())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Helper functions

func hashKey(id string) string {
	return fmt.Sprintf("%s:%s", hashPrefix, id)
}

// pairKey escapes both parts so a ':' in either cannot shift the boundary
func pairKey(org, endpoint string) string {
	return fmt.Sprintf("%s:%s:%s", pairPrefix, url.QueryEscape(org), url.QueryEscape(endpoint))
}

func activeKey(org string) string {
	return fmt.Sprintf("%s:%s", activePrefix, org)
}

func toHash(sub subscription.Subscription) map[string]interface{} {
	fields := map[string]interface{}{
		"id":                 sub.ID,
		"organization_id":    sub.OrganizationID,
		"endpoint":           sub.Endpoint,
		"auth_header":        sub.AuthHeader,
		"payload_type":       sub.PayloadType.String(),
		"status":             sub.Status.String(),
		"failure_count":      sub.FailureCount,
		"events_since_start": sub.EventsSinceStart,
		"created_at":         sub.CreatedAt.Unix(),
		"updated_at":         sub.UpdatedAt.Unix(),
	}
	if sub.EndTime != nil {
		fields["end_time"] = sub.EndTime.Unix()
	}
	return fields
}

func fromHash(data map[string]string) subscription.Subscription {
	sub := subscription.Subscription{
		ID:               data["id"],
		OrganizationID:   data["organization_id"],
		Endpoint:         data["endpoint"],
		AuthHeader:       data["auth_header"],
		PayloadType:      subscription.NewPayloadType(data["payload_type"]),
		Status:           subscription.NewStatus(data["status"]),
		FailureCount:     int(parseInt64(data["failure_count"])),
		EventsSinceStart: parseInt64(data["events_since_start"]),
		CreatedAt:        time.Unix(parseInt64(data["created_at"]), 0),
		UpdatedAt:        time.Unix(parseInt64(data["updated_at"]), 0),
	}
	if end, ok := data["end_time"]; ok && end != "" {
		t := time.Unix(parseInt64(end), 0)
		sub.EndTime = &t
	}
	return sub
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
