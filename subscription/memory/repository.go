package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marcelsud/priorauth-notify/subscription"
)

/* Repository keeps subscriptions in process memory
 * A single mutex makes the duplicate check and insert atomic
 * Only requested and active subscriptions hold a pair entry
 */
type Repository struct {
	mu   sync.RWMutex
	subs map[string]subscription.Subscription
	// pairs indexes organization+endpoint to the subscription holding it
	pairs map[pairKey]string
}

type pairKey struct {
	org      string
	endpoint string
}

// NewRepository creates an empty in-memory repository
func NewRepository() *Repository {
	return &Repository{
		subs:  make(map[string]subscription.Subscription),
		pairs: make(map[pairKey]string),
	}
}

func (r *Repository) Create(_ context.Context, sub subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{org: sub.OrganizationID, endpoint: sub.Endpoint}
	if !sub.Status.HoldsEndpoint() {
		r.subs[sub.ID] = sub
		return nil
	}
	if _, taken := r.pairs[key]; taken {
		return subscription.ErrDuplicate
	}
	r.subs[sub.ID] = sub
	r.pairs[key] = sub.ID
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[id]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return sub, nil
}

func (r *Repository) FindActiveByOrganization(_ context.Context, organizationID string) ([]subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []subscription.Subscription
	for _, sub := range r.subs {
		if sub.Status == subscription.Active && sub.OrganizationID == organizationID {
			active = append(active, sub)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

func (r *Repository) ExistsByOrgAndEndpoint(_ context.Context, organizationID, endpoint string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.pairs[pairKey{org: organizationID, endpoint: endpoint}]
	return ok, nil
}

func (r *Repository) UpdateStatus(_ context.Context, id string, status subscription.Status) error {
	return r.update(id, func(sub *subscription.Subscription) {
		sub.Status = status
		key := pairKey{org: sub.OrganizationID, endpoint: sub.Endpoint}
		if !status.HoldsEndpoint() && r.pairs[key] == sub.ID {
			delete(r.pairs, key)
		}
	})
}

func (r *Repository) IncrementFailureCount(_ context.Context, id string) error {
	return r.update(id, func(sub *subscription.Subscription) {
		sub.FailureCount++
	})
}

func (r *Repository) NextEventNumber(_ context.Context, id string) (int64, error) {
	var n int64
	err := r.update(id, func(sub *subscription.Subscription) {
		sub.EventsSinceStart++
		n = sub.EventsSinceStart
	})
	return n, err
}

// GetStatusCounts returns the number of subscriptions per status
func (r *Repository) GetStatusCounts(_ context.Context) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, sub := range r.subs {
		counts[sub.Status.String()]++
	}
	return counts, nil
}

func (r *Repository) Close(context.Context) error {
	return nil
}

func (r *Repository) update(id string, fn func(*subscription.Subscription)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return subscription.ErrNotFound
	}
	fn(&sub)
	sub.UpdatedAt = time.Now()
	r.subs[id] = sub
	return nil
}
