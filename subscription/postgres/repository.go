package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/marcelsud/priorauth-notify/subscription"
)

/* PostgreSQL implementation of subscription.Repository
 * A UNIQUE (organization_id, endpoint) constraint decides duplicates,
 * so concurrent registrations cannot both succeed
 */

type Repository struct {
	DB *sql.DB
}

// NewRepository creates a PostgreSQL repository with a default pool (25, 5, 5 min)
func NewRepository(connectionString string) (*Repository, error) {
	return NewRepositoryWithPoolConfig(connectionString, 25, 5, 5)
}

// NewRepositoryWithPoolConfig creates a PostgreSQL repository with a custom pool.
// Zero values leave the database/sql defaults in place.
func NewRepositoryWithPoolConfig(connectionString string, maxOpenConns, maxIdleConns, maxLifeMinutes int) (*Repository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if maxLifeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(maxLifeMinutes) * time.Minute)
	}

	return &Repository{DB: db}, nil
}

const selectColumns = `id, organization_id, endpoint, auth_header, payload_type, status,
		end_time, failure_count, events_since_start, created_at, updated_at`

// holdsPair selects the statuses that claim an (organization, endpoint) pair
const holdsPair = "status IN ('requested', 'active')"

// Create inserts a subscription; a pair held by a requested or active one yields ErrDuplicate
func (r *Repository) Create(ctx context.Context, sub subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, organization_id, endpoint, auth_header, payload_type, status,
			end_time, failure_count, events_since_start, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (organization_id, endpoint) WHERE ` + holdsPair + ` DO NOTHING
	`

	result, err := r.DB.ExecContext(ctx, query,
		sub.ID,
		sub.OrganizationID,
		sub.Endpoint,
		sub.AuthHeader,
		sub.PayloadType.String(),
		sub.Status.String(),
		sub.EndTime,
		sub.FailureCount,
		sub.EventsSinceStart,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return subscription.ErrDuplicate
	}
	return nil
}

// Get retrieves a subscription by id
func (r *Repository) Get(ctx context.Context, id string) (subscription.Subscription, error) {
	query := "SELECT " + selectColumns + " FROM subscriptions WHERE id = $1"

	sub, err := scanSubscription(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	if err != nil {
		return subscription.Subscription{}, fmt.Errorf("selecting subscription: %w", err)
	}
	return sub, nil
}

// FindActiveByOrganization returns active subscriptions of an organization, oldest first
func (r *Repository) FindActiveByOrganization(ctx context.Context, organizationID string) ([]subscription.Subscription, error) {
	query := "SELECT " + selectColumns + ` FROM subscriptions
		WHERE organization_id = $1 AND status = $2
		ORDER BY created_at`

	rows, err := r.DB.QueryContext(ctx, query, organizationID, subscription.Active.String())
	if err != nil {
		return nil, fmt.Errorf("selecting active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}

func (r *Repository) ExistsByOrgAndEndpoint(ctx context.Context, organizationID, endpoint string) (bool, error) {
	query := "SELECT EXISTS (SELECT 1 FROM subscriptions WHERE organization_id = $1 AND endpoint = $2 AND " + holdsPair + ")"

	var exists bool
	if err := r.DB.QueryRowContext(ctx, query, organizationID, endpoint).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking subscription pair: %w", err)
	}
	return exists, nil
}

// UpdateStatus updates the status of a subscription
func (r *Repository) UpdateStatus(ctx context.Context, id string, status subscription.Status) error {
	query := "UPDATE subscriptions SET status = $1, updated_at = NOW() WHERE id = $2"

	return r.execOne(ctx, "updating status", query, status.String(), id)
}

// IncrementFailureCount increments the failure count of a subscription
func (r *Repository) IncrementFailureCount(ctx context.Context, id string) error {
	query := "UPDATE subscriptions SET failure_count = failure_count + 1, updated_at = NOW() WHERE id = $1"

	return r.execOne(ctx, "incrementing failure count", query, id)
}

// NextEventNumber increments and returns the events-since-subscription-start counter
func (r *Repository) NextEventNumber(ctx context.Context, id string) (int64, error) {
	query := `
		UPDATE subscriptions SET events_since_start = events_since_start + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING events_since_start
	`

	var n int64
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, subscription.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("incrementing event number: %w", err)
	}
	return n, nil
}

// GetStatusCounts returns counts of subscriptions grouped by status
func (r *Repository) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT status, COUNT(*) FROM subscriptions GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting subscriptions: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{
		"requested": 0,
		"active":    0,
		"error":     0,
		"off":       0,
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}
	return counts, nil
}

// Close closes the database connection
func (r *Repository) Close(ctx context.Context) error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// CreateTable creates the subscriptions table
func (r *Repository) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			auth_header TEXT NOT NULL DEFAULT '',
			payload_type TEXT NOT NULL,
			status TEXT NOT NULL,
			end_time TIMESTAMPTZ,
			failure_count INTEGER NOT NULL DEFAULT 0,
			events_since_start BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := r.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}

	// error and off subscriptions release their pair
	index := `
		CREATE UNIQUE INDEX IF NOT EXISTS subscriptions_pair_idx
		ON subscriptions (organization_id, endpoint) WHERE ` + holdsPair
	if _, err := r.DB.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("creating pair index: %w", err)
	}
	return nil
}

// DropTable removes the subscriptions table
func (r *Repository) DropTable(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, "DROP TABLE IF EXISTS subscriptions CASCADE"); err != nil {
		return fmt.Errorf("dropping table: %w", err)
	}
	return nil
}

func (r *Repository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (subscription.Subscription, error) {
	var (
		sub         subscription.Subscription
		payloadType string
		status      string
		endTime     sql.NullTime
	)
	err := row.Scan(
		&sub.ID,
		&sub.OrganizationID,
		&sub.Endpoint,
		&sub.AuthHeader,
		&payloadType,
		&status,
		&endTime,
		&sub.FailureCount,
		&sub.EventsSinceStart,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return subscription.Subscription{}, err
	}
	sub.PayloadType = subscription.NewPayloadType(payloadType)
	sub.Status = subscription.NewStatus(status)
	if endTime.Valid {
		sub.EndTime = &endTime.Time
	}
	return sub, nil
}
