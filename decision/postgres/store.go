package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marcelsud/priorauth-notify/decision"
)

// Store implements decision.Store on the claim_responses table
type Store struct {
	DB *sql.DB
}

// NewStore creates a decision store sharing an open database handle
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Put upserts a decision
func (s *Store) Put(ctx context.Context, d decision.Decision) error {
	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	query := `
		INSERT INTO claim_responses (id, organization_id, resource, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET organization_id = EXCLUDED.organization_id, resource = EXCLUDED.resource, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.DB.ExecContext(ctx, query, d.ID, d.OrganizationID, []byte(d.Resource), updatedAt); err != nil {
		return fmt.Errorf("upserting decision: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (decision.Decision, error) {
	query := "SELECT id, organization_id, resource, updated_at FROM claim_responses WHERE id = $1"

	var d decision.Decision
	var resource []byte
	err := s.DB.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.OrganizationID, &resource, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return decision.Decision{}, decision.ErrNotFound
	}
	if err != nil {
		return decision.Decision{}, fmt.Errorf("selecting decision: %w", err)
	}
	d.Resource = resource
	return d, nil
}

// CreateTable creates the claim_responses table
func (s *Store) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS claim_responses (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			resource JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	return nil
}
