package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/store"
)

const federationColumns = `
	federation_id, name, file_key, url, file_id, logo_ref,
	created_at, updated_at, refreshed_at`

// FederationStore implements store.FederationStore using PostgreSQL.
type FederationStore struct {
	pool *pgxpool.Pool
}

// NewFederationStore creates a new PostgreSQL-backed federation store.
// It shares the connection pool with other stores.
func NewFederationStore(pool *pgxpool.Pool) *FederationStore {
	return &FederationStore{
		pool: pool,
	}
}

// Create creates a new federation in the database.
func (s *FederationStore) Create(ctx context.Context, fed *models.Federation) error {
	query := `
		INSERT INTO federations (` + federationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		fed.FederationID,
		fed.Name,
		fed.Source.FileKey,
		fed.Source.URL,
		fed.Source.FileID,
		fed.Source.LogoRef,
		fed.CreatedAt,
		fed.UpdatedAt,
		fed.RefreshedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrFederationAlreadyExists
		}
		return fmt.Errorf("failed to create federation: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("federation_id", fed.FederationID.String()).
		Str("name", fed.Name).
		Msg("Created federation")

	return nil
}

// Get retrieves a federation by ID.
func (s *FederationStore) Get(ctx context.Context, federationID uuid.UUID) (*models.Federation, error) {
	query := `SELECT ` + federationColumns + ` FROM federations WHERE federation_id = $1`

	fed, err := scanFederation(s.pool.QueryRow(ctx, query, federationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrFederationNotFound
		}
		return nil, fmt.Errorf("failed to get federation: %w", mapPostgresError(err))
	}

	return fed, nil
}

// Update updates an existing federation.
func (s *FederationStore) Update(ctx context.Context, fed *models.Federation) error {
	fed.UpdatedAt = time.Now()

	query := `
		UPDATE federations SET
			name = $2,
			file_key = $3,
			url = $4,
			file_id = $5,
			logo_ref = $6,
			updated_at = $7,
			refreshed_at = $8
		WHERE federation_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		fed.FederationID,
		fed.Name,
		fed.Source.FileKey,
		fed.Source.URL,
		fed.Source.FileID,
		fed.Source.LogoRef,
		fed.UpdatedAt,
		fed.RefreshedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update federation: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrFederationNotFound
	}

	log.Debug().
		Str("federation_id", fed.FederationID.String()).
		Msg("Updated federation")

	return nil
}

// List returns all federations ordered by ID.
func (s *FederationStore) List(ctx context.Context) ([]*models.Federation, error) {
	query := `SELECT ` + federationColumns + ` FROM federations ORDER BY federation_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list federations: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var federations []*models.Federation
	for rows.Next() {
		fed, err := scanFederation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan federation: %w", err)
		}
		federations = append(federations, fed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating federations: %w", err)
	}

	return federations, nil
}

func scanFederation(row pgx.Row) (*models.Federation, error) {
	var fed models.Federation
	err := row.Scan(
		&fed.FederationID,
		&fed.Name,
		&fed.Source.FileKey,
		&fed.Source.URL,
		&fed.Source.FileID,
		&fed.Source.LogoRef,
		&fed.CreatedAt,
		&fed.UpdatedAt,
		&fed.RefreshedAt,
	)
	if err != nil {
		return nil, err
	}
	return &fed, nil
}
