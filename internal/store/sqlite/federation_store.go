package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/store"
)

const federationColumns = `
	federation_id, name, file_key, url, file_id, logo_ref,
	created_at, updated_at, refreshed_at`

// FederationStore implements store.FederationStore using SQLite.
type FederationStore struct {
	db *sql.DB
}

// NewFederationStore creates a new SQLite-backed federation store.
func NewFederationStore(db *sql.DB) *FederationStore {
	return &FederationStore{db: db}
}

// Create creates a new federation.
func (s *FederationStore) Create(ctx context.Context, fed *models.Federation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO federations (`+federationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		fed.FederationID,
		fed.Name,
		fed.Source.FileKey,
		fed.Source.URL,
		fed.Source.FileID,
		fed.Source.LogoRef,
		formatTime(fed.CreatedAt),
		formatTime(fed.UpdatedAt),
		nullTime(fed.RefreshedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrFederationAlreadyExists
		}
		return fmt.Errorf("failed to create federation: %w", err)
	}

	log.Debug().
		Str("federation_id", fed.FederationID.String()).
		Str("name", fed.Name).
		Msg("Created federation")

	return nil
}

// Get retrieves a federation by ID.
func (s *FederationStore) Get(ctx context.Context, federationID uuid.UUID) (*models.Federation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+federationColumns+` FROM federations WHERE federation_id = ?`, federationID)

	fed, err := scanFederation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrFederationNotFound
		}
		return nil, fmt.Errorf("failed to get federation: %w", err)
	}

	return fed, nil
}

// Update updates an existing federation.
func (s *FederationStore) Update(ctx context.Context, fed *models.Federation) error {
	fed.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE federations SET
			name = ?,
			file_key = ?,
			url = ?,
			file_id = ?,
			logo_ref = ?,
			updated_at = ?,
			refreshed_at = ?
		WHERE federation_id = ?
	`,
		fed.Name,
		fed.Source.FileKey,
		fed.Source.URL,
		fed.Source.FileID,
		fed.Source.LogoRef,
		formatTime(fed.UpdatedAt),
		nullTime(fed.RefreshedAt),
		fed.FederationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update federation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update federation: %w", err)
	}
	if affected == 0 {
		return store.ErrFederationNotFound
	}

	return nil
}

// List returns all federations ordered by ID.
func (s *FederationStore) List(ctx context.Context) ([]*models.Federation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+federationColumns+` FROM federations ORDER BY federation_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list federations: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func scanFederation(row rowScanner) (*models.Federation, error) {
	var (
		fed                  models.Federation
		createdAt, updatedAt string
		refreshedAt          sql.NullString
	)
	err := row.Scan(
		&fed.FederationID,
		&fed.Name,
		&fed.Source.FileKey,
		&fed.Source.URL,
		&fed.Source.FileID,
		&fed.Source.LogoRef,
		&createdAt,
		&updatedAt,
		&refreshedAt,
	)
	if err != nil {
		return nil, err
	}

	if fed.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if fed.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at: %w", err)
	}
	if refreshedAt.Valid {
		t, err := parseTime(refreshedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid refreshed_at: %w", err)
		}
		fed.RefreshedAt = &t
	}

	return &fed, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
