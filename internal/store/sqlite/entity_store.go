package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/store"
)

const entitySelect = `
	SELECT e.id, e.entity_id, e.entity_type, e.file_key, e.url, e.file_id, e.logo_ref,
		e.created_at, e.updated_at,
		(SELECT group_concat(ef.federation_id, ',') FROM entity_federations ef WHERE ef.entity_ref = e.id)
	FROM entities e`

// EntityStore implements store.EntityStore using SQLite.
type EntityStore struct {
	db *sql.DB
}

// NewEntityStore creates a new SQLite-backed entity store.
func NewEntityStore(db *sql.DB) *EntityStore {
	return &EntityStore{db: db}
}

// Create inserts the entity and its memberships in a single transaction.
func (s *EntityStore) Create(ctx context.Context, entity *models.Entity) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (
			id, entity_id, entity_type, file_key, url, file_id, logo_ref, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entity.ID,
		entity.EntityID,
		string(entity.EntityType),
		entity.Source.FileKey,
		entity.Source.URL,
		entity.Source.FileID,
		entity.Source.LogoRef,
		formatTime(entity.CreatedAt),
		formatTime(entity.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrEntityAlreadyExists
		}
		return fmt.Errorf("failed to create entity: %w", err)
	}

	for _, federationID := range entity.FederationIDs {
		if err := addMembership(ctx, tx, entity.ID, federationID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entity: %w", err)
	}

	log.Debug().
		Str("id", entity.ID.String()).
		Str("entity_id", entity.EntityID).
		Int("federations", len(entity.FederationIDs)).
		Msg("Created entity")

	return nil
}

// Get retrieves an entity by ID.
func (s *EntityStore) Get(ctx context.Context, id uuid.UUID) (*models.Entity, error) {
	return s.getOne(ctx, entitySelect+` WHERE e.id = ?`, id)
}

// GetByEntityID retrieves an entity by its entity ID.
func (s *EntityStore) GetByEntityID(ctx context.Context, entityID string) (*models.Entity, error) {
	return s.getOne(ctx, entitySelect+` WHERE e.entity_id = ?`, entityID)
}

func (s *EntityStore) getOne(ctx context.Context, query string, arg any) (*models.Entity, error) {
	entity, err := scanEntity(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// Update updates an existing entity, leaving its membership untouched.
func (s *EntityStore) Update(ctx context.Context, entity *models.Entity) error {
	entity.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE entities SET
			entity_type = ?,
			file_key = ?,
			url = ?,
			file_id = ?,
			logo_ref = ?,
			updated_at = ?
		WHERE id = ?
	`,
		string(entity.EntityType),
		entity.Source.FileKey,
		entity.Source.URL,
		entity.Source.FileID,
		entity.Source.LogoRef,
		formatTime(entity.UpdatedAt),
		entity.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	if affected == 0 {
		return store.ErrEntityNotFound
	}

	return nil
}

// AddFederation links an entity to a federation.
func (s *EntityStore) AddFederation(ctx context.Context, id uuid.UUID, federationID uuid.UUID) error {
	return addMembership(ctx, s.db, id, federationID)
}

// ListByFederation returns the members of a federation.
func (s *EntityStore) ListByFederation(ctx context.Context, federationID uuid.UUID) ([]*models.Entity, error) {
	return s.list(ctx, entitySelect+`
		WHERE e.id IN (SELECT entity_ref FROM entity_federations WHERE federation_id = ?)
		ORDER BY e.entity_id`, federationID)
}

// ListStandalone returns entities with their own document source.
func (s *EntityStore) ListStandalone(ctx context.Context) ([]*models.Entity, error) {
	return s.list(ctx, entitySelect+`
		WHERE e.file_key <> '' OR e.url <> ''
		ORDER BY e.entity_id`)
}

func (s *EntityStore) list(ctx context.Context, query string, args ...any) ([]*models.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*models.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	return entities, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func addMembership(ctx context.Context, db execer, id, federationID uuid.UUID) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO entity_federations (entity_ref, federation_id) VALUES (?, ?)
	`, id, federationID)
	if err == nil {
		return nil
	}

	if !isForeignKeyViolation(err) {
		return fmt.Errorf("failed to link entity: %w", err)
	}

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM entities WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to link entity: %w", err)
	}
	if !exists {
		return fmt.Errorf("failed to link entity %s: %w", id, store.ErrEntityNotFound)
	}
	return fmt.Errorf("failed to link entity %s to federation %s: %w", id, federationID, store.ErrFederationNotFound)
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	var (
		entity               models.Entity
		entityType           string
		createdAt, updatedAt string
		federationIDs        sql.NullString
	)
	err := row.Scan(
		&entity.ID,
		&entity.EntityID,
		&entityType,
		&entity.Source.FileKey,
		&entity.Source.URL,
		&entity.Source.FileID,
		&entity.Source.LogoRef,
		&createdAt,
		&updatedAt,
		&federationIDs,
	)
	if err != nil {
		return nil, err
	}

	entity.EntityType = models.EntityType(entityType)
	if entity.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if entity.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at: %w", err)
	}

	entity.FederationIDs = []uuid.UUID{}
	if federationIDs.Valid && federationIDs.String != "" {
		for raw := range strings.SplitSeq(federationIDs.String, ",") {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid federation id %q: %w", raw, err)
			}
			entity.FederationIDs = append(entity.FederationIDs, id)
		}
		models.SortFederationIDs(entity.FederationIDs)
	}

	return &entity, nil
}
