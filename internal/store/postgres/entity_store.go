package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/store"
)

// entitySelect returns entities with their sorted membership aggregated as text.
const entitySelect = `
	SELECT e.id, e.entity_id, e.entity_type, e.file_key, e.url, e.file_id, e.logo_ref,
		e.created_at, e.updated_at,
		COALESCE(
			array_agg(ef.federation_id::text ORDER BY ef.federation_id)
				FILTER (WHERE ef.federation_id IS NOT NULL),
			'{}'
		)
	FROM entities e
	LEFT JOIN entity_federations ef ON ef.entity_ref = e.id`

// EntityStore implements store.EntityStore using PostgreSQL.
type EntityStore struct {
	pool *pgxpool.Pool
}

// NewEntityStore creates a new PostgreSQL-backed entity store.
// It shares the connection pool with other stores.
func NewEntityStore(pool *pgxpool.Pool) *EntityStore {
	return &EntityStore{
		pool: pool,
	}
}

// Create inserts the entity and its memberships in a single transaction.
func (s *EntityStore) Create(ctx context.Context, entity *models.Entity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO entities (
			id, entity_id, entity_type, file_key, url, file_id, logo_ref, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`,
		entity.ID,
		entity.EntityID,
		string(entity.EntityType),
		entity.Source.FileKey,
		entity.Source.URL,
		entity.Source.FileID,
		entity.Source.LogoRef,
		entity.CreatedAt,
		entity.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrEntityAlreadyExists
		}
		return fmt.Errorf("failed to create entity: %w", mapPostgresError(err))
	}

	for _, federationID := range entity.FederationIDs {
		if err := addMembership(ctx, tx, entity.ID, federationID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit entity: %w", mapPostgresError(err))
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
	return s.getOne(ctx, entitySelect+` WHERE e.id = $1 GROUP BY e.id`, id)
}

// GetByEntityID retrieves an entity by its entity ID.
func (s *EntityStore) GetByEntityID(ctx context.Context, entityID string) (*models.Entity, error) {
	return s.getOne(ctx, entitySelect+` WHERE e.entity_id = $1 GROUP BY e.id`, entityID)
}

func (s *EntityStore) getOne(ctx context.Context, query string, arg any) (*models.Entity, error) {
	entity, err := scanEntity(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", mapPostgresError(err))
	}
	return entity, nil
}

// Update updates an existing entity, leaving its membership untouched.
func (s *EntityStore) Update(ctx context.Context, entity *models.Entity) error {
	entity.UpdatedAt = time.Now()

	result, err := s.pool.Exec(ctx, `
		UPDATE entities SET
			entity_type = $2,
			file_key = $3,
			url = $4,
			file_id = $5,
			logo_ref = $6,
			updated_at = $7
		WHERE id = $1
	`,
		entity.ID,
		string(entity.EntityType),
		entity.Source.FileKey,
		entity.Source.URL,
		entity.Source.FileID,
		entity.Source.LogoRef,
		entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrEntityNotFound
	}

	log.Debug().
		Str("id", entity.ID.String()).
		Str("entity_id", entity.EntityID).
		Msg("Updated entity")

	return nil
}

// AddFederation links an entity to a federation.
func (s *EntityStore) AddFederation(ctx context.Context, id uuid.UUID, federationID uuid.UUID) error {
	return addMembership(ctx, s.pool, id, federationID)
}

// ListByFederation returns the members of a federation.
func (s *EntityStore) ListByFederation(ctx context.Context, federationID uuid.UUID) ([]*models.Entity, error) {
	query := entitySelect + `
		WHERE e.id IN (SELECT entity_ref FROM entity_federations WHERE federation_id = $1)
		GROUP BY e.id
		ORDER BY e.entity_id`

	return s.list(ctx, query, federationID)
}

// ListStandalone returns entities with their own document source.
func (s *EntityStore) ListStandalone(ctx context.Context) ([]*models.Entity, error) {
	query := entitySelect + `
		WHERE e.file_key <> '' OR e.url <> ''
		GROUP BY e.id
		ORDER BY e.entity_id`

	return s.list(ctx, query)
}

func (s *EntityStore) list(ctx context.Context, query string, args ...any) ([]*models.Entity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", mapPostgresError(err))
	}
	defer rows.Close()

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
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func addMembership(ctx context.Context, db execer, id, federationID uuid.UUID) error {
	_, err := db.Exec(ctx, `
		INSERT INTO entity_federations (entity_ref, federation_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, id, federationID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("failed to link entity %s to federation %s: %w",
				id, federationID, foreignKeyTarget(err))
		}
		return fmt.Errorf("failed to link entity: %w", mapPostgresError(err))
	}
	return nil
}

// foreignKeyTarget maps a membership foreign key violation to the sentinel
// error of the missing record.
func foreignKeyTarget(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "entity_federations_entity_ref_fkey" {
		return store.ErrEntityNotFound
	}
	return store.ErrFederationNotFound
}

func scanEntity(row pgx.Row) (*models.Entity, error) {
	var (
		entity        models.Entity
		entityType    string
		federationIDs []string
	)
	err := row.Scan(
		&entity.ID,
		&entity.EntityID,
		&entityType,
		&entity.Source.FileKey,
		&entity.Source.URL,
		&entity.Source.FileID,
		&entity.Source.LogoRef,
		&entity.CreatedAt,
		&entity.UpdatedAt,
		&federationIDs,
	)
	if err != nil {
		return nil, err
	}

	entity.EntityType = models.EntityType(entityType)
	entity.FederationIDs = make([]uuid.UUID, 0, len(federationIDs))
	for _, raw := range federationIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid federation id %q: %w", raw, err)
		}
		entity.FederationIDs = append(entity.FederationIDs, id)
	}

	return &entity, nil
}
