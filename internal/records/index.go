package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/saml"
	"github.com/wolfeidau/metsync/internal/store"
	"github.com/wolfeidau/metsync/internal/telemetry"
)

const (
	// maxInsertAttempts bounds insert-or-link retries after losing a
	// uniqueness race to a concurrent writer.
	maxInsertAttempts = 3

	defaultIndexSize = 8192
	defaultIndexTTL  = 15 * time.Minute
)

// EntityIndex resolves entity ids to records across the whole store. It
// caches entity id to record id mappings in front of the entity store.
type EntityIndex struct {
	entities store.EntityStore
	cache    *expirable.LRU[string, uuid.UUID]
}

// NewEntityIndex creates an index over entities caching up to size mappings
// for ttl.
func NewEntityIndex(entities store.EntityStore, size int, ttl time.Duration) *EntityIndex {
	if size <= 0 {
		size = defaultIndexSize
	}
	if ttl <= 0 {
		ttl = defaultIndexTTL
	}
	return &EntityIndex{
		entities: entities,
		cache:    expirable.NewLRU[string, uuid.UUID](size, nil, ttl),
	}
}

// Lookup returns the entity with entityID.
// Returns store.ErrEntityNotFound if no such entity exists.
func (x *EntityIndex) Lookup(ctx context.Context, entityID string) (*models.Entity, error) {
	if id, ok := x.cache.Get(entityID); ok {
		ent, err := x.entities.Get(ctx, id)
		if err == nil {
			return ent, nil
		}
		if !errors.Is(err, store.ErrEntityNotFound) {
			return nil, err
		}
		x.cache.Remove(entityID)
	}

	ent, err := x.entities.GetByEntityID(ctx, entityID)
	if err != nil {
		return nil, err
	}

	x.cache.Add(entityID, ent.ID)
	return ent, nil
}

// InsertOrLink returns the entity described by d as a member of federationID.
// An existing entity is linked to the federation. Otherwise a new entity is
// created with the federation as its only membership; when a concurrent
// writer creates it first the insert is retried as a link.
func (x *EntityIndex) InsertOrLink(ctx context.Context, federationID uuid.UUID, d *saml.EntityDescriptor) (*models.Entity, error) {
	logger := zerolog.Ctx(ctx)
	metrics := telemetry.GetMetrics()

	for attempt := 1; attempt <= maxInsertAttempts; attempt++ {
		ent, err := x.Lookup(ctx, d.EntityID)
		switch {
		case err == nil:
			if err := x.link(ctx, ent, federationID); err != nil {
				return nil, err
			}
			return ent, nil

		case !errors.Is(err, store.ErrEntityNotFound):
			return nil, fmt.Errorf("failed to look up entity: %w", err)
		}

		typ := models.EntityType(d.EntityType)
		if !typ.Valid() {
			return nil, ErrUnknownEntityType
		}

		now := time.Now()
		ent = &models.Entity{
			ID:            uuid.Must(uuid.NewV7()),
			EntityID:      d.EntityID,
			EntityType:    typ,
			FederationIDs: []uuid.UUID{federationID},
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err = x.entities.Create(ctx, ent)
		if err == nil {
			x.cache.Add(ent.EntityID, ent.ID)
			metrics.EntitiesCreatedTotal.Add(ctx, 1)

			logger.Debug().
				Str("entity_id", ent.EntityID).
				Str("federation_id", federationID.String()).
				Msg("created entity")

			return ent, nil
		}

		if !errors.Is(err, store.ErrEntityAlreadyExists) {
			return nil, fmt.Errorf("failed to create entity: %w", err)
		}

		metrics.InsertRetriesTotal.Add(ctx, 1)
		logger.Debug().
			Str("entity_id", d.EntityID).
			Int("attempt", attempt).
			Msg("entity created concurrently, retrying as link")
	}

	return nil, fmt.Errorf("entity %s: gave up after %d attempts: %w",
		d.EntityID, maxInsertAttempts, store.ErrEntityAlreadyExists)
}

func (x *EntityIndex) link(ctx context.Context, ent *models.Entity, federationID uuid.UUID) error {
	if ent.MemberOf(federationID) {
		return nil
	}

	if err := x.entities.AddFederation(ctx, ent.ID, federationID); err != nil {
		return fmt.Errorf("failed to link entity: %w", err)
	}

	ent.FederationIDs = append(ent.FederationIDs, federationID)
	models.SortFederationIDs(ent.FederationIDs)

	telemetry.GetMetrics().EntitiesLinkedTotal.Add(ctx, 1)
	zerolog.Ctx(ctx).Debug().
		Str("entity_id", ent.EntityID).
		Str("federation_id", federationID.String()).
		Msg("linked entity to federation")

	return nil
}

// Len returns the number of cached mappings.
func (x *EntityIndex) Len() int {
	return x.cache.Len()
}
