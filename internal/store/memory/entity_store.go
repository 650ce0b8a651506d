package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/store"
)

// EntityStore implements store.EntityStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type EntityStore struct {
	mu sync.RWMutex

	entities   map[uuid.UUID]*models.Entity // id -> Entity
	byEntityID map[string]uuid.UUID         // entity_id -> id
}

// NewEntityStore creates a new in-memory entity store.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		entities:   make(map[uuid.UUID]*models.Entity),
		byEntityID: make(map[string]uuid.UUID),
	}
}

// Create creates a new entity in memory.
func (s *EntityStore) Create(ctx context.Context, entity *models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[entity.ID]; exists {
		return store.ErrEntityAlreadyExists
	}
	if _, exists := s.byEntityID[entity.EntityID]; exists {
		return store.ErrEntityAlreadyExists
	}

	clone := entity.Clone()
	clone.FederationIDs = compactIDs(clone.FederationIDs)

	s.entities[entity.ID] = clone
	s.byEntityID[entity.EntityID] = entity.ID

	return nil
}

// Get retrieves an entity by ID.
func (s *EntityStore) Get(ctx context.Context, id uuid.UUID) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, exists := s.entities[id]
	if !exists {
		return nil, store.ErrEntityNotFound
	}

	return entity.Clone(), nil
}

// GetByEntityID retrieves an entity by its entity ID.
func (s *EntityStore) GetByEntityID(ctx context.Context, entityID string) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byEntityID[entityID]
	if !exists {
		return nil, store.ErrEntityNotFound
	}

	return s.entities[id].Clone(), nil
}

// Update updates an existing entity, leaving its membership untouched.
func (s *EntityStore) Update(ctx context.Context, entity *models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.entities[entity.ID]
	if !exists {
		return store.ErrEntityNotFound
	}

	entity.UpdatedAt = time.Now()

	clone := entity.Clone()
	clone.EntityID = existing.EntityID
	clone.FederationIDs = existing.FederationIDs
	s.entities[entity.ID] = clone

	return nil
}

// AddFederation links an entity to a federation.
// Note: In-memory implementation doesn't verify that the federation exists.
func (s *EntityStore) AddFederation(ctx context.Context, id uuid.UUID, federationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, exists := s.entities[id]
	if !exists {
		return store.ErrEntityNotFound
	}

	if entity.MemberOf(federationID) {
		return nil
	}

	ids := append(slices.Clone(entity.FederationIDs), federationID)
	entity.FederationIDs = compactIDs(ids)

	return nil
}

// ListByFederation returns the members of a federation.
func (s *EntityStore) ListByFederation(ctx context.Context, federationID uuid.UUID) ([]*models.Entity, error) {
	return s.list(func(e *models.Entity) bool { return e.MemberOf(federationID) }), nil
}

// ListStandalone returns entities with their own document source.
func (s *EntityStore) ListStandalone(ctx context.Context) ([]*models.Entity, error) {
	return s.list((*models.Entity).Standalone), nil
}

func (s *EntityStore) list(match func(*models.Entity) bool) []*models.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Entity
	for _, entity := range s.entities {
		if match(entity) {
			result = append(result, entity.Clone())
		}
	}

	slices.SortFunc(result, func(a, b *models.Entity) int {
		return cmp.Compare(a.EntityID, b.EntityID)
	})

	return result
}

// compactIDs sorts and de-duplicates federation ids.
func compactIDs(ids []uuid.UUID) []uuid.UUID {
	models.SortFederationIDs(ids)
	return slices.Compact(ids)
}
