package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/store"
)

// FederationStore implements store.FederationStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type FederationStore struct {
	mu sync.RWMutex

	federations map[uuid.UUID]*models.Federation // federation_id -> Federation
}

// NewFederationStore creates a new in-memory federation store.
func NewFederationStore() *FederationStore {
	return &FederationStore{
		federations: make(map[uuid.UUID]*models.Federation),
	}
}

// Create creates a new federation in memory.
func (s *FederationStore) Create(ctx context.Context, fed *models.Federation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.federations[fed.FederationID]; exists {
		return store.ErrFederationAlreadyExists
	}

	s.federations[fed.FederationID] = cloneFederation(fed)

	return nil
}

// Get retrieves a federation by ID.
func (s *FederationStore) Get(ctx context.Context, federationID uuid.UUID) (*models.Federation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fed, exists := s.federations[federationID]
	if !exists {
		return nil, store.ErrFederationNotFound
	}

	return cloneFederation(fed), nil
}

// Update updates an existing federation.
func (s *FederationStore) Update(ctx context.Context, fed *models.Federation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.federations[fed.FederationID]; !exists {
		return store.ErrFederationNotFound
	}

	fed.UpdatedAt = time.Now()
	s.federations[fed.FederationID] = cloneFederation(fed)

	return nil
}

// List returns all federations ordered by ID.
func (s *FederationStore) List(ctx context.Context) ([]*models.Federation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Federation, 0, len(s.federations))
	for _, fed := range s.federations {
		result = append(result, cloneFederation(fed))
	}

	slices.SortFunc(result, func(a, b *models.Federation) int {
		return slices.Compare(a.FederationID[:], b.FederationID[:])
	})

	return result, nil
}

// cloneFederation copies a federation to avoid external modifications
func cloneFederation(fed *models.Federation) *models.Federation {
	clone := *fed
	if fed.RefreshedAt != nil {
		refreshedAt := *fed.RefreshedAt
		clone.RefreshedAt = &refreshedAt
	}
	return &clone
}
