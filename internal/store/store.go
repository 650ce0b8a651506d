package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/metsync/internal/models"
)

// Sentinel errors for record store operations
var (
	ErrFederationNotFound      = errors.New("federation not found")
	ErrFederationAlreadyExists = errors.New("federation already exists")
	ErrEntityNotFound          = errors.New("entity not found")
	ErrEntityAlreadyExists     = errors.New("entity already exists")
)

// FederationStore defines the interface for federation storage operations.
type FederationStore interface {
	// Create creates a new federation in the store.
	// Returns ErrFederationAlreadyExists if a federation with the same ID already exists.
	Create(ctx context.Context, fed *models.Federation) error

	// Get retrieves a federation by ID.
	// Returns ErrFederationNotFound if the federation doesn't exist.
	Get(ctx context.Context, federationID uuid.UUID) (*models.Federation, error)

	// Update updates an existing federation.
	// Returns ErrFederationNotFound if the federation doesn't exist.
	Update(ctx context.Context, fed *models.Federation) error

	// List returns all federations ordered by ID.
	List(ctx context.Context) ([]*models.Federation, error)
}

// EntityStore defines the interface for entity storage operations.
// Implementations must enforce that EntityID is unique across the store.
type EntityStore interface {
	// Create creates a new entity along with the memberships listed in FederationIDs.
	// Returns ErrEntityAlreadyExists if an entity with the same ID or EntityID already exists.
	Create(ctx context.Context, entity *models.Entity) error

	// Get retrieves an entity by its surrogate ID.
	// Returns ErrEntityNotFound if the entity doesn't exist.
	Get(ctx context.Context, id uuid.UUID) (*models.Entity, error)

	// GetByEntityID retrieves an entity by its natural key.
	// Returns ErrEntityNotFound if the entity doesn't exist.
	GetByEntityID(ctx context.Context, entityID string) (*models.Entity, error)

	// Update updates the attributes of an existing entity. Membership is not
	// modified, use AddFederation for that.
	// Returns ErrEntityNotFound if the entity doesn't exist.
	Update(ctx context.Context, entity *models.Entity) error

	// AddFederation links an entity to a federation. Linking an existing
	// member is a no-op.
	// Returns ErrEntityNotFound if the entity doesn't exist.
	AddFederation(ctx context.Context, id uuid.UUID, federationID uuid.UUID) error

	// ListByFederation returns the members of a federation ordered by EntityID.
	ListByFederation(ctx context.Context, federationID uuid.UUID) ([]*models.Entity, error)

	// ListStandalone returns entities which carry their own document source
	// (a stored file or a URL), ordered by EntityID.
	ListStandalone(ctx context.Context) ([]*models.Entity, error)
}
