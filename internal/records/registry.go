// Package records binds federation and entity records to their metadata
// documents and reconciles the entities a federation document describes
// with the record store.
package records

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/metsync/internal/docstore"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/store"
)

// Registry creates record instances bound to the stores they read from.
type Registry struct {
	Federations store.FederationStore
	Entities    store.EntityStore
	Documents   docstore.Store
	Index       *EntityIndex
	Policy      Policy
}

// Option configures a Registry.
type Option func(*Registry)

// WithPolicy sets the entity error policy used by federation passes.
func WithPolicy(p Policy) Option {
	return func(r *Registry) { r.Policy = p }
}

// WithIndex replaces the default entity index.
func WithIndex(idx *EntityIndex) Option {
	return func(r *Registry) { r.Index = idx }
}

// NewRegistry creates a registry over the given stores.
func NewRegistry(federations store.FederationStore, entities store.EntityStore, docs docstore.Store, opts ...Option) *Registry {
	r := &Registry{
		Federations: federations,
		Entities:    entities,
		Documents:   docs,
		Policy:      FailFast,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Index == nil {
		r.Index = NewEntityIndex(entities, defaultIndexSize, defaultIndexTTL)
	}
	return r
}

// Federation loads a fresh federation instance.
func (r *Registry) Federation(ctx context.Context, id uuid.UUID) (*Federation, error) {
	m, err := r.Federations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.WrapFederation(m), nil
}

// WrapFederation binds a persisted federation to this registry.
func (r *Registry) WrapFederation(m *models.Federation) *Federation {
	f := &Federation{Federation: m, reg: r}
	f.base = base{docs: r.Documents, source: &m.Source}
	return f
}

// NewFederation creates an unsaved federation. It is inserted by the first
// Pipeline.Save.
func (r *Registry) NewFederation(name string, source models.Source) *Federation {
	now := time.Now()
	f := r.WrapFederation(&models.Federation{
		FederationID: uuid.Must(uuid.NewV7()),
		Name:         name,
		Source:       source,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	f.isNew = true
	return f
}

// Entity loads a fresh entity instance by record id.
func (r *Registry) Entity(ctx context.Context, id uuid.UUID) (*Entity, error) {
	m, err := r.Entities.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.WrapEntity(m), nil
}

// EntityByEntityID loads a fresh entity instance by entity id.
func (r *Registry) EntityByEntityID(ctx context.Context, entityID string) (*Entity, error) {
	m, err := r.Index.Lookup(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return r.WrapEntity(m), nil
}

// WrapEntity binds a persisted entity to this registry.
func (r *Registry) WrapEntity(m *models.Entity) *Entity {
	e := &Entity{Entity: m, reg: r}
	e.base = base{docs: r.Documents, source: &m.Source}
	return e
}

// NewEntity creates an unsaved entity described by its own document. It is
// inserted by the first Pipeline.SaveEntity.
func (r *Registry) NewEntity(entityID string, typ models.EntityType, source models.Source) *Entity {
	now := time.Now()
	e := r.WrapEntity(&models.Entity{
		ID:         uuid.Must(uuid.NewV7()),
		EntityID:   entityID,
		EntityType: typ,
		Source:     source,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	e.isNew = true
	return e
}
