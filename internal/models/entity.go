package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies the SAML role of an entity.
type EntityType string

const (
	EntityTypeIdP EntityType = "idp"
	EntityTypeSP  EntityType = "sp"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	return t == EntityTypeIdP || t == EntityTypeSP
}

// Entity represents a single identity or service provider. EntityID is the
// natural key and is unique across the whole store, regardless of federation.
type Entity struct {
	ID            uuid.UUID // UUIDv7
	EntityID      string
	EntityType    EntityType
	Source        Source
	FederationIDs []uuid.UUID // membership, sorted ascending
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MemberOf reports whether the entity belongs to the given federation.
func (e *Entity) MemberOf(federationID uuid.UUID) bool {
	return slices.Contains(e.FederationIDs, federationID)
}

// Standalone reports whether the entity is described by its own document.
func (e *Entity) Standalone() bool {
	return e.Source.FileKey != "" || e.Source.URL != ""
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	clone := *e
	clone.FederationIDs = slices.Clone(e.FederationIDs)
	return &clone
}

// SortFederationIDs orders membership ascending. UUIDv7 ids sort by creation time.
func SortFederationIDs(ids []uuid.UUID) {
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
}
