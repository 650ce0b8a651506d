package records

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/saml"
)

// Entity is an entity record bound to the metadata describing it: either its
// own document or the document of a federation it belongs to.
type Entity struct {
	*models.Entity

	base
	reg        *Registry
	descriptor *saml.EntityDescriptor
	isNew      bool
	changed    bool
}

// New reports whether the record has not been persisted yet.
func (e *Entity) New() bool {
	return e.isNew
}

// Changed reports whether ProcessMetadata modified any attribute.
func (e *Entity) Changed() bool {
	return e.changed
}

// String returns the display name when metadata has been loaded, otherwise
// the entity id.
func (e *Entity) String() string {
	if e.descriptor != nil && e.descriptor.DisplayName != "" {
		return e.descriptor.DisplayName
	}
	return e.EntityID
}

// LoadMetadata resolves the descriptor for the entity once per instance.
// An entity with its own document reads it. Otherwise the descriptor comes
// from hint, or when hint is nil from the member federation with the lowest
// id (the oldest, as ids are UUIDv7).
func (e *Entity) LoadMetadata(ctx context.Context, hint *Federation) error {
	if e.descriptor != nil {
		return nil
	}

	if e.Source.HasDocument() {
		doc, err := e.loadDocument(ctx)
		if err != nil {
			return err
		}

		d := doc.FindEntity(e.EntityID)
		if d == nil {
			d = doc.Entity()
		}
		if d == nil {
			return fmt.Errorf("%w: document describes no entity", ErrDocumentShape)
		}

		e.descriptor = d
		return nil
	}

	fed := hint
	if fed == nil {
		if len(e.FederationIDs) == 0 {
			return fmt.Errorf("%w %s: no document and no federation", ErrUnresolvedMetadata, e.EntityID)
		}

		lowest := slices.MinFunc(e.FederationIDs, func(a, b uuid.UUID) int {
			return slices.Compare(a[:], b[:])
		})

		var err error
		fed, err = e.reg.Federation(ctx, lowest)
		if err != nil {
			return fmt.Errorf("%w %s: %w", ErrUnresolvedMetadata, e.EntityID, err)
		}
	}

	d, err := fed.EntityMetadata(ctx, e.EntityID)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrUnresolvedMetadata, e.EntityID, err)
	}
	if d == nil {
		return fmt.Errorf("%w %s: not listed by federation %s", ErrUnresolvedMetadata, e.EntityID, fed.FederationID)
	}

	e.descriptor = d
	return nil
}

// Name returns the display name from the entity's metadata.
func (e *Entity) Name(ctx context.Context) (string, error) {
	if err := e.LoadMetadata(ctx, nil); err != nil {
		return "", err
	}
	return e.descriptor.DisplayName, nil
}

// Organization returns the organization name from the entity's metadata.
func (e *Entity) Organization(ctx context.Context) (string, error) {
	if err := e.LoadMetadata(ctx, nil); err != nil {
		return "", err
	}
	return e.descriptor.Organization, nil
}

// ProcessMetadata merges descriptor attributes into the record. With a nil
// descriptor the entity's own metadata is resolved first. The descriptor must
// describe this entity; on mismatch nothing is modified.
func (e *Entity) ProcessMetadata(ctx context.Context, d *saml.EntityDescriptor) error {
	if d == nil {
		if err := e.LoadMetadata(ctx, nil); err != nil {
			return err
		}
		d = e.descriptor
	}

	if d.EntityID != e.EntityID {
		return fmt.Errorf("%w: record %q, metadata %q", ErrIdentityMismatch, e.EntityID, d.EntityID)
	}

	if models.EntityType(d.EntityType).Valid() {
		typ := string(e.EntityType)
		if mergeString(&typ, d.EntityType) {
			e.EntityType = models.EntityType(typ)
			e.changed = true
		}
	}

	return nil
}
