package records

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/saml"
	"github.com/wolfeidau/metsync/internal/telemetry"
)

// Federation is a federation record bound to its metadata document. The
// parsed document is memoized per instance; obtain a new instance from the
// Registry to observe a changed document.
type Federation struct {
	*models.Federation

	base
	reg     *Registry
	parsed  documentMemo
	isNew   bool
	changed bool
	skipped []string
}

// New reports whether the record has not been persisted yet.
func (f *Federation) New() bool {
	return f.isNew
}

// Changed reports whether ProcessMetadata modified any attribute.
func (f *Federation) Changed() bool {
	return f.changed
}

// Skipped returns the entityIDs passed over by the last
// ProcessMetadataEntities because they have neither an idp nor an sp role.
func (f *Federation) Skipped() []string {
	return f.skipped
}

func (f *Federation) String() string {
	return f.Name
}

// Document returns the parsed federation document, or nil when none is stored.
func (f *Federation) Document(ctx context.Context) (*saml.Document, error) {
	return f.parsed.get(ctx, &f.base)
}

// EntityMetadata returns the descriptor for entityID from the federation's
// document, or nil if the document does not list it.
// Returns ErrNoDocument if the federation has no stored document.
func (f *Federation) EntityMetadata(ctx context.Context, entityID string) (*saml.EntityDescriptor, error) {
	doc, err := f.Document(ctx)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("federation %s: %w", f.FederationID, ErrNoDocument)
	}
	return doc.FindEntity(entityID), nil
}

// EntityIDs returns the identifiers of every entity listed in the document.
func (f *Federation) EntityIDs(ctx context.Context) ([]string, error) {
	doc, err := f.Document(ctx)
	if err != nil || doc == nil {
		return nil, err
	}

	ids := make([]string, 0, len(doc.Entities()))
	for _, d := range doc.Entities() {
		ids = append(ids, d.EntityID)
	}
	return ids, nil
}

// Entities yields the current members of the federation, each primed with
// this federation as its metadata source. Membership is queried on every
// call. A member whose metadata cannot be resolved is yielded with the error.
func (f *Federation) Entities(ctx context.Context) iter.Seq2[*Entity, error] {
	return func(yield func(*Entity, error) bool) {
		members, err := f.reg.Entities.ListByFederation(ctx, f.FederationID)
		if err != nil {
			yield(nil, fmt.Errorf("failed to list members of federation %s: %w", f.FederationID, err))
			return
		}

		for _, m := range members {
			ent := f.reg.WrapEntity(m)
			if !yield(ent, ent.LoadMetadata(ctx, f)) {
				return
			}
		}
	}
}

// ProcessMetadata merges the federation attributes from its document. A
// federation without a stored document is left untouched.
func (f *Federation) ProcessMetadata(ctx context.Context) error {
	doc, err := f.Document(ctx)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	if !doc.IsFederation() {
		return fmt.Errorf("%w: document does not describe a federation", ErrDocumentShape)
	}

	if mergeString(&f.Name, doc.Federation().Name) {
		f.changed = true
	}

	return nil
}

// ProcessMetadataEntities reconciles every entity listed in the document with
// the entity store: existing members are updated, entities known elsewhere
// are linked, and unknown entities are created as members of this federation.
// Membership is only ever added.
func (f *Federation) ProcessMetadataEntities(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	doc, err := f.Document(ctx)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	current, err := f.reg.Entities.ListByFederation(ctx, f.FederationID)
	if err != nil {
		return fmt.Errorf("failed to list members of federation %s: %w", f.FederationID, err)
	}

	members := make(map[string]*models.Entity, len(current))
	for _, m := range current {
		members[m.EntityID] = m
	}

	f.skipped = nil

	var failures []*RecordError
	for _, d := range doc.Entities() {
		err := f.reconcileEntity(ctx, members, d)
		if err == nil {
			continue
		}

		if errors.Is(err, ErrUnknownEntityType) {
			logger.Debug().Str("entity_id", d.EntityID).Msg("skipping descriptor without idp or sp role")
			telemetry.GetMetrics().EntitiesSkippedTotal.Add(ctx, 1)
			f.skipped = append(f.skipped, d.EntityID)
			continue
		}

		recErr := &RecordError{Kind: KindEntity, ID: d.EntityID, Err: err}
		if f.reg.Policy == FailFast {
			return recErr
		}

		logger.Warn().Err(err).Str("entity_id", d.EntityID).Msg("entity reconciliation failed")
		failures = append(failures, recErr)
	}

	if len(failures) > 0 {
		return &EntityErrors{FederationID: f.FederationID, Failures: failures}
	}

	return nil
}

func (f *Federation) reconcileEntity(ctx context.Context, members map[string]*models.Entity, d *saml.EntityDescriptor) error {
	model, ok := members[d.EntityID]
	if !ok {
		var err error
		model, err = f.reg.Index.InsertOrLink(ctx, f.FederationID, d)
		if err != nil {
			return err
		}
		members[d.EntityID] = model
	}

	ent := f.reg.WrapEntity(model)
	if !ent.Source.HasDocument() {
		ent.descriptor = d
	}

	if err := ent.ProcessMetadata(ctx, d); err != nil {
		return err
	}

	if !ent.Changed() {
		return nil
	}

	if err := f.reg.Entities.Update(ctx, ent.Entity); err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	telemetry.GetMetrics().EntitiesUpdatedTotal.Add(ctx, 1)

	return nil
}
