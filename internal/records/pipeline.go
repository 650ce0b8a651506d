package records

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/metsync/internal/telemetry"
)

// Pipeline persists records, merging metadata before each write and
// reconciling federation members after it.
type Pipeline struct {
	reg *Registry
}

// NewPipeline creates a pipeline writing through reg.
func NewPipeline(reg *Registry) *Pipeline {
	return &Pipeline{reg: reg}
}

// BeforePersist merges the federation attributes from its document.
func (p *Pipeline) BeforePersist(ctx context.Context, f *Federation) error {
	if err := f.ProcessMetadata(ctx); err != nil {
		return &RecordError{Kind: KindFederation, ID: f.FederationID.String(), Err: err}
	}
	return nil
}

// AfterPersist reconciles the entities listed in the federation's document.
func (p *Pipeline) AfterPersist(ctx context.Context, f *Federation) error {
	if err := f.ProcessMetadataEntities(ctx); err != nil {
		return fmt.Errorf("federation %s: %w", f.FederationID, err)
	}
	return nil
}

// Save runs BeforePersist, writes the federation, then runs AfterPersist. A
// BeforePersist failure leaves the stored federation untouched.
func (p *Pipeline) Save(ctx context.Context, f *Federation) error {
	if err := p.BeforePersist(ctx, f); err != nil {
		return err
	}

	if f.isNew {
		if err := p.reg.Federations.Create(ctx, f.Federation); err != nil {
			return fmt.Errorf("failed to create federation: %w", err)
		}
		f.isNew = false
	} else {
		if err := p.reg.Federations.Update(ctx, f.Federation); err != nil {
			return fmt.Errorf("failed to update federation: %w", err)
		}
	}

	zerolog.Ctx(ctx).Debug().
		Str("federation_id", f.FederationID.String()).
		Str("name", f.Name).
		Bool("changed", f.changed).
		Msg("saved federation")

	if err := p.AfterPersist(ctx, f); err != nil {
		return err
	}

	telemetry.GetMetrics().FederationsRefreshed.Add(ctx, 1)
	return nil
}

// SaveEntity merges the entity's own document, if it has one, and writes the
// entity.
func (p *Pipeline) SaveEntity(ctx context.Context, e *Entity) error {
	if e.Source.HasDocument() {
		if err := e.ProcessMetadata(ctx, nil); err != nil {
			return &RecordError{Kind: KindEntity, ID: e.EntityID, Err: err}
		}
	}

	if e.isNew {
		if err := p.reg.Entities.Create(ctx, e.Entity); err != nil {
			return fmt.Errorf("failed to create entity: %w", err)
		}
		e.isNew = false
		return nil
	}

	if err := p.reg.Entities.Update(ctx, e.Entity); err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	return nil
}
