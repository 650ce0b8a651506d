package records

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/saml"
	"github.com/wolfeidau/metsync/internal/store"
)

func TestEntity_LoadMetadata(t *testing.T) {
	ctx := context.Background()

	t.Run("no document and no federation is unresolved", func(t *testing.T) {
		fx := newFixture(t)
		ent := fx.reg.WrapEntity(&models.Entity{
			ID:         uuid.Must(uuid.NewV7()),
			EntityID:   "orphan",
			EntityType: models.EntityTypeSP,
		})

		err := ent.LoadMetadata(ctx, nil)
		require.ErrorIs(t, err, ErrUnresolvedMetadata)
		require.Contains(t, err.Error(), "cannot locate metadata for entity")

		_, err = ent.Name(ctx)
		require.ErrorIs(t, err, ErrUnresolvedMetadata)
	})

	t.Run("own document", func(t *testing.T) {
		fx := newFixture(t)
		ent := fx.reg.NewEntity("https://standalone.example/sp", models.EntityTypeSP, fx.putDoc(t, "entity.xml"))

		name, err := ent.Name(ctx)
		require.NoError(t, err)
		require.Equal(t, "Standalone SP", name)

		org, err := ent.Organization(ctx)
		require.NoError(t, err)
		require.Equal(t, "Standalone Org", org)
		require.Equal(t, "Standalone SP", ent.String())
	})

	t.Run("own document that is malformed", func(t *testing.T) {
		fx := newFixture(t)
		ent := fx.reg.NewEntity("https://standalone.example/sp", models.EntityTypeSP, fx.putDoc(t, "malformed.xml"))

		require.ErrorIs(t, ent.LoadMetadata(ctx, nil), ErrDocumentParse)
	})

	t.Run("without a hint the oldest federation is used", func(t *testing.T) {
		fx := newFixture(t)
		fx.saveFederation(t, "A", "examplefed.xml")
		fedB := fx.saveFederation(t, "B", "otherfed.xml")

		ent, err := fx.reg.EntityByEntityID(ctx, "sp-1")
		require.NoError(t, err)

		name, err := ent.Name(ctx)
		require.NoError(t, err)
		require.Equal(t, "Acme SP", name)

		hinted, err := fx.reg.EntityByEntityID(ctx, "sp-1")
		require.NoError(t, err)
		require.NoError(t, hinted.LoadMetadata(ctx, fedB))

		name, err = hinted.Name(ctx)
		require.NoError(t, err)
		require.Equal(t, "Shared SP", name)
	})

	t.Run("absent fields resolve to empty values", func(t *testing.T) {
		fx := newFixture(t)
		fx.saveFederation(t, "B", "otherfed.xml")

		ent, err := fx.reg.EntityByEntityID(ctx, "sp-1")
		require.NoError(t, err)

		org, err := ent.Organization(ctx)
		require.NoError(t, err)
		require.Empty(t, org)
	})

	t.Run("entity not listed by its federation", func(t *testing.T) {
		fx := newFixture(t)
		f := fx.saveFederation(t, "A", "examplefed.xml")

		ent := fx.reg.WrapEntity(&models.Entity{
			ID:            uuid.Must(uuid.NewV7()),
			EntityID:      "elsewhere",
			EntityType:    models.EntityTypeIdP,
			FederationIDs: []uuid.UUID{f.FederationID},
		})

		require.ErrorIs(t, ent.LoadMetadata(ctx, nil), ErrUnresolvedMetadata)
	})
}

func TestEntity_ProcessMetadata(t *testing.T) {
	ctx := context.Background()

	t.Run("identity mismatch leaves the record unchanged", func(t *testing.T) {
		fx := newFixture(t)
		fx.saveFederation(t, "A", "examplefed.xml")

		ent, err := fx.reg.EntityByEntityID(ctx, "sp-1")
		require.NoError(t, err)
		before := ent.Clone()

		err = ent.ProcessMetadata(ctx, &saml.EntityDescriptor{EntityID: "idp-1", EntityType: "idp"})
		require.ErrorIs(t, err, ErrIdentityMismatch)
		require.Contains(t, err.Error(), "entity id does not match metadata")
		require.False(t, ent.Changed())
		require.Equal(t, before, ent.Entity)

		stored, err := fx.ents.GetByEntityID(ctx, "sp-1")
		require.NoError(t, err)
		require.Equal(t, models.EntityTypeSP, stored.EntityType)
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		fx := newFixture(t)
		ent := fx.reg.WrapEntity(&models.Entity{EntityID: "idp-1", EntityType: models.EntityTypeSP})
		d := &saml.EntityDescriptor{EntityID: "idp-1", EntityType: "idp"}

		require.NoError(t, ent.ProcessMetadata(ctx, d))
		require.Equal(t, models.EntityTypeIdP, ent.EntityType)
		require.True(t, ent.Changed())

		require.NoError(t, ent.ProcessMetadata(ctx, d))
		require.Equal(t, models.EntityTypeIdP, ent.EntityType)
	})

	t.Run("empty type is not filled", func(t *testing.T) {
		fx := newFixture(t)
		ent := fx.reg.WrapEntity(&models.Entity{EntityID: "idp-1"})

		require.NoError(t, ent.ProcessMetadata(ctx, &saml.EntityDescriptor{EntityID: "idp-1", EntityType: "idp"}))
		require.Empty(t, ent.EntityType)
		require.False(t, ent.Changed())
	})

	t.Run("descriptor without a role does not clear the type", func(t *testing.T) {
		fx := newFixture(t)
		ent := fx.reg.WrapEntity(&models.Entity{EntityID: "aa-1", EntityType: models.EntityTypeSP})

		require.NoError(t, ent.ProcessMetadata(ctx, &saml.EntityDescriptor{EntityID: "aa-1"}))
		require.Equal(t, models.EntityTypeSP, ent.EntityType)
	})

	t.Run("nil descriptor resolves own metadata", func(t *testing.T) {
		fx := newFixture(t)
		ent := fx.reg.NewEntity("https://standalone.example/sp", models.EntityTypeIdP, fx.putDoc(t, "entity.xml"))

		require.NoError(t, ent.ProcessMetadata(ctx, nil))
		require.Equal(t, models.EntityTypeSP, ent.EntityType)
	})

	t.Run("own document describing another entity", func(t *testing.T) {
		fx := newFixture(t)
		ent := fx.reg.NewEntity("https://other.example/sp", models.EntityTypeSP, fx.putDoc(t, "entity.xml"))

		require.ErrorIs(t, ent.ProcessMetadata(ctx, nil), ErrIdentityMismatch)
	})
}

func TestPipeline_SaveEntity(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	ent := fx.reg.NewEntity("https://standalone.example/sp", models.EntityTypeSP, fx.putDoc(t, "entity.xml"))
	require.True(t, ent.New())
	require.NoError(t, fx.pipe.SaveEntity(ctx, ent))
	require.False(t, ent.New())

	stored, err := fx.ents.GetByEntityID(ctx, "https://standalone.example/sp")
	require.NoError(t, err)
	require.Equal(t, "standalone-sp", stored.Source.FileID)
	require.True(t, stored.Standalone())

	stored.Source.LogoRef = "logos/sp.png"
	updatedBefore := stored.UpdatedAt
	time.Sleep(time.Millisecond)
	require.NoError(t, fx.pipe.SaveEntity(ctx, fx.reg.WrapEntity(stored)))

	again, err := fx.ents.Get(ctx, stored.ID)
	require.NoError(t, err)
	require.Equal(t, "logos/sp.png", again.Source.LogoRef)
	require.True(t, again.UpdatedAt.After(updatedBefore))

	dup := fx.reg.NewEntity("https://standalone.example/sp", models.EntityTypeSP, models.Source{})
	require.ErrorIs(t, fx.pipe.SaveEntity(ctx, dup), store.ErrEntityAlreadyExists)
}
