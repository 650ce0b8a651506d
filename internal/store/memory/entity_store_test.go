package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/store"
)

func newEntity(entityID string, federationIDs ...uuid.UUID) *models.Entity {
	now := time.Now()
	return &models.Entity{
		ID:            uuid.Must(uuid.NewV7()),
		EntityID:      entityID,
		EntityType:    models.EntityTypeIdP,
		FederationIDs: federationIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestEntityStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("create new entity", func(t *testing.T) {
		st := NewEntityStore()
		fedID := uuid.Must(uuid.NewV7())

		err := st.Create(ctx, newEntity("https://idp.example.org", fedID))
		require.NoError(t, err)

		retrieved, err := st.GetByEntityID(ctx, "https://idp.example.org")
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{fedID}, retrieved.FederationIDs)
	})

	t.Run("duplicate entity id returns error", func(t *testing.T) {
		st := NewEntityStore()

		require.NoError(t, st.Create(ctx, newEntity("https://idp.example.org")))

		err := st.Create(ctx, newEntity("https://idp.example.org"))
		require.Equal(t, store.ErrEntityAlreadyExists, err)
	})

	t.Run("concurrent creates keep entity id unique", func(t *testing.T) {
		st := NewEntityStore()

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- st.Create(ctx, newEntity("https://shared.example.org"))
			}()
		}
		wg.Wait()
		close(errs)

		created := 0
		for err := range errs {
			if err == nil {
				created++
				continue
			}
			require.ErrorIs(t, err, store.ErrEntityAlreadyExists)
		}
		require.Equal(t, 1, created)
	})
}

func TestEntityStore_Get(t *testing.T) {
	ctx := context.Background()
	st := NewEntityStore()

	entity := newEntity("https://sp.example.org")
	require.NoError(t, st.Create(ctx, entity))

	retrieved, err := st.Get(ctx, entity.ID)
	require.NoError(t, err)
	require.Equal(t, entity.EntityID, retrieved.EntityID)

	_, err = st.Get(ctx, uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, store.ErrEntityNotFound)

	_, err = st.GetByEntityID(ctx, "https://missing.example.org")
	require.ErrorIs(t, err, store.ErrEntityNotFound)
}

func TestEntityStore_Update(t *testing.T) {
	ctx := context.Background()
	st := NewEntityStore()
	fedID := uuid.Must(uuid.NewV7())

	entity := newEntity("https://idp.example.org", fedID)
	require.NoError(t, st.Create(ctx, entity))

	update := entity.Clone()
	update.EntityType = models.EntityTypeSP
	update.FederationIDs = nil
	require.NoError(t, st.Update(ctx, update))

	retrieved, err := st.Get(ctx, entity.ID)
	require.NoError(t, err)
	require.Equal(t, models.EntityTypeSP, retrieved.EntityType)
	require.Equal(t, []uuid.UUID{fedID}, retrieved.FederationIDs, "update must not touch membership")

	err = st.Update(ctx, newEntity("https://missing.example.org"))
	require.ErrorIs(t, err, store.ErrEntityNotFound)
}

func TestEntityStore_AddFederation(t *testing.T) {
	ctx := context.Background()
	st := NewEntityStore()
	fedA := uuid.Must(uuid.NewV7())
	fedB := uuid.Must(uuid.NewV7())

	entity := newEntity("https://idp.example.org", fedB)
	require.NoError(t, st.Create(ctx, entity))

	require.NoError(t, st.AddFederation(ctx, entity.ID, fedA))
	require.NoError(t, st.AddFederation(ctx, entity.ID, fedA), "linking twice is a no-op")

	retrieved, err := st.Get(ctx, entity.ID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{fedA, fedB}, retrieved.FederationIDs)

	err = st.AddFederation(ctx, uuid.Must(uuid.NewV7()), fedA)
	require.ErrorIs(t, err, store.ErrEntityNotFound)
}

func TestEntityStore_Lists(t *testing.T) {
	ctx := context.Background()
	st := NewEntityStore()
	fedID := uuid.Must(uuid.NewV7())

	require.NoError(t, st.Create(ctx, newEntity("https://b.example.org", fedID)))
	require.NoError(t, st.Create(ctx, newEntity("https://a.example.org", fedID)))
	require.NoError(t, st.Create(ctx, newEntity("https://c.example.org")))

	standalone := newEntity("https://own.example.org")
	standalone.Source.FileKey = "entities/own.xml"
	require.NoError(t, st.Create(ctx, standalone))

	members, err := st.ListByFederation(ctx, fedID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, "https://a.example.org", members[0].EntityID)
	require.Equal(t, "https://b.example.org", members[1].EntityID)

	own, err := st.ListStandalone(ctx)
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, "https://own.example.org", own[0].EntityID)
}
