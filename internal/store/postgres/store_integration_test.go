//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString: fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
	})
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func newFederation(name string) *models.Federation {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Federation{
		FederationID: uuid.Must(uuid.NewV7()),
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newEntity(entityID string, federationIDs ...uuid.UUID) *models.Entity {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Entity{
		ID:            uuid.Must(uuid.NewV7()),
		EntityID:      entityID,
		EntityType:    models.EntityTypeIdP,
		FederationIDs: federationIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestIntegration_Stores(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	feds := NewFederationStore(pool)
	ents := NewEntityStore(pool)

	fedA := newFederation("FedA")
	fedB := newFederation("FedB")

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, Migrate(ctx, pool))
	})

	t.Run("create and get federation", func(t *testing.T) {
		require.NoError(t, feds.Create(ctx, fedA))
		require.NoError(t, feds.Create(ctx, fedB))

		err := feds.Create(ctx, fedA)
		require.ErrorIs(t, err, store.ErrFederationAlreadyExists)

		got, err := feds.Get(ctx, fedA.FederationID)
		require.NoError(t, err)
		require.Equal(t, "FedA", got.Name)
		require.Nil(t, got.RefreshedAt)

		_, err = feds.Get(ctx, uuid.Must(uuid.NewV7()))
		require.ErrorIs(t, err, store.ErrFederationNotFound)
	})

	t.Run("update federation", func(t *testing.T) {
		refreshed := time.Now().UTC().Truncate(time.Microsecond)
		fedA.Source = models.Source{FileKey: "federations/abc.xml", URL: "https://fed-a.example/md.xml", FileID: "fed-a"}
		fedA.RefreshedAt = &refreshed
		require.NoError(t, feds.Update(ctx, fedA))

		got, err := feds.Get(ctx, fedA.FederationID)
		require.NoError(t, err)
		require.Equal(t, fedA.Source, got.Source)
		require.NotNil(t, got.RefreshedAt)
		require.True(t, refreshed.Equal(*got.RefreshedAt))

		err = feds.Update(ctx, newFederation("missing"))
		require.ErrorIs(t, err, store.ErrFederationNotFound)
	})

	t.Run("list federations ordered by id", func(t *testing.T) {
		list, err := feds.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, fedA.FederationID, list[0].FederationID)
		require.Equal(t, fedB.FederationID, list[1].FederationID)
	})

	t.Run("entity lifecycle", func(t *testing.T) {
		idp := newEntity("https://idp.example.org", fedB.FederationID, fedA.FederationID)
		models.SortFederationIDs(idp.FederationIDs)
		require.NoError(t, ents.Create(ctx, idp))

		err := ents.Create(ctx, newEntity("https://idp.example.org"))
		require.ErrorIs(t, err, store.ErrEntityAlreadyExists)

		got, err := ents.GetByEntityID(ctx, "https://idp.example.org")
		require.NoError(t, err)
		require.Equal(t, idp.ID, got.ID)
		require.Equal(t, []uuid.UUID{fedA.FederationID, fedB.FederationID}, got.FederationIDs)

		got.EntityType = models.EntityTypeSP
		require.NoError(t, ents.Update(ctx, got))

		got, err = ents.Get(ctx, idp.ID)
		require.NoError(t, err)
		require.Equal(t, models.EntityTypeSP, got.EntityType)

		_, err = ents.Get(ctx, uuid.Must(uuid.NewV7()))
		require.ErrorIs(t, err, store.ErrEntityNotFound)
	})

	t.Run("add federation is idempotent", func(t *testing.T) {
		sp := newEntity("https://sp.example.org")
		require.NoError(t, ents.Create(ctx, sp))

		require.NoError(t, ents.AddFederation(ctx, sp.ID, fedA.FederationID))
		require.NoError(t, ents.AddFederation(ctx, sp.ID, fedA.FederationID))

		members, err := ents.ListByFederation(ctx, fedA.FederationID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		require.Equal(t, "https://idp.example.org", members[0].EntityID)
		require.Equal(t, "https://sp.example.org", members[1].EntityID)
		require.Equal(t, []uuid.UUID{fedA.FederationID}, members[1].FederationIDs)

		err = ents.AddFederation(ctx, sp.ID, uuid.Must(uuid.NewV7()))
		require.ErrorIs(t, err, store.ErrFederationNotFound)

		err = ents.AddFederation(ctx, uuid.Must(uuid.NewV7()), fedA.FederationID)
		require.ErrorIs(t, err, store.ErrEntityNotFound)
	})

	t.Run("list standalone", func(t *testing.T) {
		standalone := newEntity("https://standalone.example.org")
		standalone.Source.URL = "https://standalone.example.org/metadata"
		require.NoError(t, ents.Create(ctx, standalone))

		list, err := ents.ListStandalone(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, standalone.ID, list[0].ID)
		require.Empty(t, list[0].FederationIDs)
	})

	t.Run("concurrent creates keep entity id unique", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- ents.Create(ctx, newEntity("https://race.example.org", fedA.FederationID))
			}()
		}
		wg.Wait()
		close(errs)

		var created int
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
