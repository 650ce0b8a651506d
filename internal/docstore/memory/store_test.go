package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/metsync/internal/docstore"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	data := []byte("<EntitiesDescriptor/>")
	key := docstore.ContentKey(docstore.FederationPrefix, data)

	require.NoError(t, s.Put(ctx, key, data))
	require.Equal(t, 1, s.Len())

	// stored bytes are not aliased
	data[0] = 'X'
	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "<EntitiesDescriptor/>", string(got))

	require.Error(t, s.Put(ctx, "../escape.xml", data))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	require.ErrorIs(t, err, docstore.ErrNotFound)
	require.Equal(t, docstore.DriverMemory, s.Driver())
}
