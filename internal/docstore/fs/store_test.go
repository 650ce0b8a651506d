package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/metsync/internal/docstore"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	st, err := New(root)
	require.NoError(t, err)
	require.Equal(t, docstore.DriverFilesystem, st.Driver())

	t.Run("put and get", func(t *testing.T) {
		require.NoError(t, st.Put(ctx, "federations/a.xml", []byte("one")))
		require.NoError(t, st.Put(ctx, "federations/a.xml", []byte("two")), "put replaces")

		got, err := st.Get(ctx, "federations/a.xml")
		require.NoError(t, err)
		require.Equal(t, []byte("two"), got)

		_, err = os.Stat(filepath.Join(root, "federations", "a.xml"))
		require.NoError(t, err)

		entries, err := os.ReadDir(filepath.Join(root, "federations"))
		require.NoError(t, err)
		require.Len(t, entries, 1, "no temp files left behind")
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := st.Get(ctx, "federations/missing.xml")
		require.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, st.Put(ctx, "entities/b.xml", []byte("b")))
		require.NoError(t, st.Delete(ctx, "entities/b.xml"))
		require.NoError(t, st.Delete(ctx, "entities/b.xml"), "deleting twice is a no-op")

		_, err := st.Get(ctx, "entities/b.xml")
		require.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("keys cannot escape the root", func(t *testing.T) {
		err := st.Put(ctx, "../outside.xml", []byte("x"))
		require.ErrorIs(t, err, docstore.ErrInvalidKey)

		_, err = st.Get(ctx, "/etc/passwd")
		require.ErrorIs(t, err, docstore.ErrInvalidKey)
	})
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}
