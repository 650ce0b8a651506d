package refresh

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutex(t *testing.T) {
	t.Run("overlapping key sets are serialized", func(t *testing.T) {
		km := newKeyedMutex()

		var (
			active  atomic.Int32
			overlap atomic.Bool
			wg      sync.WaitGroup
		)

		sets := [][]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"a"}}
		for i := range 40 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := km.Lock(sets[i%len(sets)])
				defer unlock()

				if active.Add(1) > 1 {
					overlap.Store(true)
				}
				active.Add(-1)
			}()
		}
		wg.Wait()

		require.False(t, overlap.Load())
		require.Zero(t, km.size())
	})

	t.Run("disjoint keys do not block", func(t *testing.T) {
		km := newKeyedMutex()

		unlockA := km.Lock([]string{"a"})
		unlockB := km.Lock([]string{"b"})
		require.Equal(t, 2, km.size())

		unlockA()
		unlockB()
		require.Zero(t, km.size())
	})

	t.Run("duplicate keys are locked once", func(t *testing.T) {
		km := newKeyedMutex()

		unlock := km.Lock([]string{"a", "a"})
		require.Equal(t, 1, km.size())
		unlock()
		require.Zero(t, km.size())
	})
}
