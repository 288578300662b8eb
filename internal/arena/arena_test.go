package arena

import (
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func heapArena(t *testing.T, capacity, dataOffset uint32) *Arena {
	t.Helper()
	a := NewHeap(Options{Capacity: capacity, DataOffset: dataOffset})
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAllocBump(t *testing.T) {
	a := heapArena(t, 100, 8)

	require.Equal(t, uint32(8), a.Allocated())
	require.Equal(t, uint32(100), a.Capacity())
	require.Equal(t, uint32(8), a.DataOffset())

	off1, err := a.Alloc(10)
	require.NoError(t, err)
	require.Equal(t, uint32(8), off1)

	off2, err := a.Alloc(20)
	require.NoError(t, err)
	require.Equal(t, uint32(18), off2)
	require.Equal(t, uint32(38), a.Allocated())
}

func TestAllocInsufficientSpace(t *testing.T) {
	a := heapArena(t, 100, 8)

	_, err := a.Alloc(93)
	var ise *InsufficientSpaceError
	require.ErrorAs(t, err, &ise)
	require.Equal(t, uint32(93), ise.Requested)
	require.Equal(t, uint32(92), ise.Available)

	// A failed alloc must not consume space.
	off, err := a.Alloc(92)
	require.NoError(t, err)
	require.Equal(t, uint32(8), off)
	require.Equal(t, uint32(100), a.Allocated())
}

func TestDeallocRollback(t *testing.T) {
	a := heapArena(t, 100, 8)

	off1, err := a.Alloc(10)
	require.NoError(t, err)
	off2, err := a.Alloc(10)
	require.NoError(t, err)

	// Top of the arena rolls back and the space is handed out again.
	require.True(t, a.Dealloc(off2, 10))
	require.Equal(t, uint32(18), a.Allocated())
	off3, err := a.Alloc(10)
	require.NoError(t, err)
	require.Equal(t, off2, off3)

	// An interior segment cannot roll back; it becomes discarded bytes.
	pre := a.Discarded()
	require.False(t, a.Dealloc(off1, 10))
	require.Equal(t, pre+10, a.Discarded())
	require.Equal(t, uint32(28), a.Allocated())
}

func TestDiscardedMonotonic(t *testing.T) {
	a := heapArena(t, 100, 8)

	require.Equal(t, uint32(0), a.Discarded())
	a.IncreaseDiscarded(5)
	a.IncreaseDiscarded(7)
	require.Equal(t, uint32(12), a.Discarded())
}

func TestConcurrentAllocDisjoint(t *testing.T) {
	const writers = 64

	a := heapArena(t, 1<<20, 8)

	var mu sync.Mutex
	type segment struct{ off, n uint32 }
	segments := make([]segment, 0, writers)

	var eg errgroup.Group
	for i := 0; i < writers; i++ {
		n := uint32(16 + i%32)
		eg.Go(func() error {
			off, err := a.Alloc(n)
			if err != nil {
				return err
			}
			mu.Lock()
			segments = append(segments, segment{off, n})
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	sort.Slice(segments, func(i, j int) bool { return segments[i].off < segments[j].off })
	prev := uint32(8)
	for _, s := range segments {
		require.GreaterOrEqual(t, s.off, prev, "overlapping allocation")
		prev = s.off + s.n
	}
	require.Equal(t, prev, a.Allocated())
}

func TestHeapBackendKind(t *testing.T) {
	a := heapArena(t, 64, 8)
	require.True(t, a.IsInMemory())
	require.False(t, a.IsOnDisk())
	require.False(t, a.IsMap())
	require.Equal(t, "", a.Path())
}

func TestAnonBackend(t *testing.T) {
	a, err := NewAnon(Options{Capacity: 1 << 16, DataOffset: 8})
	require.NoError(t, err)
	defer a.Close()

	require.True(t, a.IsInMemory())
	require.True(t, a.IsMap())
	require.False(t, a.IsOnDisk())

	off, err := a.Alloc(32)
	require.NoError(t, err)
	copy(a.Bytes(off, 32), "anon mapping payload")
	require.Equal(t, "anon mapping payload", string(a.Bytes(off, 20)))

	// Flushing an in-memory arena is a no-op, not an error.
	require.NoError(t, a.Flush())
}

func TestFileBackendCreateAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vlog")

	a, existed, err := OpenFile(path, Options{
		Capacity:   4096,
		DataOffset: 8,
		Read:       true,
		Write:      true,
		Create:     true,
	})
	require.NoError(t, err)
	require.False(t, existed)
	require.True(t, a.IsOnDisk())
	require.True(t, a.IsMap())
	require.Equal(t, path, a.Path())
	require.Equal(t, uint32(8), a.Allocated())

	off, err := a.Alloc(16)
	require.NoError(t, err)
	copy(a.Bytes(off, 16), "hello file arena")
	require.NoError(t, a.FlushHeaderAndRange(off, 16))
	require.NoError(t, a.Close())

	// Reopen read-write: the file length is the capacity and the arena
	// is fully allocated.
	a2, existed, err := OpenFile(path, Options{
		Capacity:   4096,
		DataOffset: 8,
		Read:       true,
		Write:      true,
	})
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, uint32(4096), a2.Capacity())
	require.Equal(t, uint32(4096), a2.Allocated())
	require.Equal(t, "hello file arena", string(a2.Bytes(off, 16)))
	require.NoError(t, a2.Close())

	// Read-only mapping rejects allocation.
	a3, err := OpenFileReadOnly(path, Options{DataOffset: 8})
	require.NoError(t, err)
	require.True(t, a3.ReadOnly())
	require.Equal(t, "hello file arena", string(a3.Bytes(off, 16)))
	_, err = a3.Alloc(1)
	require.ErrorIs(t, err, ErrReadOnly)
	require.NoError(t, a3.Close())
}

func TestFileBackendLocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock.vlog")

	a, _, err := OpenFile(path, Options{
		Capacity:   1024,
		DataOffset: 8,
		Read:       true,
		Write:      true,
		Create:     true,
	})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.LockExclusive())
	require.NoError(t, a.Unlock())
	require.NoError(t, a.LockShared())
	require.NoError(t, a.Unlock())
}

func TestCloseIdempotent(t *testing.T) {
	a := NewHeap(Options{Capacity: 64, DataOffset: 8})
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	require.True(t, a.Closed())
}

func TestRefCounting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.vlog")

	a, _, err := OpenFile(path, Options{
		Capacity:   4096,
		DataOffset: 8,
		Read:       true,
		Write:      true,
		Create:     true,
	})
	require.NoError(t, err)
	require.Equal(t, int32(1), a.Refs())

	off, err := a.Alloc(16)
	require.NoError(t, err)
	copy(a.Bytes(off, 16), "shared mapping ok")

	b := a.Ref()
	require.Same(t, a, b)
	require.Equal(t, int32(2), a.Refs())

	// Dropping one handle must not release the mapping.
	require.NoError(t, a.Close())
	require.False(t, b.Closed())
	require.Equal(t, "shared mapping o", string(b.Bytes(off, 16)))

	require.NoError(t, b.Close())
	require.True(t, b.Closed())
}
