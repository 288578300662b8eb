package arena

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Kind of storage backing an arena.
type Kind uint8

const (
	// Heap is a plain in-process byte slice.
	Heap Kind = iota
	// AnonMap is an anonymous memory mapping.
	AnonMap
	// FileMap is a file backed memory mapping.
	FileMap
)

// Freelist selects how aggressively abandoned segments are reclaimed.
// This arena only rolls back the trailing allocation; interior segments
// are accounted as discarded bytes instead of being reused.
type Freelist uint8

const (
	FreelistNone Freelist = iota
	FreelistOptimistic
	FreelistPessimistic
)

var (
	ErrReadOnly = errors.New("arena: read-only")
	ErrClosed   = errors.New("arena: closed")
)

// InsufficientSpaceError is returned by Alloc when the arena cannot hold
// the requested number of bytes.
type InsufficientSpaceError struct {
	Requested uint32
	Available uint32
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("arena: insufficient space (requested %d, available %d)", e.Requested, e.Available)
}

// Arena is a bump allocator over a fixed-capacity byte region. The region
// may live on the heap, in an anonymous mapping, or in a file backed
// mapping. Allocation is a CAS loop over an atomic high-water mark, so an
// arena is safe for any number of concurrent writers.
//
// Bytes below dataOffset are the reserved region (log header plus caller
// reserved bytes); records never land there.
type Arena struct {
	buf        []byte
	kind       Kind
	path       string
	file       *os.File
	dataOffset uint32
	readonly   bool
	freelist   Freelist

	allocated atomic.Uint32
	discarded atomic.Uint32

	// refs counts the handles sharing this arena; the storage is
	// released when the last one closes.
	refs   atomic.Int32
	closed atomic.Bool
}

// Alloc reserves n bytes and returns the offset of the reservation.
func (a *Arena) Alloc(n uint32) (uint32, error) {
	if a.readonly {
		return 0, ErrReadOnly
	}
	capacity := uint32(len(a.buf))
	for {
		cur := a.allocated.Load()
		avail := capacity - cur
		if n > avail {
			return 0, &InsufficientSpaceError{Requested: n, Available: avail}
		}
		if a.allocated.CompareAndSwap(cur, cur+n) {
			return cur, nil
		}
	}
}

// Dealloc abandons an allocation made by Alloc. When the segment is still
// the top of the arena the bump is rolled back and the bytes can be handed
// out again; otherwise the bytes are unreachable and are accounted as
// discarded. Reports whether the rollback succeeded.
func (a *Arena) Dealloc(offset, n uint32) bool {
	if a.allocated.CompareAndSwap(offset+n, offset) {
		return true
	}
	a.discarded.Add(n)
	return false
}

// Bytes returns the n bytes starting at offset. No bounds checking beyond
// the slice expression; callers validate offsets against Allocated first.
func (a *Arena) Bytes(offset, n uint32) []byte {
	return a.buf[offset : offset+n : offset+n]
}

// ReservedSlice returns the reserved region in front of the record region.
func (a *Arena) ReservedSlice() []byte {
	return a.buf[:a.dataOffset:a.dataOffset]
}

// ReservedSliceMut is like ReservedSlice but for writing. Callers must not
// hold it across a Close.
func (a *Arena) ReservedSliceMut() ([]byte, error) {
	if a.readonly {
		return nil, ErrReadOnly
	}
	return a.buf[:a.dataOffset:a.dataOffset], nil
}

// Allocated returns the high-water mark, including the reserved region.
func (a *Arena) Allocated() uint32 { return a.allocated.Load() }

// Capacity returns the total size of the arena in bytes.
func (a *Arena) Capacity() uint32 { return uint32(len(a.buf)) }

// DataOffset returns the offset of the first record byte.
func (a *Arena) DataOffset() uint32 { return a.dataOffset }

// IncreaseDiscarded adds n to the advisory discarded-bytes counter.
func (a *Arena) IncreaseDiscarded(n uint32) { a.discarded.Add(n) }

// Discarded returns the advisory discarded-bytes counter. The counter is
// memory-only and resets on reopen.
func (a *Arena) Discarded() uint32 { return a.discarded.Load() }

// IsInMemory reports whether the arena has no backing file.
func (a *Arena) IsInMemory() bool { return a.kind != FileMap }

// IsOnDisk reports whether the arena is backed by a file.
func (a *Arena) IsOnDisk() bool { return a.kind == FileMap }

// IsMap reports whether the arena is backed by a memory mapping.
func (a *Arena) IsMap() bool { return a.kind == AnonMap || a.kind == FileMap }

// ReadOnly reports whether the arena rejects allocations.
func (a *Arena) ReadOnly() bool { return a.readonly }

// Path returns the backing file path, or "" for in-memory arenas.
func (a *Arena) Path() string { return a.path }

// Flush synchronously flushes the whole mapping to disk. No-op for
// in-memory arenas.
func (a *Arena) Flush() error {
	return a.msync(0, uint32(len(a.buf)), unix.MS_SYNC)
}

// FlushAsync schedules a flush of the whole mapping and returns without
// waiting for it.
func (a *Arena) FlushAsync() error {
	return a.msync(0, uint32(len(a.buf)), unix.MS_ASYNC)
}

// FlushRange synchronously flushes len bytes starting at offset.
func (a *Arena) FlushRange(offset, len uint32) error {
	return a.msync(offset, len, unix.MS_SYNC)
}

// FlushAsyncRange schedules a flush of len bytes starting at offset.
func (a *Arena) FlushAsyncRange(offset, len uint32) error {
	return a.msync(offset, len, unix.MS_ASYNC)
}

// FlushHeaderAndRange synchronously flushes the first page together with
// len bytes starting at offset. The first page holds the log header and
// the reserved region.
func (a *Arena) FlushHeaderAndRange(offset, len uint32) error {
	page := uint32(os.Getpagesize())
	if offset < page {
		// The range already starts inside the first page; one msync
		// covers both.
		end := uint64(offset) + uint64(len)
		if limit := uint64(cap(a.buf)); end > limit {
			end = limit
		}
		if end < uint64(page) {
			end = uint64(page)
		}
		return a.msync(0, uint32(end), unix.MS_SYNC)
	}
	if err := a.msync(0, page, unix.MS_SYNC); err != nil {
		return err
	}
	return a.msync(offset, len, unix.MS_SYNC)
}

// msync flushes [offset, offset+len) after widening it to page boundaries.
// msync(2) requires a page-aligned base address.
func (a *Arena) msync(offset, len uint32, flags int) error {
	if a.kind != FileMap || len == 0 {
		return nil
	}
	if a.readonly {
		return ErrReadOnly
	}
	page := uint64(os.Getpagesize())
	start := uint64(offset) &^ (page - 1)
	end := uint64(offset) + uint64(len)
	if limit := uint64(cap(a.buf)); end > limit {
		end = limit
	}
	return unix.Msync(a.buf[start:end], flags)
}

// LockExclusive takes an exclusive advisory lock on the backing file.
func (a *Arena) LockExclusive() error {
	if a.file == nil {
		return nil
	}
	return unix.Flock(int(a.file.Fd()), unix.LOCK_EX)
}

// LockShared takes a shared advisory lock on the backing file.
func (a *Arena) LockShared() error {
	if a.file == nil {
		return nil
	}
	return unix.Flock(int(a.file.Fd()), unix.LOCK_SH)
}

// Unlock releases the advisory lock on the backing file.
func (a *Arena) Unlock() error {
	if a.file == nil {
		return nil
	}
	return unix.Flock(int(a.file.Fd()), unix.LOCK_UN)
}

// Mlock pins len bytes starting at offset into RAM.
func (a *Arena) Mlock(offset, len uint32) error {
	if !a.IsMap() || len == 0 {
		return nil
	}
	end := uint64(offset) + uint64(len)
	if limit := uint64(cap(a.buf)); end > limit {
		end = limit
	}
	return unix.Mlock(a.buf[offset:end])
}

// Munlock unpins len bytes starting at offset.
func (a *Arena) Munlock(offset, len uint32) error {
	if !a.IsMap() || len == 0 {
		return nil
	}
	end := uint64(offset) + uint64(len)
	if limit := uint64(cap(a.buf)); end > limit {
		end = limit
	}
	return unix.Munlock(a.buf[offset:end])
}

// Ref registers another handle on this arena and returns it. Every Ref
// must be paired with a Close; the storage is released only when the
// last handle closes.
func (a *Arena) Ref() *Arena {
	a.refs.Add(1)
	return a
}

// Refs returns the number of live handles.
func (a *Arena) Refs() int32 { return a.refs.Load() }

// Closed reports whether the storage has been released.
func (a *Arena) Closed() bool { return a.closed.Load() }

// Close drops one handle. The mapping and the backing file are released
// when the last handle goes; until then other holders keep reading and
// writing undisturbed. Releasing more handles than were taken is a no-op.
// Slices handed out by Bytes or ReservedSlice must not be used after the
// last Close returns.
func (a *Arena) Close() error {
	if a.refs.Add(-1) > 0 {
		return nil
	}
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}

	var first error
	if a.IsMap() {
		if err := unix.Munmap(a.buf); err != nil && first == nil {
			first = err
		}
	}
	a.buf = nil

	if a.file != nil {
		if err := a.file.Close(); err != nil && first == nil {
			first = err
		}
		a.file = nil
	}
	return first
}
