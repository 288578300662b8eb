// Package valog implements an append-only, content-addressed value log:
// the value side of a WiscKey style key/value engine. Keys live in an
// outer index and hold ValuePointers that resolve back to payload bytes
// stored here. Each log is one fixed-capacity arena (heap slice,
// anonymous mapping or file backed mapping); when a log fills up the
// surrounding system opens a new one.
package valog

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/al8n/valog/internal/arena"
	"github.com/al8n/valog/pkg/checksum"
)

const (
	magicText        = "valog!"
	magicTextSize    = len(magicText)
	magicVersionSize = 2
	headerSize       = uint32(magicTextSize + magicVersionSize)

	checksumLen = 8
)

// core is the state shared by every log flavor.
type core struct {
	id     uint32
	arena  *arena.Arena
	cks    checksum.Checksumer
	opts   Options
	closed atomic.Bool
}

// ValueLog is a mutable value log. A single handle may be shared freely
// across goroutines: inserts synchronize through the arena's atomic bump
// and reads touch only immutable bytes.
type ValueLog struct {
	core
}

// ImmutableValueLog is a frozen value log opened read-only from an
// existing file. It supports every read-side operation and no inserts.
type ImmutableValueLog struct {
	core
}

// Alloc constructs a mutable in-memory log over a heap allocated arena.
func Alloc(id uint32, opts Options, cks checksum.Checksumer) (*ValueLog, error) {
	if cks == nil {
		cks = checksum.Crc32{}
	}
	if opts.Capacity < opts.dataOffset() {
		return nil, fmt.Errorf("valog: capacity %d smaller than header and reserved region (%d)", opts.Capacity, opts.dataOffset())
	}
	a := arena.NewHeap(opts.arenaOptions())
	if opts.Unify {
		writeHeader(a.ReservedSlice(), opts.MagicVersion)
	}
	return &ValueLog{core{id: id, arena: a, cks: cks, opts: opts}}, nil
}

// MapAnon constructs a mutable in-memory log over an anonymous mapping.
func MapAnon(id uint32, opts Options, cks checksum.Checksumer) (*ValueLog, error) {
	if cks == nil {
		cks = checksum.Crc32{}
	}
	if opts.Capacity < opts.dataOffset() {
		return nil, fmt.Errorf("valog: capacity %d smaller than header and reserved region (%d)", opts.Capacity, opts.dataOffset())
	}
	a, err := arena.NewAnon(opts.arenaOptions())
	if err != nil {
		return nil, err
	}
	if opts.Unify {
		buf, err := a.ReservedSliceMut()
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		writeHeader(buf, opts.MagicVersion)
	}
	return &ValueLog{core{id: id, arena: a, cks: cks, opts: opts}}, nil
}

// MapMut creates or reopens a mutable file backed log. New files are
// sized to opts.Capacity and get the header written; existing files keep
// their length as the capacity and have the header verified against
// opts.MagicVersion.
func MapMut(path string, id uint32, opts Options, cks checksum.Checksumer) (*ValueLog, error) {
	if cks == nil {
		cks = checksum.Crc32{}
	}
	a, existed, err := arena.OpenFile(path, opts.arenaOptions())
	if err != nil {
		return nil, err
	}
	if existed {
		if err := checkHeader(a.ReservedSlice(), opts.MagicVersion); err != nil {
			_ = a.Close()
			return nil, err
		}
	} else {
		buf, err := a.ReservedSliceMut()
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		writeHeader(buf, opts.MagicVersion)
	}
	return &ValueLog{core{id: id, arena: a, cks: cks, opts: opts}}, nil
}

// Map opens an existing file backed log read-only. The header is
// verified against opts.MagicVersion.
func Map(path string, id uint32, opts Options, cks checksum.Checksumer) (*ImmutableValueLog, error) {
	if cks == nil {
		cks = checksum.Crc32{}
	}
	a, err := arena.OpenFileReadOnly(path, opts.arenaOptions())
	if err != nil {
		return nil, err
	}
	if err := checkHeader(a.ReservedSlice(), opts.MagicVersion); err != nil {
		_ = a.Close()
		return nil, err
	}
	return &ImmutableValueLog{core{id: id, arena: a, cks: cks, opts: opts}}, nil
}

// writeHeader stamps the magic text and version into the first 8 bytes
// of the reserved region. Written exactly once, at creation.
func writeHeader(buf []byte, magicVersion uint16) {
	copy(buf[:magicTextSize], magicText)
	binary.LittleEndian.PutUint16(buf[magicTextSize:headerSize], magicVersion)
}

// checkHeader verifies a previously written header.
func checkHeader(buf []byte, magicVersion uint16) error {
	if string(buf[:magicTextSize]) != magicText {
		return ErrBadMagicText
	}
	if binary.LittleEndian.Uint16(buf[magicTextSize:headerSize]) != magicVersion {
		return ErrBadMagicVersion
	}
	return nil
}

// ID returns the caller-assigned identifier of the log.
func (l *core) ID() uint32 { return l.id }

// MagicVersion returns the configured magic version.
func (l *core) MagicVersion() uint16 { return l.opts.MagicVersion }

// Version returns the magic version stored in the header, or the
// configured one when the header was never written (in-memory logs
// without Unify).
func (l *core) Version() uint16 {
	if l.opts.Unify || l.arena.IsOnDisk() {
		buf := l.arena.ReservedSlice()
		return binary.LittleEndian.Uint16(buf[magicTextSize:headerSize])
	}
	return l.opts.MagicVersion
}

// Options returns a copy of the options snapshot the log was built with.
func (l *core) Options() Options { return l.opts }

// Capacity returns the total arena size in bytes.
func (l *core) Capacity() uint32 { return l.arena.Capacity() }

// Allocated returns the allocation high-water mark, including the header
// and the reserved region.
func (l *core) Allocated() uint32 { return l.arena.Allocated() }

// DataOffset returns the offset of the first record byte.
func (l *core) DataOffset() uint32 { return l.arena.DataOffset() }

// Discarded returns the advisory count of payload bytes flagged for
// garbage collection. Memory-only; resets on reopen.
func (l *core) Discarded() uint32 { return l.arena.Discarded() }

// Path returns the backing file path, or "" for in-memory logs.
func (l *core) Path() string { return l.arena.Path() }

// InMemory reports whether the log has no backing file.
func (l *core) InMemory() bool { return l.arena.IsInMemory() }

// OnDisk reports whether the log is backed by a file.
func (l *core) OnDisk() bool { return l.arena.IsOnDisk() }

// IsMap reports whether the log is backed by a memory mapping.
func (l *core) IsMap() bool { return l.arena.IsMap() }

// ReservedSlice returns the caller-reserved region between the header
// and the first record. Empty when Options.Reserved is zero.
func (l *core) ReservedSlice() []byte {
	if l.opts.Reserved == 0 {
		return nil
	}
	return l.arena.ReservedSlice()[headerSize:]
}

// LockExclusive takes an exclusive advisory lock on the backing file.
// No-op for in-memory logs.
func (l *core) LockExclusive() error { return l.arena.LockExclusive() }

// LockShared takes a shared advisory lock on the backing file.
func (l *core) LockShared() error { return l.arena.LockShared() }

// Unlock releases the advisory file lock.
func (l *core) Unlock() error { return l.arena.Unlock() }

// Mlock pins len bytes of the mapping starting at offset into RAM.
func (l *core) Mlock(offset, len uint32) error { return l.arena.Mlock(offset, len) }

// Munlock unpins len bytes of the mapping starting at offset.
func (l *core) Munlock(offset, len uint32) error { return l.arena.Munlock(offset, len) }

// Close drops this handle; later reads, inserts, flushes and
// ReservedSliceMut on it return ErrClosed. The accessors, ReservedSlice
// and the lock and mlock methods do not check for a closed handle.
// The arena and the backing file are released only when the last handle
// over the shared arena closes, so cloned handles keep working until they
// close themselves. Safe to call more than once. Slices returned by Read
// or ReservedSlice must not be used after the last handle closes.
func (l *core) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.arena.Close()
}

// Clone returns another handle over the same arena. Clones are cheap,
// read and write the same records, and each one is closed independently;
// the storage is released when the last handle closes.
func (l *ValueLog) Clone() *ValueLog {
	return &ValueLog{core{id: l.id, arena: l.arena.Ref(), cks: l.cks, opts: l.opts}}
}

// Clone returns another read-only handle over the same arena. See
// (*ValueLog).Clone.
func (l *ImmutableValueLog) Clone() *ImmutableValueLog {
	return &ImmutableValueLog{core{id: l.id, arena: l.arena.Ref(), cks: l.cks, opts: l.opts}}
}

// ReservedSliceMut returns the caller-reserved region for writing.
func (l *ValueLog) ReservedSliceMut() ([]byte, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if l.opts.Reserved == 0 {
		return nil, nil
	}
	buf, err := l.arena.ReservedSliceMut()
	if err != nil {
		return nil, err
	}
	return buf[headerSize:], nil
}

// Flush synchronously flushes the whole mapping to disk.
func (l *ValueLog) Flush() error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.arena.Flush()
}

// FlushAsync schedules a flush of the whole mapping.
func (l *ValueLog) FlushAsync() error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.arena.FlushAsync()
}

// FlushRange synchronously flushes len bytes starting at offset.
func (l *ValueLog) FlushRange(offset, len uint32) error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.arena.FlushRange(offset, len)
}

// FlushAsyncRange schedules a flush of len bytes starting at offset.
func (l *ValueLog) FlushAsyncRange(offset, len uint32) error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.arena.FlushAsyncRange(offset, len)
}
