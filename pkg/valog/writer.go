package valog

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/al8n/valog/internal/arena"
)

// ValueBuilder fills a pre-sized buffer in place, so callers can encode
// straight into the arena instead of staging through an intermediate
// allocation. Fill receives a slice of exactly Size bytes and must fill
// all of it; returning an error abandons the allocation.
type ValueBuilder struct {
	Size uint32
	Fill func(buf []byte) error
}

// NewValueBuilder pairs a size hint with a single-shot fill closure.
func NewValueBuilder(size uint32, fill func(buf []byte) error) ValueBuilder {
	return ValueBuilder{Size: size, Fill: fill}
}

// Insert appends a value and returns the pointer that resolves back to
// it. Safe for concurrent use; two concurrent inserts land on disjoint
// offsets and the relative record order is the arena allocation order.
func (l *ValueLog) Insert(value []byte) (ValuePointer, error) {
	return l.insert(NewValueBuilder(uint32(len(value)), func(buf []byte) error {
		copy(buf, value)
		return nil
	}), false)
}

// InsertTombstone appends a value exactly like Insert and additionally
// adds the payload length to the advisory discarded counter. The
// returned pointer carries the tombstone flag so the outer index can
// tell deletions from live values without re-reading.
func (l *ValueLog) InsertTombstone(value []byte) (ValuePointer, error) {
	return l.insert(NewValueBuilder(uint32(len(value)), func(buf []byte) error {
		copy(buf, value)
		return nil
	}), true)
}

// InsertWith appends a value built in place by vb.Fill. An error from
// the fill closure is returned as-is and rolls the allocation back, so
// callers can tell their own encoding errors from log errors.
func (l *ValueLog) InsertWith(vb ValueBuilder) (ValuePointer, error) {
	return l.insert(vb, false)
}

// InsertTombstoneWith is InsertWith plus the discarded-bytes bookkeeping
// of InsertTombstone.
func (l *ValueLog) InsertTombstoneWith(vb ValueBuilder) (ValuePointer, error) {
	return l.insert(vb, true)
}

func (l *ValueLog) insert(vb ValueBuilder, tombstone bool) (ValuePointer, error) {
	if l.closed.Load() {
		return ValuePointer{}, ErrClosed
	}

	// Empty values take no storage at all: no allocation, no checksum,
	// no discard bookkeeping.
	if vb.Size == 0 {
		vp := ValuePointer{id: l.id}
		if tombstone {
			vp = vp.withTombstone()
		}
		return vp, nil
	}

	total := uint64(vb.Size) + checksumLen
	if total > uint64(l.opts.MaxValueSize) {
		return ValuePointer{}, &ValueTooLargeError{Size: total, Maximum: uint64(l.opts.MaxValueSize)}
	}

	offset, err := l.arena.Alloc(uint32(total))
	if err != nil {
		return ValuePointer{}, translateAllocErr(err)
	}

	buf := l.arena.Bytes(offset, uint32(total))
	if err := vb.Fill(buf[:vb.Size]); err != nil {
		l.arena.Dealloc(offset, uint32(total))
		return ValuePointer{}, err
	}

	binary.LittleEndian.PutUint64(buf[vb.Size:], l.cks.Checksum(buf[:vb.Size]))

	// Flush before the record is considered committed: a concurrent
	// reader that learns the pointer only after this insert returns
	// always observes a consistent checksum, and a crash inside the
	// flush never exposes a half-published record as durable.
	if l.opts.Sync && l.arena.IsOnDisk() {
		if err := l.arena.FlushHeaderAndRange(offset, uint32(total)); err != nil {
			l.arena.Dealloc(offset, uint32(total))
			return ValuePointer{}, fmt.Errorf("valog: flush: %w", err)
		}
	}

	if tombstone {
		l.arena.IncreaseDiscarded(vb.Size)
	}

	vp := ValuePointer{id: l.id, offset: offset, size: vb.Size}
	if tombstone {
		vp = vp.withTombstone()
	}
	return vp, nil
}

// translateAllocErr rewraps the arena's allocation failure into the
// public error type.
func translateAllocErr(err error) error {
	var ise *arena.InsufficientSpaceError
	if errors.As(err, &ise) {
		return &InsufficientSpaceError{Requested: ise.Requested, Available: ise.Available}
	}
	return err
}
