package valog

import "fmt"

// ValuePointer resolves back to a payload stored in a log. Pointers are
// produced only by inserts (or as the zero pointer for empty values),
// are cheap to copy and compare by value.
//
// The tombstone flag is carried out-of-band for the outer index: it marks
// pointers returned by the tombstone insert variants and has no effect on
// reads.
type ValuePointer struct {
	id        uint32
	offset    uint32
	size      uint32
	tombstone bool
}

// NewValuePointer builds a pointer by hand. Normally pointers come from
// inserts; this exists for outer systems that persist and reload them.
func NewValuePointer(id, offset, size uint32) ValuePointer {
	return ValuePointer{id: id, offset: offset, size: size}
}

// ID returns the id of the log that produced this pointer.
func (p ValuePointer) ID() uint32 { return p.id }

// Offset returns the byte offset of the first payload byte.
func (p ValuePointer) Offset() uint32 { return p.offset }

// Size returns the payload length, excluding the trailing checksum.
func (p ValuePointer) Size() uint32 { return p.size }

// Tombstone reports whether this pointer was produced by a tombstone
// insert. Readers ignore it.
func (p ValuePointer) Tombstone() bool { return p.tombstone }

func (p ValuePointer) String() string {
	return fmt.Sprintf("ValuePointer{id: %d, offset: %d, size: %d}", p.id, p.offset, p.size)
}

// withTombstone marks the pointer as a tombstone.
func (p ValuePointer) withTombstone() ValuePointer {
	p.tombstone = true
	return p
}
