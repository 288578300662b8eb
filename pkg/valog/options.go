package valog

import (
	"math"

	"github.com/al8n/valog/internal/arena"
)

// Freelist selects the arena reclamation strategy. Forwarded to the
// allocator as-is.
type Freelist = arena.Freelist

const (
	FreelistNone        = arena.FreelistNone
	FreelistOptimistic  = arena.FreelistOptimistic
	FreelistPessimistic = arena.FreelistPessimistic
)

// Options configures a value log. Construct with DefaultOptions, adjust
// fields, then pass to one of the constructors. A log keeps a private
// snapshot, mutating an Options after construction has no effect.
type Options struct {
	// Capacity is the arena size in bytes. Required for Alloc, MapAnon
	// and for MapMut when the file does not exist yet; for existing
	// files the capacity is the file length.
	Capacity uint32

	// MaxValueSize caps payload+checksum per insert.
	MaxValueSize uint32

	// MagicVersion is the application compatibility tag stored in the
	// header and verified on reopen.
	MagicVersion uint16

	// Unify writes the header into the reserved region for in-memory
	// logs too, so heap, anonymous and file backed logs share one
	// layout. File backed logs always carry the header.
	Unify bool

	// Freelist is forwarded to the arena.
	Freelist Freelist

	// Reserved is the number of caller-owned bytes between the 8-byte
	// header and the first record.
	Reserved uint32

	// LockMeta mlocks the first page of mapped logs.
	LockMeta bool

	// Sync flushes the header page and the record range after every
	// insert on file backed logs.
	Sync bool

	// ValidateChecksum verifies the trailing checksum on every read.
	ValidateChecksum bool

	// File open flags for MapMut, semantics match open(2). Map always
	// opens the file read-only and ignores them.
	Read      bool
	Write     bool
	Create    bool
	CreateNew bool
	Truncate  bool
	Append    bool

	// Offset is the page-aligned byte offset into the file at which the
	// log starts.
	Offset uint64

	// Mapping hints, Linux only.
	Stack    bool
	Huge     uint8
	Populate bool
}

// DefaultOptions returns the options the original defaults to: unbounded
// value size, per-insert sync, checksum validation on.
func DefaultOptions() Options {
	return Options{
		MaxValueSize:     math.MaxUint32,
		Sync:             true,
		ValidateChecksum: true,
	}
}

// dataOffset is the offset of the first record byte under these options.
func (o Options) dataOffset() uint32 {
	return headerSize + o.Reserved
}

func (o Options) arenaOptions() arena.Options {
	return arena.Options{
		Capacity:   o.Capacity,
		DataOffset: o.dataOffset(),
		Freelist:   o.Freelist,
		LockMeta:   o.LockMeta,
		Read:       o.Read,
		Write:      o.Write,
		Create:     o.Create,
		CreateNew:  o.CreateNew,
		Truncate:   o.Truncate,
		Append:     o.Append,
		Offset:     o.Offset,
		Stack:      o.Stack,
		Huge:       o.Huge,
		Populate:   o.Populate,
	}
}
