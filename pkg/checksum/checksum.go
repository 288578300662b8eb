// Package checksum provides the checksum contract used by the value log
// and a few ready-made implementations. The log stores the 64-bit digest
// little-endian after each payload; which algorithm produced it is up to
// the caller, the log only replays the same Checksumer on read.
package checksum

import (
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
)

// Checksumer computes a 64-bit digest over a byte slice. Implementations
// must be stateless or otherwise safe for concurrent use, a single value
// is shared by every writer and reader of a log.
type Checksumer interface {
	Checksum(b []byte) uint64
}

// Crc32 is the default Checksumer: IEEE CRC-32 widened to 64 bits.
type Crc32 struct{}

func (Crc32) Checksum(b []byte) uint64 { return uint64(crc32.ChecksumIEEE(b)) }

// XXHash64 computes xxHash64 digests.
type XXHash64 struct{}

func (XXHash64) Checksum(b []byte) uint64 { return xxhash.Sum64(b) }

// XXH3 computes XXH3-64 digests.
type XXH3 struct{}

func (XXH3) Checksum(b []byte) uint64 { return xxh3.Hash(b) }
