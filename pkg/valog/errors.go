package valog

import (
	"errors"
	"fmt"
)

var (
	// ErrChecksumMismatch is returned when a payload does not verify
	// against its trailing checksum.
	ErrChecksumMismatch = errors.New("valog: checksum mismatch")

	// ErrIDMismatch is returned when a value pointer is presented to a
	// log that did not produce it.
	ErrIDMismatch = errors.New("valog: value pointer belongs to a different log")

	// ErrBadMagicText is returned when a reopened file does not start
	// with the magic text.
	ErrBadMagicText = errors.New("valog: bad magic text")

	// ErrBadMagicVersion is returned when a reopened file carries a
	// different magic version than the options ask for.
	ErrBadMagicVersion = errors.New("valog: bad magic version")

	// ErrClosed is returned by reads, inserts, flushes and
	// ReservedSliceMut on a handle after its Close.
	ErrClosed = errors.New("valog: log is closed")
)

// InsufficientSpaceError is returned by inserts that do not fit in the
// remaining arena space. The log is effectively full.
type InsufficientSpaceError struct {
	// Requested is the payload plus checksum size that was asked for.
	Requested uint32
	// Available is the space left in the arena.
	Available uint32
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("valog: insufficient space (requested %d, available %d)", e.Requested, e.Available)
}

// ValueTooLargeError is returned when payload plus checksum exceeds the
// configured maximum value size.
type ValueTooLargeError struct {
	// Size is the payload plus checksum size.
	Size uint64
	// Maximum is the configured cap.
	Maximum uint64
}

func (e *ValueTooLargeError) Error() string {
	return fmt.Sprintf("valog: value too large (size %d, maximum %d)", e.Size, e.Maximum)
}

// OutOfBoundsError is returned by reads whose range falls outside the
// valid record region.
type OutOfBoundsError struct {
	// Offset is the requested start offset.
	Offset uint32
	// Len is the requested length including the checksum.
	Len uint32
	// DataOffset is the first valid record byte.
	DataOffset uint32
	// EndOffset is the current allocation high-water mark.
	EndOffset uint32
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("valog: read out of bounds (offset %d, len %d, valid range [%d, %d))",
		e.Offset, e.Len, e.DataOffset, e.EndOffset)
}
