package valog

import "encoding/binary"

// read resolves a value pointer into a zero-copy slice over the arena.
//
// The returned slice aliases the arena and stays valid until the log is
// closed. For file backed logs the caller must also ensure the file is
// not mutated by another process while the slice is in use.
func (l *core) read(id, offset, size uint32) ([]byte, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if id != l.id {
		return nil, ErrIDMismatch
	}
	if size == 0 {
		// The zero pointer; offset is ignored.
		return []byte{}, nil
	}

	allocated := l.arena.Allocated()
	dataOffset := l.arena.DataOffset()
	end := uint64(offset) + uint64(size) + checksumLen
	if offset < dataOffset || end > uint64(allocated) {
		return nil, &OutOfBoundsError{
			Offset:     offset,
			Len:        size + checksumLen,
			DataOffset: dataOffset,
			EndOffset:  allocated,
		}
	}

	buf := l.arena.Bytes(offset, size+checksumLen)
	if l.opts.ValidateChecksum {
		stored := binary.LittleEndian.Uint64(buf[size:])
		if l.cks.Checksum(buf[:size]) != stored {
			return nil, ErrChecksumMismatch
		}
	}
	return buf[:size:size], nil
}

// Read returns the payload bytes a value pointer resolves to. The id must
// match the id of this log; when Options.ValidateChecksum is set the
// trailing checksum is recomputed and compared before the payload is
// handed out.
//
// The returned slice is a zero-copy view into the arena: it must not be
// modified and must not be used after Close.
func (l *ValueLog) Read(id, offset, size uint32) ([]byte, error) {
	return l.read(id, offset, size)
}

// ReadPointer is shorthand for Read(p.ID(), p.Offset(), p.Size()).
func (l *ValueLog) ReadPointer(p ValuePointer) ([]byte, error) {
	return l.read(p.ID(), p.Offset(), p.Size())
}

// Read returns the payload bytes a value pointer resolves to. See
// (*ValueLog).Read.
func (l *ImmutableValueLog) Read(id, offset, size uint32) ([]byte, error) {
	return l.read(id, offset, size)
}

// ReadPointer is shorthand for Read(p.ID(), p.Offset(), p.Size()).
func (l *ImmutableValueLog) ReadPointer(p ValuePointer) ([]byte, error) {
	return l.read(p.ID(), p.Offset(), p.Size())
}
