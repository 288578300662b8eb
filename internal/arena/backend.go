package arena

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Options configures how an arena is constructed. Capacity and DataOffset
// are required for every backend; the open flags only matter for OpenFile.
type Options struct {
	// Capacity is the total arena size. For OpenFile on an existing file
	// the capacity is derived from the file length instead.
	Capacity uint32

	// DataOffset is the first byte after the header and the caller
	// reserved region. Alloc never returns offsets below it.
	DataOffset uint32

	// Freelist is recorded for callers; see the Freelist type.
	Freelist Freelist

	// LockMeta mlocks the first page so the frequently accessed header
	// region cannot be swapped out.
	LockMeta bool

	// File open flags, semantics match open(2).
	Read      bool
	Write     bool
	Create    bool
	CreateNew bool
	Truncate  bool
	Append    bool

	// Offset is the byte offset into the file at which the mapping
	// starts. Must be page aligned.
	Offset uint64

	// Mapping flags, Linux only; ignored elsewhere.
	Stack    bool
	Huge     uint8
	Populate bool
}

// NewHeap constructs an arena over a heap allocated byte slice.
func NewHeap(opts Options) *Arena {
	a := &Arena{
		buf:        make([]byte, opts.Capacity),
		kind:       Heap,
		dataOffset: opts.DataOffset,
		freelist:   opts.Freelist,
	}
	a.allocated.Store(opts.DataOffset)
	a.refs.Store(1)
	return a
}

// NewAnon constructs an arena over an anonymous memory mapping.
func NewAnon(opts Options) (*Arena, error) {
	buf, err := unix.Mmap(-1, 0, int(opts.Capacity),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON|extraMapFlags(opts))
	if err != nil {
		return nil, fmt.Errorf("arena: map anon: %w", err)
	}

	a := &Arena{
		buf:        buf,
		kind:       AnonMap,
		dataOffset: opts.DataOffset,
		freelist:   opts.Freelist,
	}
	a.allocated.Store(opts.DataOffset)
	a.refs.Store(1)

	if opts.LockMeta {
		if err := a.Mlock(0, uint32(os.Getpagesize())); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("arena: mlock meta: %w", err)
		}
	}
	return a, nil
}

// OpenFile creates or opens a read-write file backed arena. The second
// return value reports whether the file already existed: new files are
// sized to opts.Capacity and start empty, existing files keep their length
// as the capacity and are treated as fully allocated.
func OpenFile(path string, opts Options) (*Arena, bool, error) {
	existed := false
	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		existed = true
	}

	f, err := os.OpenFile(path, openFlags(opts), 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("arena: open %s: %w", path, err)
	}

	size := int64(opts.Capacity)
	if existed && !opts.Truncate {
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, false, fmt.Errorf("arena: stat %s: %w", path, err)
		}
		size = st.Size() - int64(opts.Offset)
		if size < int64(opts.DataOffset) {
			f.Close()
			return nil, false, fmt.Errorf("arena: %s: file smaller than reserved region", path)
		}
	} else {
		existed = false
		if size < int64(opts.DataOffset) {
			f.Close()
			return nil, false, fmt.Errorf("arena: capacity %d smaller than reserved region (%d)", size, opts.DataOffset)
		}
		if err := f.Truncate(int64(opts.Offset) + size); err != nil {
			f.Close()
			return nil, false, fmt.Errorf("arena: truncate %s: %w", path, err)
		}
	}

	buf, err := unix.Mmap(int(f.Fd()), int64(opts.Offset), int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|extraMapFlags(opts))
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("arena: map %s: %w", path, err)
	}

	a := &Arena{
		buf:        buf,
		kind:       FileMap,
		path:       path,
		file:       f,
		dataOffset: opts.DataOffset,
		freelist:   opts.Freelist,
	}
	if existed {
		// The high-water mark is not persisted; a reopened file is
		// treated as fully allocated so every stored record stays
		// readable and new appends report insufficient space.
		a.allocated.Store(uint32(size))
	} else {
		a.allocated.Store(opts.DataOffset)
	}
	a.refs.Store(1)

	if opts.LockMeta {
		if err := a.Mlock(0, uint32(os.Getpagesize())); err != nil {
			_ = a.Close()
			return nil, false, fmt.Errorf("arena: mlock meta: %w", err)
		}
	}
	return a, existed, nil
}

// OpenFileReadOnly maps an existing file read-only. The capacity and the
// high-water mark are both the file length.
func OpenFileReadOnly(path string, opts Options) (*Arena, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("arena: open %s: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("arena: stat %s: %w", path, err)
	}
	size := st.Size() - int64(opts.Offset)
	if size < int64(opts.DataOffset) {
		f.Close()
		return nil, fmt.Errorf("arena: %s: file smaller than reserved region", path)
	}

	buf, err := unix.Mmap(int(f.Fd()), int64(opts.Offset), int(size),
		unix.PROT_READ, unix.MAP_SHARED|extraMapFlags(opts))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("arena: map %s: %w", path, err)
	}

	a := &Arena{
		buf:        buf,
		kind:       FileMap,
		path:       path,
		file:       f,
		dataOffset: opts.DataOffset,
		readonly:   true,
		freelist:   opts.Freelist,
	}
	a.allocated.Store(uint32(size))
	a.refs.Store(1)

	if opts.LockMeta {
		if err := a.Mlock(0, uint32(os.Getpagesize())); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("arena: mlock meta: %w", err)
		}
	}
	return a, nil
}

func openFlags(opts Options) int {
	var flag int
	switch {
	case opts.Read && opts.Write:
		flag = os.O_RDWR
	case opts.Write:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}
	if opts.Append {
		flag |= os.O_APPEND
	}
	if opts.Create {
		flag |= os.O_CREATE
	}
	if opts.CreateNew {
		flag |= os.O_CREATE | os.O_EXCL
	}
	if opts.Truncate {
		flag |= os.O_TRUNC
	}
	return flag
}
