package benchmark

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/al8n/valog/pkg/checksum"
	"github.com/al8n/valog/pkg/valog"
)

// logFactory hands out fresh logs so benchmarks can rotate when one
// fills up, the way the surrounding system would.
type logFactory struct {
	b    *testing.B
	dir  string
	cks  checksum.Checksumer
	sync bool
	next uint32
}

func newLogFactory(b *testing.B, sync bool, cks checksum.Checksumer) *logFactory {
	return &logFactory{b: b, dir: b.TempDir(), cks: cks, sync: sync}
}

func (f *logFactory) open() *valog.ValueLog {
	opts := valog.DefaultOptions()
	opts.Capacity = 256 << 20
	opts.Read = true
	opts.Write = true
	opts.CreateNew = true
	opts.Sync = f.sync

	id := f.next
	f.next++
	l, err := valog.MapMut(filepath.Join(f.dir, fmt.Sprintf("%06d.vlog", id)), id, opts, f.cks)
	if err != nil {
		f.b.Fatalf("Failed to open log: %v", err)
	}
	f.b.Cleanup(func() { _ = l.Close() })
	return l
}

// insert appends to l, rotating to a fresh log when it fills up. Returns
// the log to keep appending to. Rotation is excluded from timing.
func (f *logFactory) insert(l *valog.ValueLog, value []byte) *valog.ValueLog {
	for {
		_, err := l.Insert(value)
		if err == nil {
			return l
		}
		var full *valog.InsufficientSpaceError
		if !errors.As(err, &full) {
			f.b.Fatalf("Insert failed: %v", err)
		}
		f.b.StopTimer()
		l = f.open()
		f.b.StartTimer()
	}
}

// BenchmarkInsert measures the append path without per-insert fsync.
func BenchmarkInsert(b *testing.B) {
	f := newLogFactory(b, false, nil)
	l := f.open()

	// Pre-generate values to avoid allocation in the benchmark loop.
	values := make([][]byte, b.N)
	for i := 0; i < b.N; i++ {
		values[i] = []byte(fmt.Sprintf("value-%d", i))
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		l = f.insert(l, values[i])
	}
}

// BenchmarkInsertSync measures the append path with per-insert fsync.
func BenchmarkInsertSync(b *testing.B) {
	f := newLogFactory(b, true, nil)
	l := f.open()

	values := make([][]byte, b.N)
	for i := 0; i < b.N; i++ {
		values[i] = []byte(fmt.Sprintf("value-%d", i))
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		l = f.insert(l, values[i])
	}
}

// BenchmarkRead measures checksum-verified reads of random records.
func BenchmarkRead(b *testing.B) {
	f := newLogFactory(b, false, nil)
	l := f.open()

	const numValues = 1000
	pointers := make([]valog.ValuePointer, numValues)
	for i := 0; i < numValues; i++ {
		vp, err := l.Insert([]byte(fmt.Sprintf("value-%d", i)))
		if err != nil {
			b.Fatalf("Insert failed: %v", err)
		}
		pointers[i] = vp
	}

	// Pre-generate the access order to keep rand out of the loop.
	order := make([]int, b.N)
	for i := 0; i < b.N; i++ {
		order[i] = rand.Intn(numValues)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := l.ReadPointer(pointers[order[i]]); err != nil {
			b.Fatalf("Read failed: %v", err)
		}
	}
}

// BenchmarkReadNoValidate measures reads with checksum validation off.
func BenchmarkReadNoValidate(b *testing.B) {
	opts := valog.DefaultOptions()
	opts.Capacity = 1 << 20
	opts.ValidateChecksum = false

	l, err := valog.Alloc(0, opts, nil)
	if err != nil {
		b.Fatalf("Failed to alloc log: %v", err)
	}
	b.Cleanup(func() { _ = l.Close() })

	vp, err := l.Insert([]byte("a medium sized benchmark value"))
	if err != nil {
		b.Fatalf("Insert failed: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := l.ReadPointer(vp); err != nil {
			b.Fatalf("Read failed: %v", err)
		}
	}
}

// BenchmarkChecksumers compares the available checksum implementations on
// the insert path with a 4KB value.
func BenchmarkChecksumers(b *testing.B) {
	value := make([]byte, 4096)
	rand.Read(value)

	for _, bc := range []struct {
		name string
		cks  checksum.Checksumer
	}{
		{"crc32", checksum.Crc32{}},
		{"xxhash64", checksum.XXHash64{}},
		{"xxh3", checksum.XXH3{}},
	} {
		b.Run(bc.name, func(b *testing.B) {
			f := newLogFactory(b, false, bc.cks)
			l := f.open()

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				l = f.insert(l, value)
			}
		})
	}
}
