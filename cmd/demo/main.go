package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/al8n/valog/pkg/valog"
)

var (
	capacity = pflag.Uint32("capacity", 1<<20, "arena capacity in bytes")
	dir      = pflag.String("dir", "", "directory for the file backed part of the demo (default: temp dir)")
)

func main() {
	pflag.Parse()

	fmt.Println("=== valog Demo ===")

	// 1. In-memory log: insert, read, tombstone.
	fmt.Println("\n1. In-memory log...")
	opts := valog.DefaultOptions()
	opts.Capacity = *capacity

	l, err := valog.Alloc(0, opts, nil)
	if err != nil {
		log.Fatalf("Failed to alloc log: %v", err)
	}
	defer l.Close()

	values := []string{"Alice", "Bob", "Charlie", "David", "Eve"}
	var pointers []valog.ValuePointer
	for _, v := range values {
		vp, err := l.Insert([]byte(v))
		if err != nil {
			log.Fatalf("Failed to insert %s: %v", v, err)
		}
		fmt.Printf("  Insert: %-8s -> %v\n", v, vp)
		pointers = append(pointers, vp)
	}

	for i, vp := range pointers {
		got, err := l.ReadPointer(vp)
		if err != nil {
			log.Fatalf("Failed to read %v: %v", vp, err)
		}
		if string(got) != values[i] {
			log.Fatalf("Read %v: expected %s, got %s", vp, values[i], string(got))
		}
		fmt.Printf("  Read:   %v -> %s\n", vp, string(got))
	}

	tp, err := l.InsertTombstone([]byte(values[0]))
	if err != nil {
		log.Fatalf("Failed to insert tombstone: %v", err)
	}
	fmt.Printf("  Tombstone: %v (discarded now %d bytes)\n", tp, l.Discarded())

	// 2. Generic log over the same arena.
	fmt.Println("\n2. Generic log...")
	g := valog.NewGeneric[string](l, valog.StringCodec{})
	gp, err := g.Insert("Hello, valog!")
	if err != nil {
		log.Fatalf("Failed to insert generic value: %v", err)
	}
	s, err := g.ReadPointer(gp)
	if err != nil {
		log.Fatalf("Failed to read generic value: %v", err)
	}
	fmt.Printf("  Round trip: %q\n", s)

	// 3. File backed log: write, close, reopen frozen.
	fmt.Println("\n3. File backed log...")
	demoDir := *dir
	if demoDir == "" {
		demoDir = filepath.Join(os.TempDir(), "valog-demo")
		defer os.RemoveAll(demoDir)
	}
	if err := os.MkdirAll(demoDir, 0o755); err != nil {
		log.Fatalf("Failed to create %s: %v", demoDir, err)
	}
	path := filepath.Join(demoDir, "demo.vlog")
	_ = os.Remove(path)

	fopts := valog.DefaultOptions()
	fopts.Capacity = *capacity
	fopts.Read = true
	fopts.Write = true
	fopts.CreateNew = true

	fl, err := valog.MapMut(path, 1, fopts, nil)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", path, err)
	}

	var filePointers []valog.ValuePointer
	for _, v := range values {
		vp, err := fl.Insert([]byte(v))
		if err != nil {
			log.Fatalf("Failed to insert %s: %v", v, err)
		}
		filePointers = append(filePointers, vp)
	}
	if err := fl.Close(); err != nil {
		log.Fatalf("Failed to close %s: %v", path, err)
	}
	fmt.Printf("  Wrote %d records to %s\n", len(filePointers), path)

	ro := valog.DefaultOptions()
	ro.Read = true
	frozen, err := valog.Map(path, 1, ro, nil)
	if err != nil {
		log.Fatalf("Failed to reopen %s: %v", path, err)
	}
	defer frozen.Close()

	for i, vp := range filePointers {
		got, err := frozen.ReadPointer(vp)
		if err != nil {
			log.Fatalf("Failed to read %v after reopen: %v", vp, err)
		}
		if string(got) != values[i] {
			log.Fatalf("Reopen read %v: expected %s, got %s", vp, values[i], string(got))
		}
	}
	fmt.Printf("  Reopened frozen, all %d records verified\n", len(filePointers))

	fmt.Println("\n=== Demo complete ===")
}
