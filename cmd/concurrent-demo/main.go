// Concurrent read/write demo: many writer goroutines append through
// every insert variant while reader goroutines resolve the resulting
// pointers, then the collected values are checked for exactness.
package main

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/al8n/valog/pkg/valog"
)

var (
	n        = pflag.Int("n", 500, "number of writer and reader goroutines")
	capacity = pflag.Uint32("capacity", 1<<20, "arena capacity in bytes")
)

func main() {
	pflag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dir, err := os.MkdirTemp("", "valog-concurrent-demo")
	if err != nil {
		logger.Fatal("create temp dir", zap.Error(err))
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "example.vlog")

	opts := valog.DefaultOptions()
	opts.Capacity = *capacity
	opts.Read = true
	opts.Write = true
	opts.CreateNew = true
	opts.Sync = false

	l, err := valog.MapMut(path, 0, opts, nil)
	if err != nil {
		logger.Fatal("open log", zap.String("path", path), zap.Error(err))
	}
	defer l.Close()

	generic := valog.NewGeneric[string](l, valog.StringCodec{})
	pointers := make(chan valog.ValuePointer, *n)

	logger.Info("starting",
		zap.Int("writers", *n),
		zap.Int("readers", *n),
		zap.Uint32("capacity", *capacity))
	start := time.Now()

	var writers errgroup.Group
	for i := 0; i < *n; i++ {
		writers.Go(func() error {
			val := strconv.Itoa(i)
			var (
				vp  valog.ValuePointer
				err error
			)
			switch i % 6 {
			case 0:
				vp, err = l.Insert([]byte(val))
			case 1:
				vp, err = generic.Insert(val)
			case 2:
				vp, err = l.InsertWith(valog.NewValueBuilder(uint32(len(val)), func(buf []byte) error {
					copy(buf, val)
					return nil
				}))
			case 3:
				vp, err = l.InsertTombstone([]byte(val))
			case 4:
				vp, err = generic.InsertTombstone(val)
			case 5:
				vp, err = l.InsertTombstoneWith(valog.NewValueBuilder(uint32(len(val)), func(buf []byte) error {
					copy(buf, val)
					return nil
				}))
			}
			if err != nil {
				return err
			}
			pointers <- vp
			return nil
		})
	}

	var (
		mu   sync.Mutex
		data []int
	)
	var readers errgroup.Group
	for i := 0; i < *n; i++ {
		// Each reader gets its own cloned handle over the shared arena.
		rl := l.Clone()
		readers.Go(func() error {
			defer rl.Close()
			for vp := range pointers {
				var s string
				if i%2 == 0 {
					raw, err := rl.ReadPointer(vp)
					if err != nil {
						return err
					}
					s = string(raw)
				} else {
					var err error
					s, err = generic.ReadPointer(vp)
					if err != nil {
						return err
					}
				}
				v, err := strconv.Atoi(s)
				if err != nil {
					return err
				}
				mu.Lock()
				data = append(data, v)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := writers.Wait(); err != nil {
		logger.Fatal("writer failed", zap.Error(err))
	}
	close(pointers)
	if err := readers.Wait(); err != nil {
		logger.Fatal("reader failed", zap.Error(err))
	}

	sort.Ints(data)
	for i, v := range data {
		if i != v {
			logger.Fatal("value mismatch", zap.Int("index", i), zap.Int("value", v))
		}
	}

	logger.Info("done",
		zap.Int("values", len(data)),
		zap.Uint32("allocated", l.Allocated()),
		zap.Uint32("discarded", l.Discarded()),
		zap.Duration("elapsed", time.Since(start)))
}
