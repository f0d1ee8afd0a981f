// Command bmcore-bench exercises the scheduler, signal graph, grouped
// queue, paged allocator, and file reader together against a directory
// of real files, standing in for the interactive console front-ends
// the core itself stays free of.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/BareMetalEngine/bm-core-sub002/corecfg"
	"github.com/BareMetalEngine/bm-core-sub002/corelog"
	"github.com/BareMetalEngine/bm-core-sub002/filereader"
	"github.com/BareMetalEngine/bm-core-sub002/pagealloc"
	"github.com/BareMetalEngine/bm-core-sub002/taskscheduler"
	"github.com/BareMetalEngine/bm-core-sub002/taskutil"
)

func main() {
	dir := flag.String("dir", ".", "directory to read files from")
	threads := flag.Int("task-threads", 0, "main scheduler worker count (0 = auto)")
	flag.Parse()

	log := corelog.New(corelog.NewJSONSink(os.Stdout), corelog.LevelInfo)

	cl := corecfg.Map{}
	if *threads > 0 {
		cl["taskThreads"] = []string{fmt.Sprint(*threads)}
	}

	opts := taskscheduler.FromCommandLine(cl, nil, log)
	sched := taskscheduler.New(opts)
	defer sched.Shutdown()

	pool, err := pagealloc.New(pagealloc.Config{
		MinimumPageSize: 4096,
		MaximumPageSize: 16 << 20,
		CPURead:         true,
		CPUWrite:        true,
		RetentionBudget: 64 << 20,
		Log:             log,
	})
	if err != nil {
		log.Fatal("bmcore-bench: pagealloc.New: %v", err)
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatal("bmcore-bench: ReadDir %q: %v", *dir, err)
	}

	disp := filereader.NewDispatcherWithLogger(log)
	defer disp.Shutdown()

	var g errgroup.Group
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := *dir + "/" + entry.Name()
		g.Go(func() error {
			return loadAndSum(sched, pool, disp, log, path)
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("bmcore-bench: %v", err)
	}

	log.Info("bmcore-bench: done")
}

// loadAndSum loads path through the file reader, then fans a byte-sum
// checksum across the task scheduler via taskutil.ParallelForEach, as
// a concrete exercise of PA + FR + TS + TU + SG working together.
func loadAndSum(sched *taskscheduler.Scheduler, pool *pagealloc.Allocator, disp *filereader.Dispatcher, log *corelog.Logger, path string) error {
	reader, err := filereader.NewFromFile(path, disp)
	if err != nil {
		return err
	}
	defer reader.Release()

	size := reader.Size()
	if size == 0 {
		return nil
	}
	buf, err := filereader.LoadToBuffer(reader, pool, filereader.AbsoluteRange{Start: 0, End: size})
	if err != nil {
		return err
	}
	defer buf.Release()

	data := buf.Bytes()
	sums := make([]uint64, len(data))
	taskutil.ParallelForEach(sched, len(data), 4, func(i int) {
		sums[i] = uint64(data[i])
	})

	var total uint64
	for _, s := range sums {
		total += s
	}
	log.Info("bmcore-bench: %s size=%d checksum=%d", path, size, total)
	return nil
}
