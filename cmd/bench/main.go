// Licensed under the MIT License. See LICENSE file in the project root for details.

// Command bench drives one of the container harnesses in internal/workload
// under a chosen reclamation engine with a chosen number of concurrent
// goroutines, reporting throughput and the engine's final metrics snapshot.
//
// Grounded on HyalineS_SGL.cpp's `main(int argc, char* argv[])`, which takes
// a thread count as its one positional argument and reports an operation
// count over a fixed run; bench generalizes that to flags selecting the
// engine, workload, and run length.
//
// # Usage
//
//	bench -engine=ibr -workload=bst -threads=8 -ops=20000
//
// Exits non-zero if the run fails. Slot exhaustion surfaces as a Register
// error, and a panic on the goroutine executing run is recovered there and
// reported as an error. A panic inside a worker goroutine (such as the
// default misuse hook's double-retire panic during EndOp) is not recovered
// and terminates the process.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/ayushgupta75/reclaim/internal/config"
	"github.com/ayushgupta75/reclaim/internal/monitoring/metrics"
	"github.com/ayushgupta75/reclaim/internal/reclaim"
	"github.com/ayushgupta75/reclaim/internal/workload"
)

func main() {
	f, err := config.ParseFlags("bench", os.Args[1:])
	if err != nil {
		os.Exit(2) // flag already printed usage
	}

	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(1)
	}
}

func run(f config.Flags) (runErr error) {
	m := metrics.NewMetrics()
	defer m.Close()

	engine, err := config.NewEngine(f, m)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("run panicked (likely detected misuse): %v", r)
		}
	}()

	c, err := newContainer(f.Workload, engine)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < f.Threads; i++ {
		slot, err := engine.Register()
		if err != nil {
			return fmt.Errorf("register slot %d: %w", i, err)
		}

		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			defer engine.Unregister(slot)
			rng := rand.New(rand.NewSource(int64(slot) + 1))
			for j := 0; j < f.Ops; j++ {
				key := rng.Intn(f.Keyspace)
				switch rng.Intn(3) {
				case 0:
					c.insert(slot, key)
				case 1:
					c.find(slot, key)
				case 2:
					c.remove(slot, key)
				}
			}
		}(slot)
	}

	wg.Wait()
	duration := time.Since(start)

	if err := engine.Close(); err != nil {
		return fmt.Errorf("engine teardown: %w", err)
	}

	totalOps := f.Threads * f.Ops
	fmt.Printf("engine=%s workload=%s threads=%d ops=%d duration=%v (%.0f ops/sec)\n",
		f.Engine, f.Workload, f.Threads, totalOps, duration, float64(totalOps)/duration.Seconds())

	if f.Metrics {
		fmt.Println(string(m.ExportJSON()))
	}
	return nil
}

// container is the subset of the workload harness API bench needs to drive
// an arbitrary mix of operations without caring which concrete type it is
// holding. One container instance is built per run and shared by every
// worker goroutine, each passing its own registered slot — this is what
// actually exercises a shared object being read by one slot while
// another retires it, the property the stress run exists to check.
type container interface {
	insert(slot, key int)
	find(slot, key int)
	remove(slot, key int)
}

func newContainer(name string, engine reclaim.Reclaimer) (container, error) {
	switch name {
	case "hashmap":
		return hashMapContainer{workload.NewHashMap(engine, 256)}, nil
	case "bst":
		return bstContainer{workload.NewBST(engine)}, nil
	case "bonsai":
		return bonsaiContainer{workload.NewBonsai(engine)}, nil
	default:
		return nil, fmt.Errorf("unknown workload %q", name)
	}
}

type hashMapContainer struct{ m *workload.HashMap }

func (c hashMapContainer) insert(slot, key int) { c.m.Insert(slot, fmt.Sprintf("k%d", key), key) }
func (c hashMapContainer) find(slot, key int)   { c.m.Get(slot, fmt.Sprintf("k%d", key)) }
func (c hashMapContainer) remove(slot, key int) { c.m.Remove(slot, fmt.Sprintf("k%d", key)) }

type bstContainer struct{ t *workload.BST }

func (c bstContainer) insert(slot, key int) { c.t.Insert(slot, key) }
func (c bstContainer) find(slot, key int)   { c.t.Find(slot, key) }
func (c bstContainer) remove(slot, key int) { c.t.Remove(slot, key) }

type bonsaiContainer struct{ s *workload.Bonsai }

func (c bonsaiContainer) insert(slot, key int) { c.s.Insert(slot, key) }
func (c bonsaiContainer) find(slot, key int)   { c.s.Contains(slot, key) }
func (c bonsaiContainer) remove(slot, key int) { c.s.Remove(slot, key) }
