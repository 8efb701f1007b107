package parallel

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.running.Load() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewWorkerPool(n)
		if pool.Workers() != runtime.GOMAXPROCS(0) {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want GOMAXPROCS", n, pool.Workers())
		}
		pool.Close()
	}
}

// =============================================================================
// ExecuteAll Tests
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}

	if err := pool.ExecuteAll(work); err != nil {
		t.Fatalf("ExecuteAll() = %v", err)
	}
	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAll_Empty(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if err := pool.ExecuteAll(nil); err != nil {
		t.Errorf("ExecuteAll(nil) = %v", err)
	}
}

func TestWorkerPool_ExecuteAll_Panic(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 20)
	for i := range work {
		work[i] = func() {
			if i == 7 {
				panic("boom")
			}
			counter.Add(1)
		}
	}

	err := pool.ExecuteAll(work)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("ExecuteAll() = %v, want panic error", err)
	}
	if counter.Load() != 19 {
		t.Errorf("counter = %d, want 19 (other items still run)", counter.Load())
	}

	// The pool survives a panicking item.
	if err := pool.ExecuteAll([]func(){func() {}}); err != nil {
		t.Errorf("ExecuteAll after panic = %v", err)
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestWorkerPool_RunCoversEveryGroup(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	for _, groups := range []int{1, 2, 11, 12, 13, 1000} {
		hits := make([]atomic.Int32, groups)
		if err := pool.Run(context.Background(), groups, func(g int) {
			hits[g].Add(1)
		}); err != nil {
			t.Fatalf("Run(%d) = %v", groups, err)
		}
		for g := range hits {
			if n := hits[g].Load(); n != 1 {
				t.Errorf("groups=%d: group %d ran %d times", groups, g, n)
			}
		}
	}
}

func TestWorkerPool_RunZeroGroups(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	if err := pool.Run(context.Background(), 0, func(int) {
		t.Error("kernel called for zero groups")
	}); err != nil {
		t.Errorf("Run(0) = %v", err)
	}
}

func TestWorkerPool_RunIsBarrier(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// Each pass reads what the previous pass wrote.
	data := make([]int, 64)
	for pass := range 5 {
		if err := pool.Run(context.Background(), len(data), func(g int) {
			if data[g] != pass {
				t.Errorf("pass %d: data[%d] = %d", pass, g, data[g])
			}
			data[g]++
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWorkerPool_RunCanceled(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int64
	err := pool.Run(ctx, 100, func(int) { ran.Add(1) })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if ran.Load() != 0 {
		t.Errorf("%d groups ran after cancellation", ran.Load())
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(4)

	pool.Close()
	pool.Close()

	if pool.running.Load() {
		t.Error("Pool should not be running after close")
	}
}

func TestWorkerPool_OperationsAfterClose(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()

	var executed atomic.Bool
	err := pool.ExecuteAll([]func(){func() { executed.Store(true) }})
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("ExecuteAll() = %v, want ErrPoolClosed", err)
	}
	err = pool.Run(context.Background(), 4, func(int) { executed.Store(true) })
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Run() = %v, want ErrPoolClosed", err)
	}

	time.Sleep(20 * time.Millisecond)
	if executed.Load() {
		t.Error("Work was executed on closed pool")
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestWorkerPool_Concurrent(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	const callers, groups = 10, 50

	var wg sync.WaitGroup
	wg.Add(callers)
	for range callers {
		go func() {
			defer wg.Done()
			_ = pool.Run(context.Background(), groups, func(int) { counter.Add(1) })
		}()
	}
	wg.Wait()

	if counter.Load() != callers*groups {
		t.Errorf("counter = %d, want %d", counter.Load(), callers*groups)
	}
}

func TestWorkerPool_WorkStealing(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var slow, fast atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		if i%10 == 0 {
			work[i] = func() {
				time.Sleep(5 * time.Millisecond)
				slow.Add(1)
			}
		} else {
			work[i] = func() { fast.Add(1) }
		}
	}

	start := time.Now()
	if err := pool.ExecuteAll(work); err != nil {
		t.Fatal(err)
	}
	if slow.Load() != 10 || fast.Load() != 90 {
		t.Errorf("slow=%d fast=%d, want 10/90", slow.Load(), fast.Load())
	}
	t.Logf("Elapsed time: %v", time.Since(start))
}

func TestWorkerPool_NoGoroutineLeak(t *testing.T) {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baseline := runtime.NumGoroutine()

	for range 5 {
		pool := NewWorkerPool(4)
		_ = pool.Run(context.Background(), 100, func(int) {})
		pool.Close()
	}

	runtime.GC()
	time.Sleep(100 * time.Millisecond)

	if final := runtime.NumGoroutine(); final > baseline+2 {
		t.Errorf("goroutine count: baseline=%d, final=%d (leak detected)", baseline, final)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkWorkerPool_Run(b *testing.B) {
	pool := NewWorkerPool(runtime.GOMAXPROCS(0))
	defer pool.Close()

	data := make([]uint32, 1<<16)
	b.ReportAllocs()
	for b.Loop() {
		_ = pool.Run(context.Background(), len(data)/256, func(g int) {
			for i := g * 256; i < (g+1)*256; i++ {
				data[i]++
			}
		})
	}
}

func BenchmarkWorkerPool_vs_Goroutines(b *testing.B) {
	const numTasks = 100

	b.Run("WorkerPool", func(b *testing.B) {
		pool := NewWorkerPool(runtime.GOMAXPROCS(0))
		defer pool.Close()

		work := make([]func(), numTasks)
		for i := range work {
			work[i] = func() {}
		}
		b.ReportAllocs()
		for b.Loop() {
			_ = pool.ExecuteAll(work)
		}
	})

	b.Run("RawGoroutines", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			var wg sync.WaitGroup
			wg.Add(numTasks)
			for range numTasks {
				go func() { wg.Done() }()
			}
			wg.Wait()
		}
	})
}
