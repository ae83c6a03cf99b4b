package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/tilemap/internal/rastercache"
	"github.com/MeKo-Tech/tilemap/internal/tile"
)

// mockPrefetcher simulates tile prefetching for testing
type mockPrefetcher struct {
	delay     time.Duration
	failTiles map[string]bool // tiles that should fail
	cached    map[string]bool // tiles already present
	callCount atomic.Int32
}

func (m *mockPrefetcher) Prefetch(ctx context.Context, task Task) (rastercache.ResourceRef, bool, error) {
	m.callCount.Add(1)

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-time.After(m.delay):
	}

	key := task.Tile.String()
	if m.failTiles != nil && m.failTiles[key] {
		return "", false, errors.New("simulated failure")
	}

	ref := rastercache.ResourceRef(string(task.MapType) + "/" + key + ".png")
	return ref, !task.Force && m.cached[key], nil
}

func tiles(ids ...tile.CanonicalID) []Task {
	return Tasks(rastercache.Roadmap, ids, false)
}

func TestPool_BasicExecution(t *testing.T) {
	gen := &mockPrefetcher{delay: 10 * time.Millisecond}

	pool := New(Config{
		Workers:    2,
		Prefetcher: gen,
	})

	tasks := tiles(
		tile.CanonicalID{Z: 13, X: 4297, Y: 2754},
		tile.CanonicalID{Z: 13, X: 4297, Y: 2755},
		tile.CanonicalID{Z: 13, X: 4298, Y: 2754},
	)

	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	for _, r := range results {
		if r.Err != nil {
			t.Errorf("Unexpected error for %s: %v", r.Task.Tile.String(), r.Err)
		}
		if r.Ref == "" {
			t.Errorf("Expected ref for %s, got empty", r.Task.Tile.String())
		}
	}

	if gen.callCount.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d prefetch calls, got %d", len(tasks), gen.callCount.Load())
	}
}

func TestPool_Parallelism(t *testing.T) {
	// Use a longer delay to ensure parallelism is tested
	gen := &mockPrefetcher{delay: 50 * time.Millisecond}

	pool := New(Config{
		Workers:    4,
		Prefetcher: gen,
	})

	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{MapType: rastercache.Satellite, Tile: tile.CanonicalID{Z: 13, X: 4297 + i, Y: 2754}}
	}

	start := time.Now()
	results := pool.Run(context.Background(), tasks)
	elapsed := time.Since(start)

	// With 4 workers and 8 tasks at 50ms each, should take ~100ms (2 batches)
	// Allow some margin for overhead
	maxExpected := 200 * time.Millisecond
	if elapsed > maxExpected {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	t.Logf("Processed %d tasks with %d workers in %v", len(tasks), 4, elapsed)
}

func TestPool_ErrorHandling(t *testing.T) {
	failTile := "z13_x4297_y2755"
	gen := &mockPrefetcher{
		delay:     10 * time.Millisecond,
		failTiles: map[string]bool{failTile: true},
	}

	pool := New(Config{
		Workers:    2,
		Prefetcher: gen,
	})

	tasks := tiles(
		tile.CanonicalID{Z: 13, X: 4297, Y: 2754},
		tile.CanonicalID{Z: 13, X: 4297, Y: 2755}, // This one should fail
		tile.CanonicalID{Z: 13, X: 4298, Y: 2754},
	)

	results := pool.Run(context.Background(), tasks)

	// Should still get all results
	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	// Count successes and failures
	var successCount, failCount int
	for _, r := range results {
		if r.Err != nil {
			failCount++
			if r.Task.Tile.String() != failTile {
				t.Errorf("Unexpected failure for %s", r.Task.Tile.String())
			}
		} else {
			successCount++
		}
	}

	if successCount != 2 {
		t.Errorf("Expected 2 successes, got %d", successCount)
	}
	if failCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failCount)
	}
}

func TestPool_Cancellation(t *testing.T) {
	gen := &mockPrefetcher{delay: 100 * time.Millisecond}

	pool := New(Config{
		Workers:    2,
		Prefetcher: gen,
	})

	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = Task{MapType: rastercache.Satellite, Tile: tile.CanonicalID{Z: 13, X: 4297 + i, Y: 2754}}
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Cancel after a short time
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, tasks)
	elapsed := time.Since(start)

	// Should return early due to cancellation
	if elapsed > 200*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}

	// Some results may have errors due to cancellation
	var cancelledCount int
	for _, r := range results {
		if r.Err != nil && errors.Is(r.Err, context.Canceled) {
			cancelledCount++
		}
	}

	t.Logf("Completed with %d results (%d cancelled) in %v", len(results), cancelledCount, elapsed)
}

func TestPool_ProgressCallback(t *testing.T) {
	gen := &mockPrefetcher{delay: 10 * time.Millisecond}

	var progressCalls atomic.Int32
	var lastCompleted, lastTotal int

	pool := New(Config{
		Workers:    2,
		Prefetcher: gen,
		OnProgress: func(s Stats) {
			progressCalls.Add(1)
			lastCompleted = s.Completed
			lastTotal = s.Total
		},
	})

	tasks := tiles(
		tile.CanonicalID{Z: 13, X: 4297, Y: 2754},
		tile.CanonicalID{Z: 13, X: 4297, Y: 2755},
		tile.CanonicalID{Z: 13, X: 4298, Y: 2754},
	)

	pool.Run(context.Background(), tasks)

	// Should have received progress callbacks
	if progressCalls.Load() == 0 {
		t.Error("Expected progress callbacks, got none")
	}

	// Final callback should show all completed
	if lastCompleted != len(tasks) {
		t.Errorf("Expected lastCompleted=%d, got %d", len(tasks), lastCompleted)
	}
	if lastTotal != len(tasks) {
		t.Errorf("Expected lastTotal=%d, got %d", len(tasks), lastTotal)
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	gen := &mockPrefetcher{}

	pool := New(Config{
		Workers:    2,
		Prefetcher: gen,
	})

	results := pool.Run(context.Background(), nil)

	if len(results) != 0 {
		t.Errorf("Expected 0 results for empty tasks, got %d", len(results))
	}

	if gen.callCount.Load() != 0 {
		t.Errorf("Expected 0 prefetch calls for empty tasks, got %d", gen.callCount.Load())
	}
}

func TestPool_CachedTiles(t *testing.T) {
	gen := &mockPrefetcher{
		delay:  time.Millisecond,
		cached: map[string]bool{"z10_x301_y385": true},
	}

	var last Stats
	pool := New(Config{
		Workers:    1,
		Prefetcher: gen,
		OnProgress: func(s Stats) { last = s },
	})

	ids := []tile.CanonicalID{{Z: 10, X: 301, Y: 385}, {Z: 10, X: 302, Y: 385}}
	results := pool.Run(context.Background(), tiles(ids...))

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	want := Stats{Completed: 2, Total: 2, Cached: 1}
	if last != want {
		t.Errorf("final stats = %+v, want %+v", last, want)
	}
	if last.Fetched() != 1 {
		t.Errorf("Fetched() = %d, want 1", last.Fetched())
	}

	// Force bypasses the cache.
	results = pool.Run(context.Background(), Tasks(rastercache.Roadmap, ids, true))
	for _, r := range results {
		if r.Cached {
			t.Errorf("forced task %s reported cached", r.Task.Tile)
		}
		if r.Ref != "roadmap/"+rastercache.ResourceRef(r.Task.Tile.String())+".png" {
			t.Errorf("unexpected ref %s", r.Ref)
		}
	}
}
