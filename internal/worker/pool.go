// Package worker provides a parallel tile prefetch worker pool.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/tilemap/internal/rastercache"
	"github.com/MeKo-Tech/tilemap/internal/tile"
)

// Prefetcher acquires one tile and records it in a raster cache.
// cached reports that the tile was already present and nothing was fetched.
type Prefetcher interface {
	Prefetch(ctx context.Context, task Task) (ref rastercache.ResourceRef, cached bool, err error)
}

// Task represents a single tile prefetch task.
type Task struct {
	MapType rastercache.MapType
	Tile    tile.CanonicalID
	Force   bool
}

// Tasks builds one task per tile.
func Tasks(mapType rastercache.MapType, tiles []tile.CanonicalID, force bool) []Task {
	tasks := make([]Task, len(tiles))
	for i, id := range tiles {
		tasks[i] = Task{MapType: mapType, Tile: id, Force: force}
	}
	return tasks
}

// Result represents the outcome of a tile prefetch task.
type Result struct {
	Task    Task
	Ref     rastercache.ResourceRef
	Cached  bool
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(Stats)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Prefetcher Prefetcher
	OnProgress ProgressFunc
}

// Pool manages parallel tile prefetching.
type Pool struct {
	workers    int
	prefetcher Prefetcher
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		prefetcher: cfg.Prefetcher,
		onProgress: cfg.OnProgress,
	}
}

// Run executes all tasks and returns results.
// Tasks are processed in parallel by the configured number of workers.
// The function blocks until all tasks complete or the context is cancelled;
// tasks never handed to a worker after cancellation have no result.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	// Create channels
	taskCh := make(chan Task, len(tasks))
	resultCh := make(chan Result, len(tasks))

	stats := Stats{Total: len(tasks)}

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	// Feed tasks
	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Collect results in a separate goroutine
	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})

	go func() {
		for result := range resultCh {
			results = append(results, result)

			stats.Completed++
			switch {
			case result.Err != nil:
				stats.Failed++
			case result.Cached:
				stats.Cached++
			}

			if p.onProgress != nil {
				p.onProgress(stats)
			}
		}
		close(done)
	}()

	// Wait for workers to finish
	wg.Wait()
	close(resultCh)

	// Wait for result collection to finish
	<-done

	return results
}

// worker processes tasks from the task channel and sends results to the result channel.
func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result) {
	for task := range tasks {
		select {
		case <-ctx.Done():
			// Send cancellation result
			results <- Result{
				Task: task,
				Err:  ctx.Err(),
			}
			continue
		default:
		}

		start := time.Now()
		ref, cached, err := p.prefetcher.Prefetch(ctx, task)
		elapsed := time.Since(start)

		results <- Result{
			Task:    task,
			Ref:     ref,
			Cached:  cached,
			Err:     err,
			Elapsed: elapsed,
		}
	}
}
