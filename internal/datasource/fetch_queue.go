package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/tilemap/internal/metrics"
	"github.com/MeKo-Tech/tilemap/internal/rastercache"
	"github.com/MeKo-Tech/tilemap/internal/tile"
)

var (
	// ErrQueueFull is returned by Submit when no slot is free.
	ErrQueueFull = errors.New("fetch queue is full")
	// ErrQueueClosed is returned once Stop has been called.
	ErrQueueClosed = errors.New("fetch queue is shutting down")
)

// Fetcher downloads one tile image.
type Fetcher interface {
	Fetch(ctx context.Context, mapType rastercache.MapType, id tile.CanonicalID) ([]byte, error)
}

// FetchCallback receives the outcome of a job. It is never invoked for a job
// whose context was cancelled.
type FetchCallback func(id tile.CanonicalID, data []byte, err error)

// FetchJob represents a tile fetch request.
type FetchJob struct {
	Ctx       context.Context
	MapType   rastercache.MapType
	Tile      tile.CanonicalID
	OnFetched FetchCallback
}

// FetchQueueStatus contains current status of the fetch queue.
type FetchQueueStatus struct {
	// ActiveFetches is the number of currently in-flight fetch operations
	ActiveFetches int `json:"active_fetches"`
	// QueuedFetches is the number of jobs waiting in the queue
	QueuedFetches int `json:"queued_fetches"`
	// TotalCompleted is the total number of completed fetches since start
	TotalCompleted int64 `json:"total_completed"`
	// TotalFailed is the total number of failed fetches since start
	TotalFailed int64 `json:"total_failed"`
	// TotalCancelled counts jobs dropped because their context ended
	TotalCancelled int64 `json:"total_cancelled"`
	// TotalBytes is the total bytes fetched since start
	TotalBytes int64 `json:"total_bytes"`
	// CurrentTiles lists tiles currently being fetched
	CurrentTiles []string `json:"current_tiles"`
}

// FetchQueueConfig configures the fetch queue behavior.
type FetchQueueConfig struct {
	// Workers is the number of concurrent fetch workers (default: 2)
	Workers int
	// QueueSize is the maximum number of pending fetch jobs (default: 100)
	QueueSize int
	// Logger for fetch operations
	Logger *slog.Logger
}

// DefaultFetchQueueConfig returns sensible defaults.
func DefaultFetchQueueConfig() FetchQueueConfig {
	return FetchQueueConfig{
		Workers:   2,
		QueueSize: 100,
		Logger:    slog.Default(),
	}
}

// FetchQueue runs tile fetches on a pool of workers, decoupled from the
// callers that need the tiles.
type FetchQueue struct {
	fetcher   Fetcher
	jobs      chan FetchJob
	cfg       FetchQueueConfig
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.RWMutex // guards sends on jobs against close
	closed    bool

	activeFetches  atomic.Int32
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64
	totalCancelled atomic.Int64
	totalBytes     atomic.Int64
	currentTiles   sync.Map // map[string]time.Time - tile key -> start time
}

// NewFetchQueue creates a new fetch queue with the given fetcher and config.
func NewFetchQueue(fetcher Fetcher, cfg FetchQueueConfig) *FetchQueue {
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FetchQueue{
		fetcher: fetcher,
		jobs:    make(chan FetchJob, cfg.QueueSize),
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing fetch jobs with the configured number of workers.
func (fq *FetchQueue) Start() {
	fq.startOnce.Do(func() {
		fq.cfg.Logger.Info("starting fetch queue workers", "workers", fq.cfg.Workers)
		for i := 0; i < fq.cfg.Workers; i++ {
			fq.wg.Add(1)
			go fq.worker(i)
		}
	})
}

// Stop cancels in-flight fetches and waits for the workers. Queued jobs are
// dropped without callbacks.
func (fq *FetchQueue) Stop() {
	fq.stopOnce.Do(func() {
		fq.cancel()
		fq.mu.Lock()
		fq.closed = true
		close(fq.jobs)
		fq.mu.Unlock()
		fq.wg.Wait()
	})
}

// Submit adds a fetch job to the queue and returns immediately.
// The job's callback runs on a worker goroutine when the fetch completes.
func (fq *FetchQueue) Submit(job FetchJob) error {
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}

	fq.mu.RLock()
	defer fq.mu.RUnlock()
	if fq.closed {
		return ErrQueueClosed
	}

	select {
	case fq.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitAndWait queues a fetch and blocks until it completes or ctx is done.
func (fq *FetchQueue) SubmitAndWait(ctx context.Context, mapType rastercache.MapType, id tile.CanonicalID) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	job := FetchJob{
		Ctx:     ctx,
		MapType: mapType,
		Tile:    id,
		OnFetched: func(_ tile.CanonicalID, data []byte, err error) {
			done <- result{data: data, err: err}
		},
	}

	fq.mu.RLock()
	if fq.closed {
		fq.mu.RUnlock()
		return nil, ErrQueueClosed
	}
	select {
	case fq.jobs <- job:
		fq.mu.RUnlock()
	case <-ctx.Done():
		fq.mu.RUnlock()
		return nil, ctx.Err()
	case <-fq.ctx.Done():
		fq.mu.RUnlock()
		return nil, ErrQueueClosed
	}

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-fq.ctx.Done():
		return nil, ErrQueueClosed
	}
}

// FetchSync performs a synchronous fetch, bypassing the queue.
func (fq *FetchQueue) FetchSync(ctx context.Context, mapType rastercache.MapType, id tile.CanonicalID) ([]byte, error) {
	return fq.doFetch(ctx, mapType, id)
}

// Status returns the current status of the fetch queue.
func (fq *FetchQueue) Status() FetchQueueStatus {
	var currentTiles []string
	fq.currentTiles.Range(func(key, _ any) bool {
		currentTiles = append(currentTiles, key.(string))
		return true
	})
	sort.Strings(currentTiles)

	return FetchQueueStatus{
		ActiveFetches:  int(fq.activeFetches.Load()),
		QueuedFetches:  len(fq.jobs),
		TotalCompleted: fq.totalCompleted.Load(),
		TotalFailed:    fq.totalFailed.Load(),
		TotalCancelled: fq.totalCancelled.Load(),
		TotalBytes:     fq.totalBytes.Load(),
		CurrentTiles:   currentTiles,
	}
}

func (fq *FetchQueue) worker(id int) {
	defer fq.wg.Done()
	log := fq.cfg.Logger.With("worker_id", id)
	log.Debug("fetch worker started")

	for {
		select {
		case <-fq.ctx.Done():
			log.Debug("fetch worker stopping")
			return
		case job, ok := <-fq.jobs:
			if !ok {
				log.Debug("fetch worker channel closed")
				return
			}
			fq.run(job)
		}
	}
}

// run executes one job. The job context and the queue context both cancel
// the fetch; a cancelled job is counted and dropped.
func (fq *FetchQueue) run(job FetchJob) {
	if job.Ctx.Err() != nil {
		fq.dropCancelled(job)
		return
	}

	ctx, cancel := context.WithCancel(job.Ctx)
	defer cancel()
	stop := context.AfterFunc(fq.ctx, cancel)
	defer stop()

	data, err := fq.doFetch(ctx, job.MapType, job.Tile)
	if ctx.Err() != nil {
		fq.dropCancelled(job)
		return
	}
	if job.OnFetched != nil {
		job.OnFetched(job.Tile, data, err)
	}
}

func (fq *FetchQueue) dropCancelled(job FetchJob) {
	fq.totalCancelled.Add(1)
	metrics.TileFetches.WithLabelValues("cancelled").Inc()
	fq.cfg.Logger.Debug("fetch cancelled", "tile", job.Tile.String())
}

func (fq *FetchQueue) doFetch(ctx context.Context, mapType rastercache.MapType, id tile.CanonicalID) ([]byte, error) {
	tileKey := fmt.Sprintf("%s/%s", mapType, id)

	fq.activeFetches.Add(1)
	fq.currentTiles.Store(tileKey, time.Now())
	defer func() {
		fq.activeFetches.Add(-1)
		fq.currentTiles.Delete(tileKey)
	}()

	start := time.Now()
	log := fq.cfg.Logger.With(
		"tile", id.String(),
		"map_type", mapType,
	)

	log.Debug("fetching tile")

	data, err := fq.fetcher.Fetch(ctx, mapType, id)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		fq.totalFailed.Add(1)
		metrics.TileFetches.WithLabelValues("error").Inc()
		log.Error("fetch failed",
			"error", err,
			"duration_ms", elapsed.Milliseconds(),
		)
		return nil, err
	}

	fq.totalCompleted.Add(1)
	fq.totalBytes.Add(int64(len(data)))
	metrics.TileFetches.WithLabelValues("ok").Inc()

	log.Info("fetch completed",
		"duration_ms", elapsed.Milliseconds(),
		"bytes", len(data),
	)
	return data, nil
}
