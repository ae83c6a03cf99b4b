package datasource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/tilemap/internal/rastercache"
	"github.com/MeKo-Tech/tilemap/internal/tile"
)

type fakeFetcher struct {
	block chan struct{} // when non-nil, Fetch waits for it or ctx
	fail  map[tile.CanonicalID]bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ rastercache.MapType, id tile.CanonicalID) ([]byte, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail[id] {
		return nil, errors.New("upstream failure")
	}
	return []byte(id.String()), nil
}

func TestFetchQueue_Callback(t *testing.T) {
	fq := NewFetchQueue(&fakeFetcher{}, FetchQueueConfig{Workers: 2})
	fq.Start()
	defer fq.Stop()

	ids := []tile.CanonicalID{{Z: 3, X: 1, Y: 2}, {Z: 3, X: 2, Y: 2}, {Z: 3, X: 3, Y: 2}}

	var mu sync.Mutex
	var wg sync.WaitGroup
	got := make(map[tile.CanonicalID]string)
	for _, id := range ids {
		wg.Add(1)
		err := fq.Submit(FetchJob{
			MapType: rastercache.Roadmap,
			Tile:    id,
			OnFetched: func(id tile.CanonicalID, data []byte, err error) {
				defer wg.Done()
				assert.NoError(t, err)
				mu.Lock()
				got[id] = string(data)
				mu.Unlock()
			},
		})
		require.NoError(t, err)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, id.String(), got[id])
	}
	status := fq.Status()
	assert.Equal(t, int64(3), status.TotalCompleted)
	assert.Equal(t, int64(len("z3_x1_y2")*3), status.TotalBytes)
}

func TestFetchQueue_SubmitAndWait(t *testing.T) {
	bad := tile.CanonicalID{Z: 1, X: 1, Y: 1}
	fq := NewFetchQueue(&fakeFetcher{fail: map[tile.CanonicalID]bool{bad: true}}, FetchQueueConfig{Workers: 1})
	fq.Start()
	defer fq.Stop()

	data, err := fq.SubmitAndWait(context.Background(), rastercache.Hybrid, tile.CanonicalID{Z: 1, X: 0, Y: 1})
	require.NoError(t, err)
	assert.Equal(t, "z1_x0_y1", string(data))

	_, err = fq.SubmitAndWait(context.Background(), rastercache.Hybrid, bad)
	require.Error(t, err)
	assert.Equal(t, int64(1), fq.Status().TotalFailed)
}

func TestFetchQueue_CancelledJobNeverCallsBack(t *testing.T) {
	f := &fakeFetcher{block: make(chan struct{})}
	fq := NewFetchQueue(f, FetchQueueConfig{Workers: 1})
	fq.Start()
	defer fq.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	called := make(chan struct{}, 1)
	require.NoError(t, fq.Submit(FetchJob{
		Ctx:       ctx,
		MapType:   rastercache.Roadmap,
		Tile:      tile.CanonicalID{Z: 2, X: 1, Y: 1},
		OnFetched: func(tile.CanonicalID, []byte, error) { called <- struct{}{} },
	}))

	require.Eventually(t, func() bool { return fq.Status().ActiveFetches == 1 }, time.Second, time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return fq.Status().TotalCancelled == 1 }, time.Second, time.Millisecond)

	select {
	case <-called:
		t.Fatal("callback invoked for cancelled job")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, int64(0), fq.Status().TotalFailed)
}

func TestFetchQueue_SubmitFullAndClosed(t *testing.T) {
	fq := NewFetchQueue(&fakeFetcher{}, FetchQueueConfig{Workers: 1, QueueSize: 1})

	job := FetchJob{MapType: rastercache.Roadmap, Tile: tile.CanonicalID{}}
	require.NoError(t, fq.Submit(job))
	assert.ErrorIs(t, fq.Submit(job), ErrQueueFull)
	assert.Equal(t, 1, fq.Status().QueuedFetches)

	fq.Stop()
	assert.ErrorIs(t, fq.Submit(job), ErrQueueClosed)
	_, err := fq.SubmitAndWait(context.Background(), rastercache.Roadmap, tile.CanonicalID{})
	assert.ErrorIs(t, err, ErrQueueClosed)
}
