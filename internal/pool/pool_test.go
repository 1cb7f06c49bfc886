package pool

import (
	"context"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"panoview/internal/source"
)

func testBitmap() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 1, 1))
}

// gatedFetch blocks every fetch until release is closed, recording each
// start on started.
func gatedFetch(started chan string, release chan struct{}) FetchFunc {
	return func(ctx context.Context, url string) (*image.RGBA, error) {
		started <- url
		select {
		case <-release:
			return testBitmap(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func collectResults(t *testing.T, p *Pool, n int) []Result {
	t.Helper()
	var out []Result
	for len(out) < n {
		select {
		case res := <-p.Results():
			out = append(out, res)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for results, got %d of %d", len(out), n)
		}
	}
	return out
}

func waitStarted(t *testing.T, started chan string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for fetch %d to start", i)
		}
	}
}

func TestTenRequestsFourWorkers(t *testing.T) {
	started := make(chan string, 16)
	release := make(chan struct{})
	p := New(4, 0, gatedFetch(started, release), zaptest.NewLogger(t))
	defer p.Shutdown()

	for i := 0; i < 10; i++ {
		_, ok := p.Submit(source.Key{Layer: 1, X: i}, fmt.Sprintf("tile-%d", i))
		require.True(t, ok)
	}

	// Exactly four begin immediately; the rest wait for a slot.
	waitStarted(t, started, 4)
	stats := p.Stats()
	assert.Equal(t, 4, stats.Active)
	assert.Equal(t, 6, stats.Queued)

	close(release)
	results := collectResults(t, p, 10)
	for _, res := range results {
		assert.NoError(t, res.Err)
		assert.NotNil(t, res.Bitmap)
	}
	assert.Equal(t, int64(10), p.Stats().Completed)
}

func TestConcurrencyBoundHolds(t *testing.T) {
	started := make(chan string, 64)
	release := make(chan struct{})
	p := New(3, 0, func(ctx context.Context, url string) (*image.RGBA, error) {
		started <- url
		select {
		case <-release:
			return testBitmap(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, zaptest.NewLogger(t))
	defer p.Shutdown()

	for i := 0; i < 20; i++ {
		p.Submit(source.Key{X: i}, "u")
	}
	waitStarted(t, started, 3)

	// With all slots busy, nothing else may start.
	select {
	case <-started:
		t.Fatal("fourth fetch started while pool was saturated")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 3, p.Stats().Active)

	close(release)
	collectResults(t, p, 20)
}

func TestSubmitCoalesces(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})
	p := New(2, 0, gatedFetch(started, release), zaptest.NewLogger(t))
	defer p.Shutdown()

	key := source.Key{Layer: 2, X: 1, Y: 1}
	tok1, ok1 := p.Submit(key, "tile")
	tok2, ok2 := p.Submit(key, "tile")

	assert.True(t, ok1)
	assert.False(t, ok2, "second submit for the same key must not issue a fetch")
	assert.Equal(t, tok1, tok2, "coalesced submit returns the original token")

	close(release)
	results := collectResults(t, p, 1)
	assert.Equal(t, tok1, results[0].Token)

	select {
	case res := <-p.Results():
		t.Fatalf("unexpected second result: %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelInFlight(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})
	p := New(2, 0, gatedFetch(started, release), zaptest.NewLogger(t))
	defer p.Shutdown()

	key := source.Key{Layer: 1, X: 3}
	tok, _ := p.Submit(key, "tile")
	waitStarted(t, started, 1)

	p.Cancel(key)

	results := collectResults(t, p, 1)
	assert.Equal(t, tok, results[0].Token)
	assert.True(t, IsAborted(results[0].Err), "cancelled fetch must classify as aborted, got %v", results[0].Err)
	assert.Equal(t, int64(1), p.Stats().Aborted)
	assert.Equal(t, int64(0), p.Stats().Failed)
}

func TestCancelQueuedNeverStarts(t *testing.T) {
	started := make(chan string, 8)
	release := make(chan struct{})
	p := New(2, 0, gatedFetch(started, release), zaptest.NewLogger(t))
	defer p.Shutdown()

	// Fill both slots, then queue a third.
	p.Submit(source.Key{X: 1}, "a")
	p.Submit(source.Key{X: 2}, "b")
	waitStarted(t, started, 2)

	queued := source.Key{X: 3}
	p.Submit(queued, "c")
	p.Cancel(queued)

	close(release)
	results := collectResults(t, p, 3)

	var aborted int
	for _, res := range results {
		if res.Key == queued {
			assert.True(t, IsAborted(res.Err))
			aborted++
		} else {
			assert.NoError(t, res.Err)
		}
	}
	assert.Equal(t, 1, aborted)

	// The cancelled request must never have reached the fetcher.
	select {
	case url := <-started:
		assert.NotEqual(t, "c", url, "queued request was cancelled but still fetched")
	default:
	}
}

func TestCancelAllowsResubmit(t *testing.T) {
	started := make(chan string, 8)
	release := make(chan struct{})
	p := New(2, 0, gatedFetch(started, release), zaptest.NewLogger(t))
	defer p.Shutdown()

	key := source.Key{Layer: 4, X: 1}
	tok1, _ := p.Submit(key, "first")
	waitStarted(t, started, 1)
	p.Cancel(key)

	tok2, ok := p.Submit(key, "second")
	require.True(t, ok, "cancel must free the key for a new submission")
	assert.NotEqual(t, tok1, tok2)

	close(release)
	results := collectResults(t, p, 2)
	for _, res := range results {
		if res.Token == tok1 {
			assert.True(t, IsAborted(res.Err))
		} else {
			assert.Equal(t, tok2, res.Token)
			assert.NoError(t, res.Err)
		}
	}
}

func TestFailureClassification(t *testing.T) {
	p := New(2, 0, func(ctx context.Context, url string) (*image.RGBA, error) {
		return nil, fmt.Errorf("connection reset")
	}, zaptest.NewLogger(t))
	defer p.Shutdown()

	p.Submit(source.Key{X: 9}, "broken")
	results := collectResults(t, p, 1)

	require.Error(t, results[0].Err)
	assert.False(t, IsAborted(results[0].Err))
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestShutdownClosesResults(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})
	p := New(2, time.Millisecond, gatedFetch(started, release), zaptest.NewLogger(t))

	p.Submit(source.Key{X: 1}, "a")
	waitStarted(t, started, 1)

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	for range p.Results() {
		// Drain whatever made it out before the close.
	}
	assert.Equal(t, 0, p.Stats().Active)
}
