package wayback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher(workers int) *Fetcher {
	return NewFetcher(FetcherConfig{
		Workers:     workers,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Timeout:     5 * time.Second,
	}, testLogger())
}

func candidate(url string, index int) CandidateTile {
	return CandidateTile{
		SnapshotDescriptor: SnapshotDescriptor{ReleaseNum: index + 1},
		TileURL:            url,
		Index:              index,
	}
}

func TestFetchAllSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "tile:", r.URL.Path)
	}))
	defer srv.Close()

	f := newTestFetcher(4)

	var candidates []CandidateTile
	for i := 0; i < 10; i++ {
		candidates = append(candidates, candidate(fmt.Sprintf("%s/%d", srv.URL, i), i))
	}

	outcomes := f.FetchAll(context.Background(), candidates)

	require.Len(t, outcomes, 10)
	for _, out := range outcomes {
		require.NoError(t, out.Err)
		assert.NotEmpty(t, out.Data)
	}
}

func TestFetchAllRetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "eventually")
	}))
	defer srv.Close()

	f := newTestFetcher(2)
	outcomes := f.FetchAll(context.Background(), []CandidateTile{candidate(srv.URL, 0)})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, []byte("eventually"), outcomes[0].Data)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchAllIsolatesPermanentFailures(t *testing.T) {
	var failedAttempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			failedAttempts.Add(1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok:", r.URL.Path)
	}))
	defer srv.Close()

	f := newTestFetcher(4)

	candidates := []CandidateTile{
		candidate(srv.URL+"/a", 0),
		candidate(srv.URL+"/broken", 1),
		candidate(srv.URL+"/b", 2),
	}

	outcomes := f.FetchAll(context.Background(), candidates)
	require.Len(t, outcomes, 3)

	var failed, succeeded int
	for _, out := range outcomes {
		if out.Err != nil {
			failed++
			assert.Equal(t, srv.URL+"/broken", out.Candidate.TileURL)
			assert.Contains(t, out.Err.Error(), "after 3 attempts")
		} else {
			succeeded++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, succeeded)
	// Exhausted exactly the configured number of attempts.
	assert.Equal(t, int32(3), failedAttempts.Load())
}

func TestFetchAllMalformedURLCountsAsFetchFailure(t *testing.T) {
	f := newTestFetcher(2)

	outcomes := f.FetchAll(context.Background(), []CandidateTile{
		candidate("http://[::1]:namedport/tile", 0),
	})

	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
}

func TestFetchAllRespectsConcurrencyBound(t *testing.T) {
	const workers = 8

	var inFlight, peak atomic.Int32
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		fmt.Fprint(w, "tile")
	}))
	defer srv.Close()

	f := newTestFetcher(workers)

	var candidates []CandidateTile
	for i := 0; i < 50; i++ {
		candidates = append(candidates, candidate(fmt.Sprintf("%s/%d", srv.URL, i), i))
	}

	outcomes := f.FetchAll(context.Background(), candidates)

	require.Len(t, outcomes, 50)
	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Greater(t, peak.Load(), int32(1), "pool should actually run concurrently")
}

func TestFetchAllHonorsContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, "late")
	}))
	defer srv.Close()
	defer close(release)

	f := newTestFetcher(2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan []FetchOutcome, 1)
	go func() {
		done <- f.FetchAll(ctx, []CandidateTile{candidate(srv.URL, 0)})
	}()

	select {
	case outcomes := <-done:
		require.Len(t, outcomes, 1)
		assert.Error(t, outcomes[0].Err)
	case <-time.After(5 * time.Second):
		t.Fatal("FetchAll did not return after context cancellation")
	}
}

func TestFetchAllEmptyInput(t *testing.T) {
	f := newTestFetcher(4)
	assert.Nil(t, f.FetchAll(context.Background(), nil))
}
