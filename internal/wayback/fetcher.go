package wayback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Fetcher downloads tile bytes for candidate snapshots under a fixed
// concurrency ceiling, with per-tile retry. A single Fetcher is shared by
// all requests so the semaphore bounds total outbound concurrency.
type Fetcher struct {
	httpClient  *http.Client
	userAgent   string
	workers     int
	maxAttempts int
	retryDelay  time.Duration
	sem         *semaphore.Weighted
	logger      *slog.Logger
}

// FetcherConfig holds fetch pool tuning.
type FetcherConfig struct {
	Workers     int
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
	UserAgent   string
}

// NewFetcher creates a tile fetcher.
func NewFetcher(cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		userAgent:   cfg.UserAgent,
		workers:     cfg.Workers,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		sem:         semaphore.NewWeighted(int64(cfg.Workers)),
		logger:      logger.With("component", "fetcher"),
	}
}

// FetchAll downloads every candidate tile. Per-tile failures are recorded
// in the outcome, never escalated; context cancellation stops the pool and
// records the remaining candidates as failed. Outcome order is completion
// order, not catalog order.
func (f *Fetcher) FetchAll(ctx context.Context, candidates []CandidateTile) []FetchOutcome {
	if len(candidates) == 0 {
		return nil
	}

	total := len(candidates)
	tileChan := make(chan CandidateTile, total)
	resultChan := make(chan FetchOutcome, total)

	workerCount := f.workers
	if total < workerCount {
		workerCount = total
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range tileChan {
				if err := f.sem.Acquire(ctx, 1); err != nil {
					resultChan <- FetchOutcome{Candidate: cand, Err: err}
					continue
				}
				data, err := f.fetchTile(ctx, cand.TileURL)
				f.sem.Release(1)
				resultChan <- FetchOutcome{Candidate: cand, Data: data, Err: err}
			}
		}()
	}

	go func() {
		for _, cand := range candidates {
			tileChan <- cand
		}
		close(tileChan)
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	outcomes := make([]FetchOutcome, 0, total)
	for res := range resultChan {
		outcomes = append(outcomes, res)
	}
	return outcomes
}

// fetchTile downloads one tile with linear backoff between attempts
// (delay, 2*delay, ...). Any transport error or non-2xx status counts as a
// failed attempt.
func (f *Fetcher) fetchTile(ctx context.Context, tileURL string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		data, err := f.doRequest(ctx, tileURL)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if attempt == f.maxAttempts {
			break
		}

		backoff := f.retryDelay * time.Duration(attempt)
		f.logger.Warn("tile fetch failed, retrying",
			"url", tileURL,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", f.maxAttempts, lastErr)
}

func (f *Fetcher) doRequest(ctx context.Context, tileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
