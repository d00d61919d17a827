package raster

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Strategy selects the pool flavor backing a concurrent scan. All
// strategies are behaviorally equivalent: a bounded fan-out of
// independent extraction tasks.
type Strategy string

const (
	// StrategyWorkers runs a fixed worker pool draining a job channel.
	StrategyWorkers Strategy = "workers"
	// StrategyGroup runs an errgroup with a concurrency limit.
	StrategyGroup Strategy = "group"
	// StrategySemaphore gates one goroutine per file behind a weighted
	// semaphore.
	StrategySemaphore Strategy = "semaphore"
)

// DefaultWorkers is the scan pool width used when none is configured.
const DefaultWorkers = 4

// Result is one extracted point value. A nil Value means the point had
// no coverage in that file; Err carries a per-file read failure that
// did not abort the scan.
type Result struct {
	Path  string
	Value *float64
	Err   error
}

// Scanner fans out point extraction across all rasters of a dataset
// directory.
type Scanner struct {
	extractor *Extractor
	workers   int
	strategy  Strategy
}

// NewScanner builds a scanner around the given extractor. Non-positive
// widths fall back to DefaultWorkers, unknown strategies to
// StrategyWorkers.
func NewScanner(extractor *Extractor, workers int, strategy Strategy) *Scanner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	switch strategy {
	case StrategyWorkers, StrategyGroup, StrategySemaphore:
	default:
		strategy = StrategyWorkers
	}
	return &Scanner{extractor: extractor, workers: workers, strategy: strategy}
}

// Scan locates the rasters under dir and extracts the value at
// (lat, lng) from each of them concurrently. The result order is
// unspecified. An empty directory yields an empty slice. Per-file read
// failures are isolated into their Result; only filename-convention
// violations and context cancellation abort the scan.
func (s *Scanner) Scan(ctx context.Context, dir, ext string, lat, lng float64, month, day *int) ([]Result, error) {
	paths, err := Locate(dir, ext, month, day)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return []Result{}, nil
	}

	switch s.strategy {
	case StrategyGroup:
		return s.scanGroup(ctx, paths, lat, lng)
	case StrategySemaphore:
		return s.scanSemaphore(ctx, paths, lat, lng)
	default:
		return s.scanWorkers(ctx, paths, lat, lng)
	}
}

func (s *Scanner) extractOne(ctx context.Context, path string, lat, lng float64) Result {
	if err := ctx.Err(); err != nil {
		return Result{Path: path, Err: err}
	}
	value, err := s.extractor.Extract(path, lat, lng)
	return Result{Path: path, Value: value, Err: err}
}

// scanWorkers drains a job channel with a fixed pool of workers.
func (s *Scanner) scanWorkers(ctx context.Context, paths []string, lat, lng float64) ([]Result, error) {
	jobs := make(chan string, len(paths))
	results := make(chan Result, len(paths))

	for _, path := range paths {
		jobs <- path
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- s.extractOne(ctx, path, lat, lng)
			}
		}()
	}
	wg.Wait()
	close(results)

	out := make([]Result, 0, len(paths))
	for res := range results {
		out = append(out, res)
	}
	return out, ctx.Err()
}

// scanGroup bounds concurrency through an errgroup limit. Task errors
// stay in their Result so one bad file cannot cancel the group.
func (s *Scanner) scanGroup(ctx context.Context, paths []string, lat, lng float64) ([]Result, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	out := make([]Result, len(paths))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			out[i] = s.extractOne(ctx, path, lat, lng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

// scanSemaphore starts one goroutine per file, gated by a weighted
// semaphore.
func (s *Scanner) scanSemaphore(ctx context.Context, paths []string, lat, lng float64) ([]Result, error) {
	sem := semaphore.NewWeighted(int64(s.workers))

	out := make([]Result, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		i, path := i, path
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, fmt.Errorf("scan aborted: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			out[i] = s.extractOne(ctx, path, lat, lng)
		}()
	}
	wg.Wait()
	return out, ctx.Err()
}
