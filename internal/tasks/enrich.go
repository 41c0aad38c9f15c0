package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"golang.org/x/time/rate"
)

// EnrichOpts contains configuration for concurrent title lookups.
type EnrichOpts struct {
	NumWorkers int     // Concurrent workers (default: 4, max: 10)
	RateLimit  float64 // Requests per second (default: 2)
}

// TitleResult is the lookup outcome for one id.
type TitleResult struct {
	ExternalID string
	Title      string
	Error      error
}

// EnrichResult collects every lookup in input order.
type EnrichResult struct {
	Results  []TitleResult
	Resolved int
	Failed   int
}

// Enrich resolves the title of every id concurrently with rate limiting and progress tracking.
//
// Per-id failures are recorded in the result and never abort the batch. Cancelling ctx stops
// dispatching; ids that were never looked up are reported with the context error.
func (e *Engine) Enrich(ctx context.Context, prog chan<- ProgressUpdate, ids []string, opts EnrichOpts) (*EnrichResult, error) {
	if e.lookup == nil {
		return nil, fmt.Errorf("%w: video lookup not initialized", shared.ErrServiceUnavailable)
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2.0
	}

	result := &EnrichResult{Results: make([]TitleResult, len(ids))}
	for i, id := range ids {
		result.Results[i] = TitleResult{ExternalID: id, Error: context.Canceled}
	}
	if len(ids) == 0 {
		return result, nil
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	type job struct {
		index int
		id    string
	}
	type done struct {
		index int
		res   TitleResult
	}

	jobs := make(chan job, len(ids))
	results := make(chan done, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				res := TitleResult{ExternalID: j.id}
				info, err := e.lookup.VideoInfo(ctx, j.id)
				if err != nil {
					res.Error = err
				} else {
					res.Title = info.Title
				}
				results <- done{index: j.index, res: res}
			}
		}()
	}

	go func() {
		e.sendProgress(prog, resolveStartUpdate(len(ids)))
		defer close(jobs)
		for i, id := range ids {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			jobs <- job{index: i, id: id}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for d := range results {
		completed++
		result.Results[d.index] = d.res
		e.sendProgress(prog, resolvedUpdate(completed, len(ids), d.res))
	}

	for i := range result.Results {
		r := &result.Results[i]
		if r.Error == context.Canceled && ctx.Err() != nil {
			r.Error = ctx.Err()
		}
		if r.Error == nil {
			result.Resolved++
		} else {
			result.Failed++
		}
	}

	e.logger.Debug("titles resolved", "resolved", result.Resolved, "failed", result.Failed)
	return result, nil
}
