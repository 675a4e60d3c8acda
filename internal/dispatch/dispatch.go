// Package dispatch fans batches of queries out to the transport with
// bounded concurrency.
package dispatch

import (
	"context"
	"sync"

	"github.com/openbioscience/finch/internal/domain"
	"github.com/openbioscience/finch/internal/metrics"
)

// Executor runs a single query. Satisfied by transport.Client.
type Executor interface {
	Execute(ctx context.Context, q *domain.Query) (*domain.Result, error)
}

// Outcome is the per-query slot in a batch response. Exactly one of
// Result and Err is set.
type Outcome struct {
	Result *domain.Result
	Err    error
}

// Dispatcher executes query batches in parallel.
type Dispatcher struct {
	executor   Executor
	metrics    *metrics.Metrics
	maxWorkers int
}

// New creates a dispatcher.
func New(executor Executor, m *metrics.Metrics, cfg domain.DispatchConfig) *Dispatcher {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 5
	}

	return &Dispatcher{
		executor:   executor,
		metrics:    m,
		maxWorkers: maxWorkers,
	}
}

// ExecuteBatch runs all queries concurrently and returns one outcome
// per query, in input order. A failing query fills its own slot with
// an error and never disturbs the others.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, queries []*domain.Query) []Outcome {
	if len(queries) == 0 {
		return nil
	}

	outcomes := make([]Outcome, len(queries))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, d.maxWorkers)

	for i, q := range queries {
		wg.Add(1)
		go func(idx int, query *domain.Query) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			d.metrics.BatchStarted()
			defer d.metrics.BatchFinished()

			result, err := d.executor.Execute(ctx, query)
			outcomes[idx] = Outcome{Result: result, Err: err}
		}(i, q)
	}

	wg.Wait()

	return outcomes
}
