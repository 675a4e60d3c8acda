package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openbioscience/finch/internal/domain"
)

type stubExecutor struct {
	fn func(ctx context.Context, q *domain.Query) (*domain.Result, error)
}

func (s *stubExecutor) Execute(ctx context.Context, q *domain.Query) (*domain.Result, error) {
	return s.fn(ctx, q)
}

func textResult(s string) *domain.Result {
	return &domain.Result{Shape: domain.ShapeText, Text: s}
}

func TestExecuteBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("PreservesOrderUnderUnevenLatency", func(t *testing.T) {
		// Earlier queries sleep longer, so completion order is the
		// reverse of submission order.
		executor := &stubExecutor{fn: func(ctx context.Context, q *domain.Query) (*domain.Result, error) {
			var idx int
			fmt.Sscanf(q.Endpoint, "q-%d", &idx)
			time.Sleep(time.Duration(8-idx) * 5 * time.Millisecond)
			return textResult(q.Endpoint), nil
		}}

		d := New(executor, nil, domain.DispatchConfig{MaxWorkers: 8})

		queries := make([]*domain.Query, 8)
		for i := range queries {
			queries[i] = &domain.Query{Database: domain.DatabaseKEGG, Endpoint: fmt.Sprintf("q-%d", i)}
		}

		outcomes := d.ExecuteBatch(ctx, queries)

		if len(outcomes) != len(queries) {
			t.Fatalf("expected %d outcomes, got %d", len(queries), len(outcomes))
		}
		for i, o := range outcomes {
			if o.Err != nil {
				t.Fatalf("outcome %d failed: %v", i, o.Err)
			}
			want := fmt.Sprintf("q-%d", i)
			if o.Result.Text != want {
				t.Errorf("outcome %d: expected %s, got %s", i, want, o.Result.Text)
			}
		}
	})

	t.Run("FaultIsolation", func(t *testing.T) {
		executor := &stubExecutor{fn: func(ctx context.Context, q *domain.Query) (*domain.Result, error) {
			if q.Endpoint == "q-2" {
				return nil, &domain.TransportError{Database: q.Database, Attempts: 3, Err: errors.New("unreachable")}
			}
			return textResult(q.Endpoint), nil
		}}

		d := New(executor, nil, domain.DispatchConfig{MaxWorkers: 5})

		queries := make([]*domain.Query, 5)
		for i := range queries {
			queries[i] = &domain.Query{Database: domain.DatabaseKEGG, Endpoint: fmt.Sprintf("q-%d", i)}
		}

		outcomes := d.ExecuteBatch(ctx, queries)

		for i, o := range outcomes {
			if i == 2 {
				if o.Err == nil {
					t.Error("expected outcome 2 to carry the error")
				}
				if o.Result != nil {
					t.Error("expected no result for failed query")
				}
				continue
			}
			if o.Err != nil {
				t.Errorf("outcome %d: expected success, got %v", i, o.Err)
			}
		}
	})

	t.Run("ConcurrencyBounded", func(t *testing.T) {
		var inFlight, peak atomic.Int64

		executor := &stubExecutor{fn: func(ctx context.Context, q *domain.Query) (*domain.Result, error) {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)

			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}

			time.Sleep(10 * time.Millisecond)
			return textResult("ok"), nil
		}}

		d := New(executor, nil, domain.DispatchConfig{MaxWorkers: 2})

		queries := make([]*domain.Query, 10)
		for i := range queries {
			queries[i] = &domain.Query{Database: domain.DatabaseKEGG, Endpoint: fmt.Sprintf("q-%d", i)}
		}

		d.ExecuteBatch(ctx, queries)

		if got := peak.Load(); got > 2 {
			t.Errorf("expected at most 2 concurrent executions, observed %d", got)
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		executor := &stubExecutor{fn: func(ctx context.Context, q *domain.Query) (*domain.Result, error) {
			t.Error("executor must not be called for an empty batch")
			return nil, nil
		}}

		d := New(executor, nil, domain.DispatchConfig{})

		if outcomes := d.ExecuteBatch(ctx, nil); outcomes != nil {
			t.Errorf("expected nil outcomes for empty batch, got %v", outcomes)
		}
	})
}
