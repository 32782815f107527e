package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestNewPoolDefaultConcurrency(t *testing.T) {
	p := NewPool[string](0)
	if p.concurrency != runtime.NumCPU() {
		t.Errorf("expected concurrency %d, got %d", runtime.NumCPU(), p.concurrency)
	}

	p2 := NewPool[string](-1)
	if p2.concurrency != runtime.NumCPU() {
		t.Errorf("expected concurrency %d for -1, got %d", runtime.NumCPU(), p2.concurrency)
	}
}

func TestProcessEmpty(t *testing.T) {
	p := NewPool[string](2)
	results := p.Process(context.Background(), nil, func(_ context.Context, s string) (string, error) {
		return s, nil
	})
	if results != nil {
		t.Errorf("expected nil results for empty input, got %v", results)
	}
}

func TestProcessPreservesOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool[string](4)
	items := []string{"a.jsonl", "b.jsonl", "c.jsonl", "d.jsonl", "e.jsonl", "f.jsonl"}

	results := p.Process(context.Background(), items, func(_ context.Context, s string) (string, error) {
		return "replayed-" + s, nil
	})

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("result[%d] unexpected error: %v", i, r.Err)
		}
		if r.Value != "replayed-"+items[i] {
			t.Errorf("result[%d] = %q", i, r.Value)
		}
		if r.Index != i || r.Item != items[i] {
			t.Errorf("result[%d] = index %d item %q", i, r.Index, r.Item)
		}
	}
}

func TestProcessCapturesErrors(t *testing.T) {
	p := NewPool[int](2)
	items := []string{"ok", "fail", "ok", "fail"}

	results := p.Process(context.Background(), items, func(_ context.Context, s string) (int, error) {
		if s == "fail" {
			return 0, fmt.Errorf("failed on %s", s)
		}
		return 1, nil
	})

	var failures int
	for i, r := range results {
		if (r.Err != nil) != (items[i] == "fail") {
			t.Errorf("result[%d] err = %v", i, r.Err)
		}
		if r.Err != nil {
			failures++
		}
	}
	if failures != 2 {
		t.Errorf("expected 2 failures, got %d", failures)
	}
}

func TestProcessRespectsConcurrency(t *testing.T) {
	p := NewPool[int](2)
	items := make([]string, 10)

	var running, peak int32
	p.Process(context.Background(), items, func(_ context.Context, _ string) (int, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return 0, nil
	})

	if peak > 2 {
		t.Errorf("peak concurrency %d exceeds limit 2", peak)
	}
}

func TestProcessCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	results := NewPool[int](2).Process(ctx, []string{"a", "b", "c"}, func(_ context.Context, _ string) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, nil
	})

	if calls != 0 {
		t.Errorf("expected no calls after cancel, got %d", calls)
	}
	for i, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("result[%d] err = %v, want context.Canceled", i, r.Err)
		}
	}
}
