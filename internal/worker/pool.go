// Package worker provides a generic bounded worker pool for fan-out/fan-in
// processing. The analyze command uses it to replay transcript files in
// parallel, one isolated agent per file.
package worker

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result pairs a processed value with its original index to preserve ordering.
type Result[T any] struct {
	Index int
	Item  string
	Value T
	Err   error
}

// Pool fans out work items to at most concurrency goroutines and collects
// results preserving the original input order.
type Pool[T any] struct {
	concurrency int
}

// NewPool creates a worker pool with the given concurrency.
// If concurrency <= 0, defaults to runtime.NumCPU().
func NewPool[T any](concurrency int) *Pool[T] {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Pool[T]{concurrency: concurrency}
}

// Process applies fn to each item and returns results in input order.
// Errors from individual items are captured per result rather than
// aborting the batch. Once ctx is done, unstarted items get ctx's error.
func (p *Pool[T]) Process(ctx context.Context, items []string, fn func(context.Context, string) (T, error)) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]Result[T], len(items))
	var g errgroup.Group
	g.SetLimit(min(p.concurrency, len(items)))

	for i, item := range items {
		results[i] = Result[T]{Index: i, Item: item}
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Value, results[i].Err = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // per-item errors live in results

	return results
}
