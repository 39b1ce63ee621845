// Package cache provides the per-search memoization layer over a CI result
// fetcher.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/evg-tools/greenbase/internal/domain"
)

// ResultCache wraps a domain.ResultFetcher and guarantees at most one
// underlying fetch per distinct commit for its lifetime. Concurrent requests
// for the same commit share a single in-flight fetch.
//
// A cache belongs to exactly one search invocation; it has no eviction and is
// never shared across searches. Fetch errors are memoized alongside results
// so a commit's transport outcome is also fetched at most once.
type ResultCache struct {
	fetcher domain.ResultFetcher
	group   singleflight.Group

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	result *domain.BuildResult
	err    error
}

// New creates a ResultCache around the given fetcher.
func New(fetcher domain.ResultFetcher) *ResultCache {
	return &ResultCache{
		fetcher: fetcher,
		entries: make(map[string]*entry),
	}
}

// Fetch returns the memoized result for the commit, delegating to the
// underlying fetcher on first request. Waiting callers respect their own
// context: cancellation returns the context error without disturbing the
// in-flight fetch other callers are waiting on.
func (c *ResultCache) Fetch(ctx context.Context, commit string) (*domain.BuildResult, error) {
	c.mu.RLock()
	e, ok := c.entries[commit]
	c.mu.RUnlock()
	if ok {
		return e.result, e.err
	}

	// The flight runs on the first caller's context; later callers joining
	// the flight only select against their own.
	ch := c.group.DoChan(commit, func() (interface{}, error) {
		result, err := c.fetcher.Fetch(ctx, commit)
		c.mu.Lock()
		c.entries[commit] = &entry{result: result, err: err}
		c.mu.Unlock()
		return result, err
	})

	select {
	case res := <-ch:
		result, _ := res.Val.(*domain.BuildResult)
		return result, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
