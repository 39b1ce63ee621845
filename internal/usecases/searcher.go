package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/evg-tools/greenbase/internal/domain"
)

// CacheFactory builds the per-search result cache around a fetcher.
// Every FindBase call owns a fresh cache; nothing is shared across searches.
type CacheFactory func(fetcher domain.ResultFetcher) domain.ResultFetcher

// Searcher walks history and returns the newest commit whose CI results
// satisfy every criterion. It implements domain.CommitSearcher.
//
// CI outcomes are not monotonic across history (flaky tests, reverted
// fixes), so the search is a linear walk in recency order rather than a
// bisection; only fetch latency is parallelized, never verdict order.
type Searcher struct {
	walker       domain.HistoryWalker
	fetcher      domain.ResultFetcher
	cacheFactory CacheFactory
	evaluator    *Evaluator
	logger       Logger
}

// NewSearcher creates a Searcher with the given collaborators.
// All dependencies are injected; there is no ambient registry.
func NewSearcher(
	walker domain.HistoryWalker,
	fetcher domain.ResultFetcher,
	cacheFactory CacheFactory,
	log Logger,
) *Searcher {
	return &Searcher{
		walker:       walker,
		fetcher:      fetcher,
		cacheFactory: cacheFactory,
		evaluator:    NewEvaluator(),
		logger:       log,
	}
}

// slot carries one commit through the prefetch pipeline. The fetch goroutine
// fills result/err and closes done; the consumer reads them only after done.
type slot struct {
	commit domain.CommitRef
	done   chan struct{}
	result *domain.BuildResult
	err    error
}

// FindBase locates the newest commit satisfying every criterion.
//
// The walker's enumeration order is authoritative: fetches for a bounded
// look-ahead window of upcoming commits run concurrently, but verdicts are
// applied strictly in walk order and the first PASS in that order wins.
// INCONCLUSIVE commits are skipped, never waited on. On FOUND or a terminal
// failure, outstanding fetches are cancelled and their results discarded.
//
// The returned SearchResult is always non-nil. A non-nil error accompanies
// rejected configuration, git resolution failures, and aborted searches.
func (s *Searcher) FindBase(ctx context.Context, input domain.SearchInput) (*domain.SearchResult, error) {
	if err := validateInput(input); err != nil {
		return &domain.SearchResult{Status: domain.SearchAborted}, err
	}

	lookback := input.MaxLookback
	if lookback <= 0 {
		lookback = domain.DefaultMaxLookback
	}
	concurrency := input.Concurrency
	if concurrency <= 0 {
		concurrency = domain.DefaultConcurrency
	}

	start, err := s.walker.ResolveRef(ctx, input.StartRef)
	if err != nil {
		return &domain.SearchResult{Status: domain.SearchAborted},
			fmt.Errorf("failed to resolve start ref: %w", err)
	}

	s.logger.Info(ctx, "starting base commit search", map[string]interface{}{
		"project":      input.Project,
		"start":        start.Hash,
		"max_lookback": lookback,
		"criteria":     len(input.Criteria),
		"concurrency":  concurrency,
	})

	walkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cached := s.cacheFactory(s.fetcher)

	// The slots channel doubles as the look-ahead window: the walker blocks
	// once `concurrency` commits are in flight ahead of the consumer.
	slots := make(chan *slot, concurrency)
	var wg sync.WaitGroup
	var walkErr error

	go func() {
		defer close(slots)
		walkErr = s.walker.Walk(walkCtx, domain.WalkOptions{
			StartRef:    input.StartRef,
			MaxLookback: lookback,
			CommitLimit: input.CommitLimit,
			Stride:      input.Stride,
		}, func(commit domain.CommitRef) error {
			sl := &slot{commit: commit, done: make(chan struct{})}
			select {
			case slots <- sl:
			case <-walkCtx.Done():
				return walkCtx.Err()
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer close(sl.done)
				fetchCtx := walkCtx
				if input.FetchTimeout > 0 {
					var fetchCancel context.CancelFunc
					fetchCtx, fetchCancel = context.WithTimeout(walkCtx, input.FetchTimeout)
					defer fetchCancel()
				}
				sl.result, sl.err = cached.Fetch(fetchCtx, commit.Hash)
			}()
			return nil
		})
	}()
	defer wg.Wait()

	result := &domain.SearchResult{Status: domain.SearchExhausted}
	deadline := time.Time{}
	if input.Timeout > 0 {
		deadline = time.Now().Add(input.Timeout)
	}

	for sl := range slots {
		if !deadline.IsZero() && time.Now().After(deadline) {
			s.logger.Debug(ctx, "search timeout hit", map[string]interface{}{
				"timeout": input.Timeout.String(),
			})
			cancel()
			drain(slots)
			return result, nil
		}

		select {
		case <-sl.done:
		case <-ctx.Done():
			cancel()
			drain(slots)
			result.Status = domain.SearchAborted
			return result, ctx.Err()
		}

		buildResult := sl.result
		if sl.err != nil {
			if ctx.Err() != nil {
				cancel()
				drain(slots)
				result.Status = domain.SearchAborted
				return result, ctx.Err()
			}
			if domain.IsTerminalFetchError(sl.err) {
				s.logger.Error(ctx, "terminal CI failure, aborting search", sl.err, map[string]interface{}{
					"commit": sl.commit.Hash,
				})
				cancel()
				drain(slots)
				result.Status = domain.SearchAborted
				return result, sl.err
			}
			// A single unreachable commit must not abort the search: treat
			// its results as unknown and keep walking.
			s.logger.Warn(ctx, "could not fetch CI results, treating commit as unknown", map[string]interface{}{
				"commit": sl.commit.Hash,
				"error":  sl.err.Error(),
			})
			buildResult = &domain.BuildResult{Commit: sl.commit.Hash}
		}

		result.Examined++
		verdict := s.evaluator.Evaluate(buildResult, input.Criteria)

		s.logger.Debug(ctx, "evaluated commit", map[string]interface{}{
			"commit":  sl.commit.Hash,
			"index":   sl.commit.Index,
			"verdict": verdict.Kind.String(),
		})

		switch verdict.Kind {
		case domain.VerdictPass:
			cancel()
			drain(slots)
			commit := sl.commit
			result.Status = domain.SearchFound
			result.Commit = &commit
			s.logger.Info(ctx, "found qualifying commit", map[string]interface{}{
				"commit":   commit.Hash,
				"examined": result.Examined,
			})
			return result, nil
		case domain.VerdictFail:
			if result.FirstFailure == nil {
				result.FirstFailure = &domain.CommitDiagnostic{
					Commit:  sl.commit,
					Verdict: verdict,
				}
			}
		}
	}

	if ctx.Err() != nil {
		result.Status = domain.SearchAborted
		return result, ctx.Err()
	}
	if errors.Is(walkErr, domain.ErrEmptyHistory) {
		// A commit limit or cutoff can exclude even the start commit. An
		// empty window is an exhausted search, not a failure.
		s.logger.Info(ctx, "no commits within search bounds", nil)
		return result, nil
	}
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		result.Status = domain.SearchAborted
		return result, fmt.Errorf("failed to walk commit history: %w", walkErr)
	}

	s.logger.Info(ctx, "no qualifying commit within bounds", map[string]interface{}{
		"examined": result.Examined,
	})
	return result, nil
}

// validateInput rejects a search before any work is performed.
func validateInput(input domain.SearchInput) error {
	if len(input.Criteria) == 0 {
		return domain.NewConfigurationError("no criteria specified")
	}
	for _, criterion := range input.Criteria {
		if err := criterion.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// drain discards remaining slots so in-flight fetch goroutines can finish
// sending without blocking the walker.
func drain(slots <-chan *slot) {
	for range slots { //nolint:revive // intentionally empty
	}
}
