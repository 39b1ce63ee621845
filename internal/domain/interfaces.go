// Package domain defines the core business entities and interfaces for greenbase.
// This package contains no external dependencies and represents the innermost
// layer of the CLEAN architecture.
package domain

import (
	"context"
	"time"
)

// ResultFetcher retrieves CI outcomes for a single commit.
type ResultFetcher interface {
	// Fetch returns every (variant, task) outcome the CI service knows for
	// the commit. A commit unknown to the service yields an empty
	// BuildResult, not an error. Transport failures are reported as a
	// *FetchError carrying whether they are retryable.
	Fetch(ctx context.Context, commit string) (*BuildResult, error)
}

// WalkOptions bounds one history walk.
type WalkOptions struct {
	// StartRef is the symbolic ref or revision to start from; empty means HEAD.
	StartRef string

	// MaxLookback caps how many commits are emitted; <= 0 uses
	// DefaultMaxLookback.
	MaxLookback int

	// CommitLimit, when set, is a revision prefix; the walk stops before
	// emitting the commit it matches.
	CommitLimit string

	// Cutoff, when set, stops the walk at the first commit older than it.
	Cutoff time.Time

	// Stride emits every Nth commit; <= 1 emits every commit.
	Stride int
}

// HistoryWalker enumerates ancestor commits in strictly decreasing recency
// order. A walker never emits the same commit twice within one walk.
type HistoryWalker interface {
	// ResolveRef resolves a symbolic ref (branch, tag, revision expression)
	// to a CommitRef. An empty ref resolves HEAD.
	// Returns ErrRefNotFound when the ref does not exist.
	ResolveRef(ctx context.Context, ref string) (*CommitRef, error)

	// Walk calls visit for each commit, newest first, within the given
	// bounds. Returning ErrStopWalk from visit ends the walk without error;
	// any other error aborts the walk and is returned as-is.
	Walk(ctx context.Context, opts WalkOptions, visit func(CommitRef) error) error
}

// GitOperator applies a git operation to a revision the search found.
// It is a collaborator of the CLI layer; the search core never mutates the
// working tree.
type GitOperator interface {
	// Apply performs the given action on the revision. The branch name is
	// only used by GitActionCheckout and may be empty.
	Apply(ctx context.Context, action GitAction, revision, branch string) error
}

// LocalRepository is the full git collaborator: history walking plus the
// operation applied to a found revision.
type LocalRepository interface {
	HistoryWalker
	GitOperator

	// Close releases any resources held by the repository.
	Close() error
}

// CommitSearcher locates the newest commit satisfying a set of criteria.
type CommitSearcher interface {
	// FindBase walks history from the input's start ref and returns the
	// newest commit whose build results satisfy every criterion.
	// The returned SearchResult is always non-nil; the error is non-nil for
	// rejected configuration, git failures, and aborted searches, in which
	// case the result carries partial diagnostics.
	FindBase(ctx context.Context, input SearchInput) (*SearchResult, error)
}

// OutputWriter renders search and criteria data for the user.
// The search core emits no text; this is the only component that does.
type OutputWriter interface {
	// WriteRevision reports the found revision and any errors encountered
	// applying the git operation to it.
	WriteRevision(result *SearchResult, operationErr error) error

	// WriteNoRevision reports an exhausted or aborted search with its
	// diagnostics.
	WriteNoRevision(result *SearchResult) error

	// WriteCriteria lists saved criteria groups.
	WriteCriteria(groups []CriteriaGroup) error
}
