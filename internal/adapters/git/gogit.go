// Package git provides adapters for interacting with local Git repositories.
// This package implements the domain.HistoryWalker and domain.GitOperator
// interfaces using go-git/v5.
package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/evg-tools/greenbase/internal/domain"
)

// Logger defines the logging interface for the git adapter.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// GoGitRepository implements history walking and revision operations over a
// local repository using go-git/v5.
type GoGitRepository struct {
	repo   *git.Repository
	path   string
	logger Logger
}

// NewGoGitRepository creates a GoGitRepository for the given path.
// The path can be either a working directory or a bare repository.
// Returns domain.ErrRepositoryNotFound if the path is not a valid Git repository.
func NewGoGitRepository(path string, log Logger) (*GoGitRepository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, path)
	}

	return &GoGitRepository{
		repo:   repo,
		path:   path,
		logger: log,
	}, nil
}

// ResolveRef resolves a symbolic ref to a CommitRef. An empty ref resolves
// HEAD. Returns domain.ErrRefNotFound when the revision does not exist.
func (r *GoGitRepository) ResolveRef(ctx context.Context, ref string) (*domain.CommitRef, error) {
	var hash plumbing.Hash

	if ref == "" {
		head, err := r.repo.Head()
		if err != nil {
			return nil, fmt.Errorf("failed to get HEAD: %w", err)
		}
		hash = head.Hash()
	} else {
		resolved, err := r.repo.ResolveRevision(plumbing.Revision(ref))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrRefNotFound, ref)
		}
		hash = *resolved
	}

	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit object for %s: %w", hash, err)
	}

	r.logger.Debug(ctx, "resolved start ref", map[string]interface{}{
		"ref":  ref,
		"hash": hash.String(),
	})

	return &domain.CommitRef{
		Hash: hash.String(),
		When: commit.Committer.When,
	}, nil
}

// Walk enumerates ancestors of the start ref in commit-time order, newest
// first, within the given bounds. A commit is never emitted twice. The walk
// ends early without error when visit returns domain.ErrStopWalk, when the
// lookback or age bound binds, or when the commit limit prefix is reached;
// the limit commit itself is not emitted.
func (r *GoGitRepository) Walk(
	ctx context.Context,
	opts domain.WalkOptions,
	visit func(domain.CommitRef) error,
) error {
	start, err := r.ResolveRef(ctx, opts.StartRef)
	if err != nil {
		return err
	}

	commit, err := r.repo.CommitObject(plumbing.NewHash(start.Hash))
	if err != nil {
		return fmt.Errorf("failed to get commit object for %s: %w", start.Hash, err)
	}

	maxLookback := opts.MaxLookback
	if maxLookback <= 0 {
		maxLookback = domain.DefaultMaxLookback
	}
	stride := opts.Stride
	if stride < 1 {
		stride = 1
	}

	seen := make(map[plumbing.Hash]struct{})
	emitted := 0
	position := 0

	iter := object.NewCommitIterCTime(commit, nil, nil)
	err = iter.ForEach(func(c *object.Commit) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, dup := seen[c.Hash]; dup {
			return nil
		}
		seen[c.Hash] = struct{}{}

		if emitted >= maxLookback {
			return storer.ErrStop
		}
		if opts.CommitLimit != "" && strings.HasPrefix(c.Hash.String(), opts.CommitLimit) {
			r.logger.Debug(ctx, "commit limit hit", map[string]interface{}{
				"commit_limit": opts.CommitLimit,
			})
			return storer.ErrStop
		}
		if !opts.Cutoff.IsZero() && c.Committer.When.Before(opts.Cutoff) {
			r.logger.Debug(ctx, "age cutoff hit", map[string]interface{}{
				"cutoff": opts.Cutoff.String(),
				"commit": c.Hash.String(),
			})
			return storer.ErrStop
		}

		if position%stride != 0 {
			position++
			return nil
		}
		position++

		ref := domain.CommitRef{
			Hash:  c.Hash.String(),
			Index: emitted,
			When:  c.Committer.When,
		}
		emitted++

		if visitErr := visit(ref); visitErr != nil {
			if errors.Is(visitErr, domain.ErrStopWalk) {
				return storer.ErrStop
			}
			return visitErr
		}
		return nil
	})

	// ErrStop is expected when a bound binds or the visitor stops the walk.
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return fmt.Errorf("failed to walk commit history: %w", err)
	}

	if emitted == 0 {
		return domain.ErrEmptyHistory
	}

	r.logger.Debug(ctx, "walked commit history", map[string]interface{}{
		"emitted":      emitted,
		"max_lookback": maxLookback,
	})
	return nil
}

// Apply performs the given git action on the revision. Checkouts go through
// go-git; rebase and merge shell out to the git binary, which go-git does not
// implement.
func (r *GoGitRepository) Apply(ctx context.Context, action domain.GitAction, revision, branch string) error {
	switch action {
	case domain.GitActionNone:
		return nil
	case domain.GitActionCheckout:
		return r.checkout(ctx, revision, branch)
	case domain.GitActionRebase:
		return r.runGit(ctx, "rebase", revision)
	case domain.GitActionMerge:
		return r.runGit(ctx, "merge", revision)
	}
	return fmt.Errorf("unknown git operation %q", action)
}

// checkout checks the revision out, optionally creating a branch at it.
func (r *GoGitRepository) checkout(ctx context.Context, revision, branch string) error {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	opts := &git.CheckoutOptions{Hash: plumbing.NewHash(revision)}
	if branch != "" {
		opts.Branch = plumbing.NewBranchReferenceName(branch)
		opts.Create = true
	}

	if err := worktree.Checkout(opts); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", revision, err)
	}

	r.logger.Debug(ctx, "checked out revision", map[string]interface{}{
		"revision": revision,
		"branch":   branch,
	})
	return nil
}

// runGit executes a git subcommand in the repository directory.
func (r *GoGitRepository) runGit(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.path
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Close releases any resources held by the repository.
// For go-git, this is a no-op as the repository doesn't hold persistent resources.
func (r *GoGitRepository) Close() error {
	return nil
}
