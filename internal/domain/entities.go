// Package domain defines the core business entities and interfaces for greenbase.
package domain

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// Default search settings.
const (
	// DefaultMaxLookback is the default number of commits to examine before giving up.
	DefaultMaxLookback = 50

	// DefaultConcurrency is the default number of CI fetches kept in flight
	// ahead of the commit currently being evaluated.
	DefaultConcurrency = 4

	// DefaultSuccessThreshold is the success threshold applied when a search
	// is started with no explicit criteria.
	DefaultSuccessThreshold = 0.95

	// DefaultVariantRegex selects the build variants checked when none are
	// named explicitly.
	DefaultVariantRegex = ".*-required$"
)

// Outcome is the CI-reported state of one task within one build variant.
type Outcome int

const (
	// OutcomeUnknown means the CI service has no record for the task.
	OutcomeUnknown Outcome = iota

	// OutcomeSuccess means the task completed successfully.
	OutcomeSuccess

	// OutcomeFailed means the task completed with a failure.
	OutcomeFailed

	// OutcomeRunning means the task is dispatched or executing.
	OutcomeRunning

	// OutcomeUnscheduled means the task exists but has not been scheduled.
	OutcomeUnscheduled
)

// String returns the canonical name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeRunning:
		return "running"
	case OutcomeUnscheduled:
		return "unscheduled"
	default:
		return "unknown"
	}
}

// Final reports whether the outcome can no longer change for this run.
func (o Outcome) Final() bool {
	return o == OutcomeSuccess || o == OutcomeFailed
}

// CommitRef identifies one commit in the walked history.
// Refs are immutable once read from git and are never re-emitted by a walker
// within a single search.
type CommitRef struct {
	// Hash is the full commit SHA.
	Hash string

	// Index is the commit's position in walk order; 0 is the newest.
	Index int

	// When is the committer timestamp, used for age cutoffs.
	When time.Time
}

// TaskKey addresses one task within one build variant.
type TaskKey struct {
	Variant string
	Task    string
}

// BuildResult holds every (variant, task) outcome the CI service knows for
// one commit. A result is produced once by a fetcher and treated as final for
// the remainder of the search, even if the underlying CI run later changes.
type BuildResult struct {
	// Commit is the SHA the result was fetched for.
	Commit string

	// Outcomes maps each known (variant, task) pair to its outcome.
	// A nil or empty map means the CI service has no record for the commit.
	Outcomes map[TaskKey]Outcome
}

// Outcome returns the recorded outcome for the given variant and task,
// or OutcomeUnknown when no record exists.
func (r *BuildResult) Outcome(variant, task string) Outcome {
	if r == nil || r.Outcomes == nil {
		return OutcomeUnknown
	}
	return r.Outcomes[TaskKey{Variant: variant, Task: task}]
}

// Variants returns the sorted set of build variant names present in the result.
func (r *BuildResult) Variants() []string {
	if r == nil || len(r.Outcomes) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	for key := range r.Outcomes {
		seen[key.Variant] = struct{}{}
	}
	variants := make([]string, 0, len(seen))
	for variant := range seen {
		variants = append(variants, variant)
	}
	sort.Strings(variants)
	return variants
}

// VariantTasks returns the task outcomes recorded for one build variant.
func (r *BuildResult) VariantTasks(variant string) map[string]Outcome {
	if r == nil || len(r.Outcomes) == 0 {
		return nil
	}
	tasks := make(map[string]Outcome)
	for key, outcome := range r.Outcomes {
		if key.Variant == variant {
			tasks[key.Task] = outcome
		}
	}
	return tasks
}

// Empty reports whether the CI service had no record for the commit.
func (r *BuildResult) Empty() bool {
	return r == nil || len(r.Outcomes) == 0
}

// MissingPolicy controls how a criterion scores CI data that is absent or
// not yet scheduled (OutcomeUnknown and OutcomeUnscheduled).
type MissingPolicy int

const (
	// MissingPending treats absent data as still-pending evidence.
	// A commit with missing data becomes INCONCLUSIVE rather than FAIL.
	MissingPending MissingPolicy = iota

	// MissingFails escalates absent data to a definitive failure.
	MissingFails
)

// Criterion is one named requirement a commit's build results must satisfy.
// It carries the four check kinds the CI workflow uses: tasks that must have
// passed, tasks that must have run, and pass/run ratio thresholds, each
// applied to every build variant matching the variant regexes.
// A Criterion is immutable for the duration of a search.
type Criterion struct {
	// Name identifies the criterion in diagnostics and saved configuration.
	Name string `yaml:"name,omitempty"`

	// BuildVariantRegex selects the build variants the checks apply to.
	BuildVariantRegex []string `yaml:"build_variant_regex"`

	// SuccessfulTasks are task names that must have succeeded in every
	// matched variant.
	SuccessfulTasks []string `yaml:"successful_tasks,omitempty"`

	// ActiveTasks are task names that must have run (succeeded or failed)
	// in every matched variant.
	ActiveTasks []string `yaml:"active_tasks,omitempty"`

	// SuccessThreshold, when > 0, is the fraction of tasks in every matched
	// variant that must have succeeded.
	SuccessThreshold float64 `yaml:"success_threshold,omitempty"`

	// RunThreshold, when > 0, is the fraction of tasks in every matched
	// variant that must have finished running.
	RunThreshold float64 `yaml:"run_threshold,omitempty"`

	// Missing selects how absent CI data is scored. The zero value keeps
	// absent data pending.
	Missing MissingPolicy `yaml:"missing_policy,omitempty"`
}

// HasChecks reports whether the criterion requires anything at all.
func (c Criterion) HasChecks() bool {
	return len(c.SuccessfulTasks) > 0 || len(c.ActiveTasks) > 0 ||
		c.SuccessThreshold > 0 || c.RunThreshold > 0
}

// Validate checks the criterion for internal consistency: it must carry at
// least one check, every variant regex must compile, and thresholds must lie
// in (0, 1].
func (c Criterion) Validate() error {
	if len(c.BuildVariantRegex) == 0 {
		return NewConfigurationError("criterion %q has no build variant regexes", c.Name)
	}
	for _, pattern := range c.BuildVariantRegex {
		if _, err := regexp.Compile(pattern); err != nil {
			return NewConfigurationError("criterion %q has invalid variant regex %q: %v", c.Name, pattern, err)
		}
	}
	if !c.HasChecks() {
		return NewConfigurationError("criterion %q specifies no checks", c.Name)
	}
	if c.SuccessThreshold < 0 || c.SuccessThreshold > 1 {
		return NewConfigurationError("criterion %q success threshold %v outside (0, 1]", c.Name, c.SuccessThreshold)
	}
	if c.RunThreshold < 0 || c.RunThreshold > 1 {
		return NewConfigurationError("criterion %q run threshold %v outside (0, 1]", c.Name, c.RunThreshold)
	}
	return nil
}

// CriteriaGroup is a named, reusable set of criteria saved by the user.
type CriteriaGroup struct {
	// Name is the handle the group is saved and looked up under.
	Name string `yaml:"name"`

	// Rules are the criteria applied together when the group is used.
	Rules []Criterion `yaml:"rules"`
}

// VerdictKind is the evaluation outcome for a single commit.
type VerdictKind int

const (
	// VerdictPass means every criterion was independently satisfied.
	VerdictPass VerdictKind = iota

	// VerdictFail means at least one criterion definitively failed.
	VerdictFail

	// VerdictInconclusive means no criterion failed but at least one is
	// still waiting on CI evidence.
	VerdictInconclusive
)

// String returns the canonical name of the verdict kind.
func (k VerdictKind) String() string {
	switch k {
	case VerdictPass:
		return "pass"
	case VerdictFail:
		return "fail"
	default:
		return "inconclusive"
	}
}

// Verdict is the evaluation of one commit against all criteria.
// It is computed fresh per commit and never persisted.
type Verdict struct {
	Kind VerdictKind

	// Criterion names the criterion that decided a FAIL or INCONCLUSIVE
	// verdict. Empty for PASS.
	Criterion string

	// Checks describes the unsatisfied or pending checks of that criterion.
	Checks []string
}

// GitAction is the git operation performed on the commit a search finds.
type GitAction string

const (
	// GitActionNone reports the revision without touching the working tree.
	GitActionNone GitAction = "none"

	// GitActionCheckout checks the revision out, optionally on a new branch.
	GitActionCheckout GitAction = "checkout"

	// GitActionRebase rebases the current branch onto the revision.
	GitActionRebase GitAction = "rebase"

	// GitActionMerge merges the revision into the current branch.
	GitActionMerge GitAction = "merge"
)

// ParseGitAction converts a CLI string into a GitAction.
func ParseGitAction(s string) (GitAction, error) {
	switch GitAction(s) {
	case GitActionNone, GitActionCheckout, GitActionRebase, GitActionMerge:
		return GitAction(s), nil
	}
	return "", fmt.Errorf("unknown git operation %q", s)
}

// SearchInput carries the parameters of one base-commit search.
type SearchInput struct {
	// Project is the CI project the commits belong to.
	Project string

	// StartRef is the symbolic ref to start from; empty means HEAD.
	StartRef string

	// Criteria is the ordered list of requirements a commit must satisfy.
	// Must be non-empty; an empty list is rejected before the search begins.
	Criteria []Criterion

	// MaxLookback bounds how many commits are examined; <= 0 uses
	// DefaultMaxLookback.
	MaxLookback int

	// CommitLimit, when set, is a revision prefix marking the oldest commit
	// to consider; the walk stops before examining it.
	CommitLimit string

	// Timeout, when > 0, bounds the wall-clock duration of the whole search.
	// Hitting it counts as exhaustion, not as an abort.
	Timeout time.Duration

	// FetchTimeout, when > 0, bounds each individual CI fetch.
	FetchTimeout time.Duration

	// Concurrency bounds how many CI fetches may be outstanding; <= 0 uses
	// DefaultConcurrency.
	Concurrency int

	// Stride examines every Nth commit; <= 1 examines every commit.
	Stride int
}

// SearchStatus is the terminal state of a search.
type SearchStatus int

const (
	// SearchFound means a qualifying commit was located.
	SearchFound SearchStatus = iota

	// SearchExhausted means no commit within the bounds satisfied the criteria.
	SearchExhausted

	// SearchAborted means the search stopped early on a systemic failure or
	// caller cancellation.
	SearchAborted
)

// String returns the canonical name of the search status.
func (s SearchStatus) String() string {
	switch s {
	case SearchFound:
		return "found"
	case SearchExhausted:
		return "exhausted"
	default:
		return "aborted"
	}
}

// CommitDiagnostic pairs a commit with the verdict it received, kept for
// exhaustion and abort reporting.
type CommitDiagnostic struct {
	Commit  CommitRef
	Verdict Verdict
}

// SearchResult is the final answer of one search.
type SearchResult struct {
	Status SearchStatus

	// Commit is the qualifying commit when Status is SearchFound.
	Commit *CommitRef

	// Examined counts how many commits received a verdict.
	Examined int

	// FirstFailure diagnoses the newest commit that definitively failed,
	// when one was seen.
	FirstFailure *CommitDiagnostic
}
