// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill use cases.
package usecases

import (
	"context"
	"fmt"
	"regexp"

	"github.com/evg-tools/greenbase/internal/domain"
)

// Logger defines the logging interface required by the use cases.
// This abstracts the logger dependency to avoid coupling to a specific implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// checkStatus is the resolution of one check within one criterion.
type checkStatus int

const (
	checkSatisfied checkStatus = iota
	checkPending
	checkUnsatisfied
)

// Evaluator scores a commit's build results against a set of criteria.
// Evaluation is pure: the same BuildResult and criteria always produce the
// same Verdict.
type Evaluator struct{}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate produces the verdict for one commit.
//
// Criteria are evaluated in order and evaluation short-circuits at the first
// criterion that definitively fails; its name and unsatisfied checks are
// recorded on the verdict, and later criteria are not examined. When no
// criterion fails, a criterion still waiting on CI evidence makes the verdict
// INCONCLUSIVE; only when every criterion is satisfied is the verdict PASS.
// An empty criteria list yields PASS; callers guard against that upstream
// with a ConfigurationError before any search begins.
func (e *Evaluator) Evaluate(result *domain.BuildResult, criteria []domain.Criterion) domain.Verdict {
	var pending *domain.Verdict

	for _, criterion := range criteria {
		status, checks := e.evaluateCriterion(result, criterion)
		switch status {
		case checkUnsatisfied:
			return domain.Verdict{
				Kind:      domain.VerdictFail,
				Criterion: criterion.Name,
				Checks:    checks,
			}
		case checkPending:
			if pending == nil {
				pending = &domain.Verdict{
					Kind:      domain.VerdictInconclusive,
					Criterion: criterion.Name,
					Checks:    checks,
				}
			}
		}
	}

	if pending != nil {
		return *pending
	}
	return domain.Verdict{Kind: domain.VerdictPass}
}

// evaluateCriterion scores one criterion: unsatisfied if any check is
// unsatisfied, pending if any check is pending, satisfied otherwise.
// The returned slice describes the deciding checks.
func (e *Evaluator) evaluateCriterion(
	result *domain.BuildResult,
	criterion domain.Criterion,
) (checkStatus, []string) {
	variants := matchVariants(result, criterion.BuildVariantRegex)
	if len(variants) == 0 {
		// No evidence at all for this criterion.
		status := missingStatus(criterion.Missing)
		return status, []string{"no build variants matched"}
	}

	overall := checkSatisfied
	var deciding []string
	record := func(status checkStatus, desc string) {
		if status == checkSatisfied {
			return
		}
		if status > overall {
			overall = status
			deciding = nil
		}
		if status == overall {
			deciding = append(deciding, desc)
		}
	}

	for _, variant := range variants {
		tasks := result.VariantTasks(variant)

		for _, task := range criterion.SuccessfulTasks {
			status := resolveOutcome(tasks[task], criterion.Missing)
			record(status, fmt.Sprintf("%s: task %q is %s, needs success", variant, task, tasks[task]))
		}

		for _, task := range criterion.ActiveTasks {
			status := resolveActive(tasks[task], criterion.Missing)
			record(status, fmt.Sprintf("%s: task %q is %s, needs to have run", variant, task, tasks[task]))
		}

		if criterion.SuccessThreshold > 0 {
			status, ratio := thresholdStatus(tasks, criterion.SuccessThreshold, criterion.Missing, false)
			record(status, fmt.Sprintf("%s: %.2f of tasks successful, needs %.2f", variant, ratio, criterion.SuccessThreshold))
		}

		if criterion.RunThreshold > 0 {
			status, ratio := thresholdStatus(tasks, criterion.RunThreshold, criterion.Missing, true)
			record(status, fmt.Sprintf("%s: %.2f of tasks run, needs %.2f", variant, ratio, criterion.RunThreshold))
		}
	}

	return overall, deciding
}

// matchVariants returns the result's variants matching any of the regexes.
// The patterns are validated at configuration time; ones that fail to compile
// here are skipped rather than re-reported.
func matchVariants(result *domain.BuildResult, patterns []string) []string {
	var matched []string
	for _, variant := range result.Variants() {
		for _, pattern := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			if re.MatchString(variant) {
				matched = append(matched, variant)
				break
			}
		}
	}
	return matched
}

// missingStatus scores absent CI evidence under the criterion policy.
func missingStatus(policy domain.MissingPolicy) checkStatus {
	if policy == domain.MissingFails {
		return checkUnsatisfied
	}
	return checkPending
}

// resolveOutcome scores a task that must have succeeded.
func resolveOutcome(outcome domain.Outcome, policy domain.MissingPolicy) checkStatus {
	switch outcome {
	case domain.OutcomeSuccess:
		return checkSatisfied
	case domain.OutcomeFailed:
		return checkUnsatisfied
	case domain.OutcomeRunning:
		return checkPending
	default:
		return missingStatus(policy)
	}
}

// resolveActive scores a task that must have run to completion either way.
func resolveActive(outcome domain.Outcome, policy domain.MissingPolicy) checkStatus {
	switch {
	case outcome.Final():
		return checkSatisfied
	case outcome == domain.OutcomeRunning:
		return checkPending
	default:
		return missingStatus(policy)
	}
}

// thresholdStatus scores a ratio threshold over one variant's tasks.
// A threshold is satisfied once the current ratio reaches it, unsatisfied
// once it can no longer be reached even if every eligible non-final task
// resolves favorably, and pending otherwise. Under MissingFails, unscheduled
// tasks are not eligible to resolve favorably.
func thresholdStatus(
	tasks map[string]domain.Outcome,
	threshold float64,
	policy domain.MissingPolicy,
	countRuns bool,
) (checkStatus, float64) {
	if len(tasks) == 0 {
		return missingStatus(policy), 0
	}

	var success, failed, running, unscheduled int
	for _, outcome := range tasks {
		switch outcome {
		case domain.OutcomeSuccess:
			success++
		case domain.OutcomeFailed:
			failed++
		case domain.OutcomeRunning:
			running++
		default:
			unscheduled++
		}
	}

	total := float64(len(tasks))
	achieved := success
	if countRuns {
		achieved = success + failed
	}

	ratio := float64(achieved) / total
	if ratio >= threshold {
		return checkSatisfied, ratio
	}

	eligible := running
	if policy == domain.MissingPending {
		eligible += unscheduled
	}
	if float64(achieved+eligible)/total >= threshold {
		return checkPending, ratio
	}
	return checkUnsatisfied, ratio
}
