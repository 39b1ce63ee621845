package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evg-tools/greenbase/internal/domain"
)

// buildResult builds a BuildResult from a variant -> task -> outcome mapping.
func buildResult(commit string, variants map[string]map[string]domain.Outcome) *domain.BuildResult {
	result := &domain.BuildResult{
		Commit:   commit,
		Outcomes: make(map[domain.TaskKey]domain.Outcome),
	}
	for variant, tasks := range variants {
		for task, outcome := range tasks {
			result.Outcomes[domain.TaskKey{Variant: variant, Task: task}] = outcome
		}
	}
	return result
}

func requiredTasks(tasks ...string) domain.Criterion {
	return domain.Criterion{
		Name:              "required-tasks",
		BuildVariantRegex: []string{".*-required$"},
		SuccessfulTasks:   tasks,
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	tests := []struct {
		name          string
		result        *domain.BuildResult
		criteria      []domain.Criterion
		wantKind      domain.VerdictKind
		wantCriterion string
	}{
		{
			name: "all required tasks successful yields pass",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"compile":      domain.OutcomeSuccess,
					"unit_tests":   domain.OutcomeSuccess,
					"lint":         domain.OutcomeFailed, // not required
					"replica_sets": domain.OutcomeSuccess,
				},
			}),
			criteria: []domain.Criterion{requiredTasks("compile", "unit_tests")},
			wantKind: domain.VerdictPass,
		},
		{
			name: "one failed required task yields fail regardless of others",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"compile":    domain.OutcomeSuccess,
					"unit_tests": domain.OutcomeFailed,
					"lint":       domain.OutcomeRunning,
				},
			}),
			criteria:      []domain.Criterion{requiredTasks("compile", "unit_tests", "lint")},
			wantKind:      domain.VerdictFail,
			wantCriterion: "required-tasks",
		},
		{
			name: "running required task yields inconclusive under default policy",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"compile":    domain.OutcomeSuccess,
					"unit_tests": domain.OutcomeRunning,
				},
			}),
			criteria:      []domain.Criterion{requiredTasks("compile", "unit_tests")},
			wantKind:      domain.VerdictInconclusive,
			wantCriterion: "required-tasks",
		},
		{
			name: "unscheduled required task yields inconclusive under default policy",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"compile":    domain.OutcomeSuccess,
					"unit_tests": domain.OutcomeUnscheduled,
				},
			}),
			criteria:      []domain.Criterion{requiredTasks("compile", "unit_tests")},
			wantKind:      domain.VerdictInconclusive,
			wantCriterion: "required-tasks",
		},
		{
			name: "missing task escalates to fail under missing-fails policy",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"compile": domain.OutcomeSuccess,
				},
			}),
			criteria: []domain.Criterion{{
				Name:              "strict",
				BuildVariantRegex: []string{".*-required$"},
				SuccessfulTasks:   []string{"compile", "unit_tests"},
				Missing:           domain.MissingFails,
			}},
			wantKind:      domain.VerdictFail,
			wantCriterion: "strict",
		},
		{
			name:          "empty build result yields inconclusive under default policy",
			result:        &domain.BuildResult{Commit: "abc"},
			criteria:      []domain.Criterion{requiredTasks("compile")},
			wantKind:      domain.VerdictInconclusive,
			wantCriterion: "required-tasks",
		},
		{
			name:   "empty build result yields fail under missing-fails policy",
			result: &domain.BuildResult{Commit: "abc"},
			criteria: []domain.Criterion{{
				Name:              "strict",
				BuildVariantRegex: []string{".*-required$"},
				SuccessfulTasks:   []string{"compile"},
				Missing:           domain.MissingFails,
			}},
			wantKind:      domain.VerdictFail,
			wantCriterion: "strict",
		},
		{
			name: "empty criteria set yields pass",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {"compile": domain.OutcomeFailed},
			}),
			criteria: nil,
			wantKind: domain.VerdictPass,
		},
		{
			name: "criterion only applies to matched variants",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {"compile": domain.OutcomeSuccess},
				"macos-optional": {"compile": domain.OutcomeFailed},
			}),
			criteria: []domain.Criterion{requiredTasks("compile")},
			wantKind: domain.VerdictPass,
		},
		{
			name: "active task satisfied by failure",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {"replica_sets": domain.OutcomeFailed},
			}),
			criteria: []domain.Criterion{{
				Name:              "must-run",
				BuildVariantRegex: []string{".*-required$"},
				ActiveTasks:       []string{"replica_sets"},
			}},
			wantKind: domain.VerdictPass,
		},
		{
			name: "active task still running is inconclusive",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {"replica_sets": domain.OutcomeRunning},
			}),
			criteria: []domain.Criterion{{
				Name:              "must-run",
				BuildVariantRegex: []string{".*-required$"},
				ActiveTasks:       []string{"replica_sets"},
			}},
			wantKind:      domain.VerdictInconclusive,
			wantCriterion: "must-run",
		},
		{
			name: "success threshold met yields pass",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"a": domain.OutcomeSuccess,
					"b": domain.OutcomeSuccess,
					"c": domain.OutcomeSuccess,
					"d": domain.OutcomeFailed,
				},
			}),
			criteria: []domain.Criterion{{
				Name:              "threshold",
				BuildVariantRegex: []string{".*-required$"},
				SuccessThreshold:  0.75,
			}},
			wantKind: domain.VerdictPass,
		},
		{
			name: "success threshold unreachable yields fail",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"a": domain.OutcomeSuccess,
					"b": domain.OutcomeFailed,
					"c": domain.OutcomeFailed,
					"d": domain.OutcomeFailed,
				},
			}),
			criteria: []domain.Criterion{{
				Name:              "threshold",
				BuildVariantRegex: []string{".*-required$"},
				SuccessThreshold:  0.75,
			}},
			wantKind:      domain.VerdictFail,
			wantCriterion: "threshold",
		},
		{
			name: "success threshold still reachable yields inconclusive",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"a": domain.OutcomeSuccess,
					"b": domain.OutcomeSuccess,
					"c": domain.OutcomeRunning,
					"d": domain.OutcomeFailed,
				},
			}),
			criteria: []domain.Criterion{{
				Name:              "threshold",
				BuildVariantRegex: []string{".*-required$"},
				SuccessThreshold:  0.75,
			}},
			wantKind:      domain.VerdictInconclusive,
			wantCriterion: "threshold",
		},
		{
			name: "run threshold counts failures as run",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"a": domain.OutcomeSuccess,
					"b": domain.OutcomeFailed,
					"c": domain.OutcomeFailed,
					"d": domain.OutcomeSuccess,
				},
			}),
			criteria: []domain.Criterion{{
				Name:              "coverage",
				BuildVariantRegex: []string{".*-required$"},
				RunThreshold:      1.0,
			}},
			wantKind: domain.VerdictPass,
		},
		{
			name: "run threshold with unscheduled tasks fails under missing-fails",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"a": domain.OutcomeSuccess,
					"b": domain.OutcomeUnscheduled,
				},
			}),
			criteria: []domain.Criterion{{
				Name:              "coverage",
				BuildVariantRegex: []string{".*-required$"},
				RunThreshold:      1.0,
				Missing:           domain.MissingFails,
			}},
			wantKind:      domain.VerdictFail,
			wantCriterion: "coverage",
		},
		{
			name: "fail short-circuits before later criteria",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"compile":    domain.OutcomeFailed,
					"unit_tests": domain.OutcomeRunning,
				},
			}),
			criteria: []domain.Criterion{
				{
					Name:              "first",
					BuildVariantRegex: []string{".*-required$"},
					SuccessfulTasks:   []string{"compile"},
				},
				{
					Name:              "second",
					BuildVariantRegex: []string{".*-required$"},
					SuccessfulTasks:   []string{"unit_tests"},
				},
			},
			wantKind:      domain.VerdictFail,
			wantCriterion: "first",
		},
		{
			name: "pending in one criterion with all others satisfied is inconclusive",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required": {
					"compile":    domain.OutcomeSuccess,
					"unit_tests": domain.OutcomeRunning,
				},
			}),
			criteria: []domain.Criterion{
				{
					Name:              "compiled",
					BuildVariantRegex: []string{".*-required$"},
					SuccessfulTasks:   []string{"compile"},
				},
				{
					Name:              "tested",
					BuildVariantRegex: []string{".*-required$"},
					SuccessfulTasks:   []string{"unit_tests"},
				},
			},
			wantKind:      domain.VerdictInconclusive,
			wantCriterion: "tested",
		},
		{
			name: "checks apply across every matched variant",
			result: buildResult("abc", map[string]map[string]domain.Outcome{
				"linux-required":   {"compile": domain.OutcomeSuccess},
				"windows-required": {"compile": domain.OutcomeFailed},
			}),
			criteria:      []domain.Criterion{requiredTasks("compile")},
			wantKind:      domain.VerdictFail,
			wantCriterion: "required-tasks",
		},
	}

	evaluator := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := evaluator.Evaluate(tt.result, tt.criteria)

			assert.Equal(t, tt.wantKind, verdict.Kind, "verdict kind mismatch")
			assert.Equal(t, tt.wantCriterion, verdict.Criterion, "deciding criterion mismatch")
			if tt.wantKind != domain.VerdictPass {
				assert.NotEmpty(t, verdict.Checks, "deciding checks should be recorded")
			}
		})
	}
}

func TestEvaluator_Evaluate_Idempotent(t *testing.T) {
	result := buildResult("abc", map[string]map[string]domain.Outcome{
		"linux-required": {
			"compile":    domain.OutcomeSuccess,
			"unit_tests": domain.OutcomeRunning,
			"lint":       domain.OutcomeFailed,
		},
	})
	criteria := []domain.Criterion{
		requiredTasks("compile", "unit_tests"),
		{
			Name:              "lint",
			BuildVariantRegex: []string{".*-required$"},
			SuccessfulTasks:   []string{"lint"},
		},
	}

	evaluator := NewEvaluator()
	first := evaluator.Evaluate(result, criteria)
	second := evaluator.Evaluate(result, criteria)

	require.Equal(t, first, second, "evaluation must be deterministic")
}

func TestCriterion_Validate(t *testing.T) {
	tests := []struct {
		name      string
		criterion domain.Criterion
		wantErr   bool
	}{
		{
			name: "valid criterion",
			criterion: domain.Criterion{
				Name:              "ok",
				BuildVariantRegex: []string{".*-required$"},
				SuccessThreshold:  0.95,
			},
			wantErr: false,
		},
		{
			name: "no variant regexes",
			criterion: domain.Criterion{
				Name:             "bad",
				SuccessThreshold: 0.95,
			},
			wantErr: true,
		},
		{
			name: "invalid regex",
			criterion: domain.Criterion{
				Name:              "bad",
				BuildVariantRegex: []string{"["},
				SuccessThreshold:  0.95,
			},
			wantErr: true,
		},
		{
			name: "no checks",
			criterion: domain.Criterion{
				Name:              "bad",
				BuildVariantRegex: []string{".*"},
			},
			wantErr: true,
		},
		{
			name: "threshold above one",
			criterion: domain.Criterion{
				Name:              "bad",
				BuildVariantRegex: []string{".*"},
				SuccessThreshold:  1.5,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.criterion.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsConfigurationError(err), "expected a configuration error")
				return
			}
			require.NoError(t, err)
		})
	}
}
