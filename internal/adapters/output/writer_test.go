package output

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evg-tools/greenbase/internal/domain"
)

func TestWriter_WriteRevision(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterWithOutput(&buf)

	err := w.WriteRevision(&domain.SearchResult{
		Status:   domain.SearchFound,
		Commit:   &domain.CommitRef{Hash: "abc123"},
		Examined: 7,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "Found revision: abc123 (examined 7 commits)\n", buf.String())
}

func TestWriter_WriteRevision_WithOperationError(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterWithOutput(&buf)

	err := w.WriteRevision(&domain.SearchResult{
		Status:   domain.SearchFound,
		Commit:   &domain.CommitRef{Hash: "abc123"},
		Examined: 2,
	}, errors.New("rebase halted on conflict"))

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Found revision: abc123")
	assert.Contains(t, buf.String(), "conflicts may need to be resolved manually")
	assert.Contains(t, buf.String(), "rebase halted on conflict")
}

func TestWriter_WriteRevision_NoCommit(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterWithOutput(&buf)

	err := w.WriteRevision(&domain.SearchResult{Status: domain.SearchExhausted}, nil)

	require.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestWriter_WriteNoRevision(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterWithOutput(&buf)

	err := w.WriteNoRevision(&domain.SearchResult{
		Status:   domain.SearchExhausted,
		Examined: 50,
	})

	require.NoError(t, err)
	assert.Equal(t, "No revision found (examined 50 commits)\n", buf.String())
}

func TestWriter_WriteNoRevision_WithDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterWithOutput(&buf)

	err := w.WriteNoRevision(&domain.SearchResult{
		Status:   domain.SearchExhausted,
		Examined: 3,
		FirstFailure: &domain.CommitDiagnostic{
			Commit: domain.CommitRef{Hash: "def456"},
			Verdict: domain.Verdict{
				Kind:      domain.VerdictFail,
				Criterion: "required-tasks",
				Checks:    []string{"task compile failed on linux-required"},
			},
		},
	})

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No revision found (examined 3 commits)")
	assert.Contains(t, buf.String(), `Newest failing commit: def456 (criterion "required-tasks")`)
	assert.Contains(t, buf.String(), "task compile failed on linux-required")
}

func TestWriter_WriteCriteria_Empty(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterWithOutput(&buf)

	require.NoError(t, w.WriteCriteria(nil))
	assert.Equal(t, "No saved criteria\n", buf.String())
}

func TestWriter_WriteCriteria(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterWithOutput(&buf)

	err := w.WriteCriteria([]domain.CriteriaGroup{
		{
			Name: "nightly",
			Rules: []domain.Criterion{
				{
					BuildVariantRegex: []string{".*-required$"},
					SuccessfulTasks:   []string{"compile", "unit_tests"},
					SuccessThreshold:  0.95,
				},
				{
					BuildVariantRegex: []string{"^enterprise-.*"},
					ActiveTasks:       []string{"push"},
				},
			},
		},
		{
			Name:  "weekly",
			Rules: []domain.Criterion{{BuildVariantRegex: []string{".*"}, RunThreshold: 0.5}},
		},
	})

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "nightly")
	assert.Contains(t, out, "weekly")
	assert.Contains(t, out, "VARIANTS")
	assert.Contains(t, out, ".*-required$")
	assert.Contains(t, out, "compile,unit_tests")
	assert.Contains(t, out, "0.95")
	assert.Contains(t, out, "push")
	assert.Contains(t, out, "0.50")
}
