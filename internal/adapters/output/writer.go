// Package output provides adapters for writing application output.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/evg-tools/greenbase/internal/domain"
)

// Writer renders search results and saved criteria for the terminal.
// By default, it writes to stdout.
type Writer struct {
	out io.Writer
}

// NewWriter creates a new Writer that writes to stdout.
func NewWriter() *Writer {
	return &Writer{out: os.Stdout}
}

// NewWriterWithOutput creates a new Writer with a custom output destination.
// This is useful for testing.
func NewWriterWithOutput(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WriteRevision reports the found revision, and the git-operation error when
// applying it to the working tree did not succeed.
func (w *Writer) WriteRevision(result *domain.SearchResult, operationErr error) error {
	if result == nil || result.Commit == nil {
		return fmt.Errorf("no revision in search result")
	}

	if _, err := fmt.Fprintf(w.out, "Found revision: %s (examined %d commits)\n",
		result.Commit.Hash, result.Examined); err != nil {
		return err
	}

	if operationErr != nil {
		if _, err := fmt.Fprintf(w.out,
			"Encountered an error performing the git operation; conflicts may need to be resolved manually:\n\t%v\n",
			operationErr); err != nil {
			return err
		}
	}
	return nil
}

// WriteNoRevision reports an exhausted or aborted search together with the
// diagnostics of the newest definitively failing commit, when one was seen.
func (w *Writer) WriteNoRevision(result *domain.SearchResult) error {
	if _, err := fmt.Fprintf(w.out, "No revision found (examined %d commits)\n", result.Examined); err != nil {
		return err
	}

	if result.FirstFailure != nil {
		diag := result.FirstFailure
		if _, err := fmt.Fprintf(w.out, "Newest failing commit: %s (criterion %q)\n",
			diag.Commit.Hash, diag.Verdict.Criterion); err != nil {
			return err
		}
		for _, check := range diag.Verdict.Checks {
			if _, err := fmt.Fprintf(w.out, "\t%s\n", check); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteCriteria lists saved criteria groups in a tabular layout.
func (w *Writer) WriteCriteria(groups []domain.CriteriaGroup) error {
	if len(groups) == 0 {
		_, err := fmt.Fprintln(w.out, "No saved criteria")
		return err
	}

	for _, group := range groups {
		if _, err := fmt.Fprintf(w.out, "%s\n", group.Name); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w.out, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\tVARIANTS\tPASS%\tRUN%\tPASSING TASKS\tRUN TASKS")
		for _, rule := range group.Rules {
			fmt.Fprintf(tw, "\t%s\t%s\t%s\t%s\t%s\n",
				strings.Join(rule.BuildVariantRegex, ","),
				formatThreshold(rule.SuccessThreshold),
				formatThreshold(rule.RunThreshold),
				strings.Join(rule.SuccessfulTasks, ","),
				strings.Join(rule.ActiveTasks, ","),
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func formatThreshold(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}
