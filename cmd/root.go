// Package cmd provides the CLI commands for greenbase.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/evg-tools/greenbase/internal/domain"
)

// Logger defines the logging interface used by the command.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// AppConfig holds application configuration loaded by ConfigLoader.
type AppConfig struct {
	// APIServer is the Evergreen API server base URL.
	APIServer string

	// LogLevel is the log level setting.
	LogLevel string

	// LogAppName is the application name for logging.
	LogAppName string
}

// Credentials authenticate against the Evergreen API.
type Credentials struct {
	User   string
	APIKey string

	// APIServerHost, when set, overrides AppConfig.APIServer.
	APIServerHost string
}

// CriteriaStore manages saved criteria groups.
type CriteriaStore interface {
	// Groups returns every saved criteria group.
	Groups() ([]domain.CriteriaGroup, error)

	// Lookup returns the rules saved under the given name.
	Lookup(name string) ([]domain.Criterion, error)

	// AddRule stores a rule under the named group.
	AddRule(name string, rule domain.Criterion, override bool) error

	// Export writes the named groups to the destination file.
	Export(names []string, destination string) error

	// Import merges groups from the given file.
	Import(source string, override bool) error
}

// Dependencies holds all injectable dependencies for the command.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// LoggerFactory creates a logger instance.
	LoggerFactory func() Logger

	// ConfigLoader loads application configuration.
	ConfigLoader func() (*AppConfig, error)

	// CredentialsLoader loads Evergreen API credentials; path is the
	// credentials file to fall back to.
	CredentialsLoader func(ctx context.Context, path string) (*Credentials, error)

	// RepositoryFactory creates the git collaborator for the given path.
	RepositoryFactory func(path string, log Logger) (domain.LocalRepository, error)

	// FetcherFactory creates the CI result fetcher.
	FetcherFactory func(cfg *AppConfig, creds *Credentials, project string, log Logger) domain.ResultFetcher

	// SearcherFactory creates the commit searcher with its collaborators.
	SearcherFactory func(walker domain.HistoryWalker, fetcher domain.ResultFetcher, log Logger) domain.CommitSearcher

	// CriteriaStoreFactory creates the saved-criteria store.
	CriteriaStoreFactory func() (CriteriaStore, error)

	// OutputWriterFactory creates an OutputWriter.
	OutputWriterFactory func() domain.OutputWriter

	// Stdout is the writer for standard output.
	Stdout io.Writer

	// Stderr is the writer for standard error (for warnings/errors).
	Stderr io.Writer
}

// Command-line flags.
var (
	passingTasks   []string
	runTasks       []string
	passThreshold  float64
	runThreshold   float64
	buildVariants  []string
	failOnMissing  bool
	evgProject     string
	evgConfigFile  string
	startRef       string
	commitLookback int
	commitLimit    string
	timeoutSecs    int
	fetchTimeout   int
	concurrency    int
	gitOperation   string
	branchName     string
	saveCriteria   string
	useCriteria    string
	listCriteria   bool
	override       bool
	exportCriteria []string
	exportFile     string
	importCriteria string
	verbose        bool
)

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for greenbase.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "greenbase [path]",
		Short: "Find and check out a recent commit that is green in CI",
		Long: `greenbase finds the most recent commit on a branch whose CI results satisfy
the given criteria, so local work can be based on a commit without
pre-existing build or test failures.

It walks the commit history from HEAD (or a given ref), fetches the CI
outcome of each commit's build variants and tasks, and stops at the newest
commit satisfying every criterion. Commits whose CI runs are still in
progress are skipped, not waited on.

Criteria

There are 4 checks that can be required, each applied to every build variant
matching the variant regexes:

  * specific tasks that must have passed
  * specific tasks that must have run
  * the fraction of tasks that must have passed
  * the fraction of tasks that must have run

If no criteria are specified, a pass threshold of 0.95 over variants matching
'.*-required$' is used.

Examples

  # Ensure the replica_sets task ran on two build variants
  greenbase --run-task replica_sets --build-variant enterprise-rhel-80-64-bit --build-variant enterprise-windows

  # Ensure there are no systemic failures on the base commit
  greenbase --pass-threshold 0.98

  # Save the criteria for later reuse
  greenbase --pass-threshold 0.98 --save-criteria stable
  greenbase --use-criteria stable`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, deps)
		},
	}

	flags := rootCmd.Flags()
	flags.StringArrayVar(&passingTasks, "passing-task", nil,
		"Task that needs to be passing (can be specified multiple times)")
	flags.StringArrayVar(&runTasks, "run-task", nil,
		"Task that needs to have run (can be specified multiple times)")
	flags.Float64Var(&passThreshold, "pass-threshold", 0,
		"Fraction of tasks that need to be successful in each matched variant")
	flags.Float64Var(&runThreshold, "run-threshold", 0,
		"Fraction of tasks that need to have run in each matched variant")
	flags.StringArrayVar(&buildVariants, "build-variant", nil,
		"Regex of build variants to check (can be specified multiple times)")
	flags.BoolVar(&failOnMissing, "fail-on-missing", false,
		"Treat missing or unscheduled CI data as failing instead of inconclusive")
	flags.StringVar(&evgProject, "evg-project", defaultProject,
		"Evergreen project to query against")
	flags.StringVar(&evgConfigFile, "evg-config-file", defaultCredentialsFile,
		"File containing evergreen authentication information")
	flags.StringVar(&startRef, "start-ref", "",
		"Ref to start the search from (defaults to HEAD)")
	flags.IntVar(&commitLookback, "commit-lookback", domain.DefaultMaxLookback,
		"Number of commits to check before giving up")
	flags.StringVar(&commitLimit, "commit-limit", "",
		"Oldest commit to check before giving up (revision prefix)")
	flags.IntVar(&timeoutSecs, "timeout-secs", 0,
		"Number of seconds to search before giving up")
	flags.IntVar(&fetchTimeout, "fetch-timeout-secs", 0,
		"Number of seconds to wait for each CI lookup; a timed-out commit counts as inconclusive")
	flags.IntVar(&concurrency, "concurrency", domain.DefaultConcurrency,
		"Number of CI lookups to keep in flight")
	flags.StringVar(&gitOperation, "git-operation", string(domain.GitActionCheckout),
		"Git operation to perform with the found commit (none, checkout, rebase, merge)")
	flags.StringVarP(&branchName, "branch", "b", "",
		"Name of branch to create on checkout")
	flags.StringVar(&saveCriteria, "save-criteria", "",
		"Save the specified criteria under the given name for future use")
	flags.StringVar(&useCriteria, "use-criteria", "",
		"Use previously saved criteria")
	flags.BoolVar(&listCriteria, "list-criteria", false,
		"Display saved criteria")
	flags.BoolVar(&override, "override", false,
		"Override conflicting saved criteria")
	flags.StringArrayVar(&exportCriteria, "export-criteria", nil,
		"Saved criteria to export to a file (can be specified multiple times)")
	flags.StringVar(&exportFile, "export-file", "",
		"File to write exported criteria to")
	flags.StringVar(&importCriteria, "import-criteria", "",
		"Import previously exported criteria")
	flags.BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose/debug logging")

	return rootCmd
}

// Defaults surfaced as flag defaults.
const (
	defaultProject         = "mongodb-mongo-master"
	defaultCredentialsFile = "~/.evergreen.yml"
)

// run dispatches between criteria management and the search itself.
func run(cmd *cobra.Command, args []string, deps *Dependencies) error {
	if deps == nil {
		return errors.New("dependencies not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	repoPath := "."
	if len(args) > 0 {
		repoPath = args[0]
	}

	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// Set log level based on verbose flag (best-effort)
	if verbose {
		if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
			writeWarningf(stderr, "warning: could not set log level: %v\n", err)
		}
	}

	log := deps.LoggerFactory()

	switch {
	case listCriteria:
		store, err := deps.CriteriaStoreFactory()
		if err != nil {
			return err
		}
		groups, err := store.Groups()
		if err != nil {
			return err
		}
		return deps.OutputWriterFactory().WriteCriteria(groups)

	case saveCriteria != "":
		store, err := deps.CriteriaStoreFactory()
		if err != nil {
			return err
		}
		rule := criterionFromFlags(saveCriteria)
		if err := store.AddRule(saveCriteria, rule, override); err != nil {
			return fmt.Errorf("could not save %q: %w", saveCriteria, err)
		}
		return nil

	case len(exportCriteria) > 0:
		if exportFile == "" {
			return errors.New("export file needs to be specified with --export-file")
		}
		store, err := deps.CriteriaStoreFactory()
		if err != nil {
			return err
		}
		return store.Export(exportCriteria, exportFile)

	case importCriteria != "":
		store, err := deps.CriteriaStoreFactory()
		if err != nil {
			return err
		}
		if err := store.Import(importCriteria, override); err != nil {
			return fmt.Errorf("could not import from %q: %w", importCriteria, err)
		}
		return nil
	}

	return runSearch(ctx, repoPath, deps, log)
}

// runSearch wires the collaborators and executes the base-commit search.
func runSearch(ctx context.Context, repoPath string, deps *Dependencies, log Logger) error {
	cfg, err := deps.ConfigLoader()
	if err != nil {
		log.Error(ctx, "failed to load configuration", err, nil)
		return fmt.Errorf("configuration error: %w", err)
	}

	creds, err := deps.CredentialsLoader(ctx, expandHome(evgConfigFile))
	if err != nil {
		log.Error(ctx, "failed to load evergreen credentials", err, nil)
		return fmt.Errorf("credentials error: %w", err)
	}

	criteria, err := resolveCriteria(deps)
	if err != nil {
		return err
	}

	action, err := domain.ParseGitAction(gitOperation)
	if err != nil {
		return err
	}

	repo, err := deps.RepositoryFactory(repoPath, log)
	if err != nil {
		log.Error(ctx, "failed to open git repository", err, map[string]interface{}{
			"path": repoPath,
		})
		if errors.Is(err, domain.ErrRepositoryNotFound) {
			return fmt.Errorf("not a git repository: %s", repoPath)
		}
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			log.Warn(ctx, "failed to close git repository", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	fetcher := deps.FetcherFactory(cfg, creds, evgProject, log)
	searcher := deps.SearcherFactory(repo, fetcher, log)

	result, err := searcher.FindBase(ctx, domain.SearchInput{
		Project:      evgProject,
		StartRef:     startRef,
		Criteria:     criteria,
		MaxLookback:  commitLookback,
		CommitLimit:  commitLimit,
		Timeout:      time.Duration(timeoutSecs) * time.Second,
		FetchTimeout: time.Duration(fetchTimeout) * time.Second,
		Concurrency:  concurrency,
	})
	if err != nil {
		log.Error(ctx, "search failed", err, nil)
		return err
	}

	writer := deps.OutputWriterFactory()
	if result.Status != domain.SearchFound {
		if writeErr := writer.WriteNoRevision(result); writeErr != nil {
			return fmt.Errorf("output error: %w", writeErr)
		}
		return errors.New("no revision found")
	}

	var operationErr error
	if action != domain.GitActionNone {
		operationErr = repo.Apply(ctx, action, result.Commit.Hash, branchName)
		if operationErr != nil {
			log.Warn(ctx, "error performing git operation", map[string]interface{}{
				"operation": string(action),
				"revision":  result.Commit.Hash,
				"error":     operationErr.Error(),
			})
		}
	}

	if err := writer.WriteRevision(result, operationErr); err != nil {
		return fmt.Errorf("output error: %w", err)
	}
	return nil
}

// resolveCriteria builds the search criteria from saved configuration or the
// command-line flags.
func resolveCriteria(deps *Dependencies) ([]domain.Criterion, error) {
	if useCriteria != "" {
		store, err := deps.CriteriaStoreFactory()
		if err != nil {
			return nil, err
		}
		rules, err := store.Lookup(useCriteria)
		if err != nil {
			return nil, fmt.Errorf("could not use %q: %w", useCriteria, err)
		}
		return rules, nil
	}
	return []domain.Criterion{criterionFromFlags("command-line")}, nil
}

// criterionFromFlags assembles one criterion from the check flags, applying
// the default threshold when no checks were specified.
func criterionFromFlags(name string) domain.Criterion {
	variants := buildVariants
	if len(variants) == 0 {
		variants = []string{domain.DefaultVariantRegex}
	}

	criterion := domain.Criterion{
		Name:              name,
		BuildVariantRegex: variants,
		SuccessfulTasks:   passingTasks,
		ActiveTasks:       runTasks,
		SuccessThreshold:  passThreshold,
		RunThreshold:      runThreshold,
	}
	if failOnMissing {
		criterion.Missing = domain.MissingFails
	}
	if !criterion.HasChecks() {
		criterion.SuccessThreshold = domain.DefaultSuccessThreshold
	}
	return criterion
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// writeWarningf writes a warning message to the given writer.
// This is a best-effort operation; errors are intentionally ignored
// because there is no recovery action if stderr writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, err := fmt.Fprintf(w, format, args...)
	if err != nil {
		return
	}
}
