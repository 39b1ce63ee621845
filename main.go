// Package main is the entry point for the greenbase CLI application.
// greenbase finds the most recent commit on a branch whose CI results satisfy
// the given criteria, so local work can be based on a known-good commit.
package main

import (
	"context"
	"os"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"

	"github.com/evg-tools/greenbase/cmd"
	"github.com/evg-tools/greenbase/internal/adapters/cache"
	"github.com/evg-tools/greenbase/internal/adapters/evergreen"
	"github.com/evg-tools/greenbase/internal/adapters/git"
	logadapter "github.com/evg-tools/greenbase/internal/adapters/logger"
	"github.com/evg-tools/greenbase/internal/adapters/output"
	"github.com/evg-tools/greenbase/internal/domain"
	"github.com/evg-tools/greenbase/internal/infrastructure/config"
	"github.com/evg-tools/greenbase/internal/usecases"
)

func main() {
	// Create a single shared logger instance for the application
	zapLog := logger.NewZapLoggerFromConfig()
	adapter := logadapter.NewZapAdapter(zapLog)

	// Wire up production dependencies
	deps := &cmd.Dependencies{
		LoggerFactory: func() cmd.Logger {
			return adapter
		},

		ConfigLoader: func() (*cmd.AppConfig, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			return &cmd.AppConfig{
				APIServer:  cfg.APIServer,
				LogLevel:   cfg.LogLevel,
				LogAppName: cfg.LogAppName,
			}, nil
		},

		CredentialsLoader: func(ctx context.Context, path string) (*cmd.Credentials, error) {
			creds, err := config.LoadCredentials(ctx, path, nil)
			if err != nil {
				return nil, err
			}
			return &cmd.Credentials{
				User:          creds.User,
				APIKey:        creds.APIKey,
				APIServerHost: creds.APIServerHost,
			}, nil
		},

		RepositoryFactory: func(path string, _ cmd.Logger) (domain.LocalRepository, error) {
			return git.NewGoGitRepository(path, adapter.WithFields(map[string]any{"subsystem": "git"}))
		},

		FetcherFactory: func(cfg *cmd.AppConfig, creds *cmd.Credentials, project string, _ cmd.Logger) domain.ResultFetcher {
			return evergreen.NewClient(evergreen.Config{
				BaseURL: resolveBaseURL(cfg.APIServer, creds.APIServerHost),
				Project: project,
				User:    creds.User,
				APIKey:  creds.APIKey,
			}, adapter.WithFields(map[string]any{"subsystem": "evergreen"}))
		},

		SearcherFactory: func(
			walker domain.HistoryWalker,
			fetcher domain.ResultFetcher,
			_ cmd.Logger,
		) domain.CommitSearcher {
			return usecases.NewSearcher(walker, fetcher, func(f domain.ResultFetcher) domain.ResultFetcher {
				return cache.New(f)
			}, adapter.WithFields(map[string]any{"subsystem": "search"}))
		},

		CriteriaStoreFactory: func() (cmd.CriteriaStore, error) {
			path, err := config.DefaultCriteriaPath()
			if err != nil {
				return nil, err
			}
			return config.NewCriteriaStore(path), nil
		},

		OutputWriterFactory: func() domain.OutputWriter {
			return output.NewWriter()
		},

		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	cmd.SetDefaultDependencies(deps)
	cmd.Execute()
}

// resolveBaseURL picks the API server for the fetcher. A host set in the
// credentials file wins over the environment-derived setting, matching how
// evergreen's own tooling treats api_server_host.
func resolveBaseURL(apiServer, credentialsHost string) string {
	if credentialsHost != "" {
		return credentialsHost
	}
	return apiServer
}
