// Package main is the entry point for the changegate CLI application.
// changegate selects tests, gates coverage and resolves deployments from the diff
// between two revisions of a .NET repository.
package main

import (
	"context"
	"io"
	"os"

	ch "github.com/MyCarrier-DevOps/goLibMyCarrier/clickhouse"
	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"
	"github.com/google/uuid"

	"github.com/MyCarrier-DevOps/changegate/cmd"
	"github.com/MyCarrier-DevOps/changegate/internal/adapters/coverage"
	"github.com/MyCarrier-DevOps/changegate/internal/adapters/deploymap"
	"github.com/MyCarrier-DevOps/changegate/internal/adapters/git"
	logadapter "github.com/MyCarrier-DevOps/changegate/internal/adapters/logger"
	"github.com/MyCarrier-DevOps/changegate/internal/adapters/manifest"
	"github.com/MyCarrier-DevOps/changegate/internal/adapters/output"
	"github.com/MyCarrier-DevOps/changegate/internal/adapters/source"
	"github.com/MyCarrier-DevOps/changegate/internal/adapters/store"
	"github.com/MyCarrier-DevOps/changegate/internal/domain"
	"github.com/MyCarrier-DevOps/changegate/internal/infrastructure/config"
	"github.com/MyCarrier-DevOps/changegate/internal/usecases"
)

func main() {
	// Wire up production dependencies
	deps := &cmd.Dependencies{
		// The zap logger is built per run so --verbose can raise LOG_LEVEL first.
		LoggerFactory: func(fields map[string]interface{}) cmd.Logger {
			return logadapter.NewZapAdapter(logger.NewZapLoggerFromConfig()).WithFields(fields)
		},

		ConfigLoader: loadConfig,

		RepositoryFactory: func(path string, log cmd.Logger) (cmd.Repository, error) {
			repo, err := git.NewGoGitRepository(path, log)
			if err != nil {
				return nil, err
			}
			return repo, nil
		},

		EngineFactory: newEngine,

		CoverageParserFactory: func(cfg *cmd.AppConfig) (domain.CoverageParser, error) {
			return coverage.NewParser(cfg.CoverageReportFormat, cfg.CoveragePathPrefixes)
		},

		DeploymentMapLoader: func(
			ctx context.Context,
			src string,
			cfg *cmd.AppConfig,
			log cmd.Logger,
		) (*domain.DeploymentMap, error) {
			return deploymap.NewLoader(vaultSecretReader, cfg.VaultMount, log).Load(ctx, src)
		},

		RecorderFactory: newRecorder,

		OutputWriterFactory: newOutputWriter,

		RunIDGenerator: uuid.NewString,
		ReadFile:       os.ReadFile,

		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	cmd.SetDefaultDependencies(deps)
	cmd.Execute()
}

func loadConfig(repoPath, settingsFile string) (*cmd.AppConfig, error) {
	cfg, err := config.Load(repoPath, settingsFile)
	if err != nil {
		return nil, err
	}
	return toAppConfig(cfg), nil
}

func toAppConfig(cfg *config.Config) *cmd.AppConfig {
	s := cfg.Settings
	app := &cmd.AppConfig{
		SourceExtensions:     s.Source.Extensions,
		TestTokens:           s.Classification.TestTokens,
		MethodLevel:          s.Selection.MethodLevel,
		CoverageExclude:      s.Coverage.Exclude,
		CoveragePathPrefixes: s.Coverage.PathPrefixes,
		CoverageReportFormat: s.Coverage.ReportFormat,
		IncludeDependents:    s.Deploy.IncludeDependents,
		ArtifactsDir:         s.Deploy.ArtifactsDir,
		VaultMount:           cfg.VaultMount,
		SettingsFile:         cfg.SettingsFile,
		LogLevel:             cfg.LogLevel,
		LogAppName:           cfg.LogAppName,
	}
	// Leave LedgerConfig nil rather than holding a typed nil pointer.
	if cfg.ClickHouse != nil {
		app.LedgerConfig = cfg.ClickHouse
	}
	return app
}

func newEngine(repo cmd.Repository, cfg *cmd.AppConfig, log cmd.Logger) (cmd.Engine, error) {
	gate, err := usecases.NewCoverageGate(cfg.CoverageExclude, log)
	if err != nil {
		return nil, err
	}

	graphs := usecases.NewProjectGraphBuilder(
		repo,
		manifest.NewCsprojReader(),
		usecases.NewDefaultClassifier(cfg.TestTokens),
		cfg.SourceExtensions,
		log,
	)
	selector := usecases.NewTestSelector(repo, source.NewCSharpScanner(), cfg.MethodLevel, log)
	resolver := usecases.NewDeploymentResolver(usecases.ResolverOptions{
		IncludeDependents: cfg.IncludeDependents,
		ArtifactsDir:      cfg.ArtifactsDir,
	}, log)

	return usecases.NewEngine(usecases.NewDiffAnalyzer(repo, log), graphs, selector, gate, resolver, log), nil
}

func vaultSecretReader(ctx context.Context) (deploymap.SecretReader, error) {
	client, err := config.DefaultVaultClientFactory(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newRecorder(ctx context.Context, cfg *cmd.AppConfig, _ cmd.Logger) (domain.RunRecorder, error) {
	if cfg.LedgerConfig == nil {
		return store.NoopRecorder{}, nil
	}
	chConfig, ok := cfg.LedgerConfig.(*ch.ClickhouseConfig)
	if !ok {
		return nil, newConfigTypeError("*ch.ClickhouseConfig")
	}

	rec, err := store.NewClickHouseRecorder(ctx, &ch.DefaultSessionFactory{}, chConfig)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func newOutputWriter(format string, out io.Writer) (domain.OutputWriter, error) {
	f, err := output.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return output.NewWriterWithOutput(out, f), nil
}

func newConfigTypeError(expected string) error {
	return &configTypeError{expected: expected}
}

// configTypeError is returned when configuration type assertion fails.
type configTypeError struct {
	expected string
}

func (e *configTypeError) Error() string {
	return "invalid configuration type: expected " + e.expected
}
