// Package cmd provides the CLI commands for changegate.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
	"github.com/MyCarrier-DevOps/changegate/internal/usecases"
)

// Logger defines the logging interface used by the commands.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// Repository is the version-control backend a run reads from.
type Repository interface {
	domain.RevisionDiffProvider
	Close() error
}

// Engine runs the gate components over one analysis.
type Engine interface {
	Analyze(ctx context.Context, baseRef, headRef string) (*usecases.Analysis, error)
	SelectTests(ctx context.Context, a *usecases.Analysis) (*domain.Selection, error)
	CheckCoverage(ctx context.Context, a *usecases.Analysis, report domain.CoverageReport) *domain.GateResult
	ResolveDeployments(ctx context.Context, a *usecases.Analysis, deployments *domain.DeploymentMap) *domain.Resolution
	Plan(ctx context.Context, a *usecases.Analysis, deployments *domain.DeploymentMap) (*usecases.Plan, error)
}

// Dependencies holds all injectable dependencies for the commands.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// LoggerFactory creates a logger stamped with the given run fields.
	LoggerFactory func(fields map[string]interface{}) Logger

	// ConfigLoader loads application configuration for a repository.
	ConfigLoader func(repoPath, settingsFile string) (*AppConfig, error)

	// RepositoryFactory opens the repository at path.
	RepositoryFactory func(path string, log Logger) (Repository, error)

	// EngineFactory builds the engine over an open repository.
	EngineFactory func(repo Repository, cfg *AppConfig, log Logger) (Engine, error)

	// CoverageParserFactory creates the parser for cfg.CoverageReportFormat.
	CoverageParserFactory func(cfg *AppConfig) (domain.CoverageParser, error)

	// DeploymentMapLoader loads a deployment map from a file path or vault: reference.
	DeploymentMapLoader func(ctx context.Context, source string, cfg *AppConfig, log Logger) (*domain.DeploymentMap, error)

	// RecorderFactory creates the run ledger.
	RecorderFactory func(ctx context.Context, cfg *AppConfig, log Logger) (domain.RunRecorder, error)

	// OutputWriterFactory creates an OutputWriter for a format name.
	OutputWriterFactory func(format string, out io.Writer) (domain.OutputWriter, error)

	// RunIDGenerator returns a unique id per invocation.
	RunIDGenerator func() string

	// ReadFile reads coverage reports. Defaults to os.ReadFile.
	ReadFile func(name string) ([]byte, error)

	// Stdout is the writer for results.
	Stdout io.Writer

	// Stderr is the writer for standard error (for warnings/errors).
	Stderr io.Writer
}

// AppConfig holds application configuration loaded by ConfigLoader.
type AppConfig struct {
	SourceExtensions []string
	TestTokens       []string
	MethodLevel      bool

	CoverageExclude      []string
	CoveragePathPrefixes []string
	CoverageReportFormat string

	IncludeDependents bool
	ArtifactsDir      string

	// VaultMount is the KV mount for vault: deployment map sources.
	VaultMount string

	// LedgerConfig is passed to the RecorderFactory; nil disables the ledger.
	LedgerConfig any

	// SettingsFile is the settings file in use, empty when defaults apply.
	SettingsFile string

	// LogLevel is the log level setting.
	LogLevel string

	// LogAppName is the application name for logging.
	LogAppName string
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	repoPath   string
	configFile string
	format     string
	outputFile string
	verbose    bool
}

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for changegate.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "changegate",
		Short: "Change-aware test selection, coverage gating and deployment resolution",
		Long: `changegate inspects the diff between two revisions of a .NET repository and
decides what a CI pipeline has to do about it.

  select-tests    lists the test classes (or whole test projects) exercising the change
  check-coverage  fails when a changed production line is not covered by a test
  resolve-deploy  pairs changed deployable projects with their deployment targets
  plan            runs select-tests and resolve-deploy over a single diff

Exit codes:
  0  success
  1  internal error
  2  revision not found or diff unavailable
  3  unmapped project or deployment type mismatch
  4  coverage violation
  5  malformed deployment map
  6  malformed project manifest
  7  malformed coverage report`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.repoPath, "repo", "r", ".",
		"Path to the repository")
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"Settings file (default .changegate.yaml in the repository root)")
	rootCmd.PersistentFlags().StringVarP(&opts.format, "format", "f", "json",
		"Output format: json, table or filter")
	rootCmd.PersistentFlags().StringVarP(&opts.outputFile, "output", "o", "",
		"Write results to a file instead of stdout")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable verbose/debug logging")

	rootCmd.AddCommand(
		newSelectTestsCmd(opts, deps),
		newCheckCoverageCmd(opts, deps),
		newResolveDeployCmd(opts, deps),
		newPlanCmd(opts, deps),
	)

	return rootCmd
}

// Execute runs the root command and exits with the code of the failure category.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		stderr := io.Writer(os.Stderr)
		if defaultDeps != nil && defaultDeps.Stderr != nil {
			stderr = defaultDeps.Stderr
		}
		writeWarningf(stderr, "error: %v\n", err)
		os.Exit(ExitCode(err))
	}
}

// checkDependencies fails fast on a wiring mistake.
func checkDependencies(deps *Dependencies) error {
	if deps == nil {
		return errors.New("dependencies not configured")
	}
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func stderrOf(deps *Dependencies) io.Writer {
	if deps.Stderr != nil {
		return deps.Stderr
	}
	return os.Stderr
}

func stdoutOf(deps *Dependencies) io.Writer {
	if deps.Stdout != nil {
		return deps.Stdout
	}
	return os.Stdout
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// writeWarningf writes a warning message to the given writer.
// This is a best-effort operation; errors are intentionally ignored
// because there is no recovery action if stderr writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, err := fmt.Fprintf(w, format, args...)
	if err != nil {
		// Intentionally ignored: no recovery action for failed stderr writes
		return
	}
}
