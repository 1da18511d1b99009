// Package config provides configuration loading for the changegate application.
// It handles logging settings and the ClickHouse run ledger from environment
// variables, engine settings from an optional .changegate.yaml file, and the
// HashiCorp Vault client used for deployment maps stored as secrets.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ch "github.com/MyCarrier-DevOps/goLibMyCarrier/clickhouse"
	"github.com/MyCarrier-DevOps/goLibMyCarrier/vault"
	"github.com/spf13/viper"
)

// Environment variable names.
const (
	// EnvLogLevel is the log level (debug, info, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"

	// EnvVaultMount is the Vault KV mount point for deployment maps (defaults to "secret").
	EnvVaultMount = "CHANGEGATE_VAULT_MOUNT"

	// EnvClickHouseHostname enables the run ledger. The remaining CLICKHOUSE_*
	// variables are read by the goLibMyCarrier clickhouse package.
	EnvClickHouseHostname = "CLICKHOUSE_HOSTNAME"
)

// Default values.
const (
	DefaultLogLevel   = "info"
	DefaultLogAppName = "changegate"
	DefaultVaultMount = "secret"

	// SettingsFileName is looked up in the repository root when no --config is given.
	SettingsFileName = ".changegate"

	// EnvPrefix prefixes environment overrides of settings, e.g. CHANGEGATE_SELECTION_METHOD_LEVEL.
	EnvPrefix = "CHANGEGATE"
)

// Configuration errors.
var (
	// ErrSettingsInvalid indicates the settings file could not be read or decoded.
	ErrSettingsInvalid = errors.New("invalid changegate settings")

	// ErrVaultClientFailed indicates failure to create or authenticate with Vault.
	ErrVaultClientFailed = errors.New("failed to create Vault client")

	// ErrClickHouseConfigInvalid indicates the ClickHouse environment is incomplete or invalid.
	ErrClickHouseConfigInvalid = errors.New("invalid ClickHouse configuration")
)

// VaultClient defines the interface for Vault operations.
// This interface allows for dependency injection and testing.
type VaultClient interface {
	// GetKVSecret retrieves a secret from Vault's KV v2 secrets engine.
	GetKVSecret(ctx context.Context, path, mount string) (map[string]interface{}, error)
}

// VaultClientFactory creates a VaultClient using AppRole authentication.
// This is the default factory used in production.
type VaultClientFactory func(ctx context.Context) (VaultClient, error)

// DefaultVaultClientFactory creates a VaultClient using goLibMyCarrier/vault with AppRole auth.
func DefaultVaultClientFactory(ctx context.Context) (VaultClient, error) {
	// Uses: VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID
	vaultConfig, err := vault.VaultLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	client, err := vault.CreateVaultClient(ctx, vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	return client, nil
}

// Settings are the engine options read from the settings file.
type Settings struct {
	Source         SourceSettings         `mapstructure:"source"`
	Classification ClassificationSettings `mapstructure:"classification"`
	Selection      SelectionSettings      `mapstructure:"selection"`
	Coverage       CoverageSettings       `mapstructure:"coverage"`
	Deploy         DeploySettings         `mapstructure:"deploy"`
}

// SourceSettings control which files carry a production or test role.
type SourceSettings struct {
	Extensions []string `mapstructure:"extensions"`
}

// ClassificationSettings control the naming-convention test classifier.
type ClassificationSettings struct {
	TestTokens []string `mapstructure:"test_tokens"`
}

// SelectionSettings control test selection.
type SelectionSettings struct {
	// MethodLevel narrows selections to test methods when only methods changed.
	MethodLevel bool `mapstructure:"method_level"`
}

// CoverageSettings control the coverage gate.
type CoverageSettings struct {
	// Exclude lists glob patterns exempt from the gate.
	Exclude []string `mapstructure:"exclude"`

	// PathPrefixes are stripped from report paths before matching.
	PathPrefixes []string `mapstructure:"path_prefixes"`

	// ReportFormat is auto, cobertura or lcov.
	ReportFormat string `mapstructure:"report_format"`
}

// DeploySettings control deployment resolution.
type DeploySettings struct {
	IncludeDependents bool   `mapstructure:"include_dependents"`
	ArtifactsDir      string `mapstructure:"artifacts_dir"`
}


// Config holds all application configuration.
type Config struct {
	Settings Settings

	// SettingsFile is the file the settings were read from, empty when defaults apply.
	SettingsFile string

	// ClickHouse is nil when the run ledger is disabled.
	ClickHouse *ch.ClickhouseConfig

	// VaultMount is the KV mount for vault: deployment map sources.
	VaultMount string

	// LogLevel is the logging level (debug, info, error).
	LogLevel string

	// LogAppName is the application name for log context.
	LogAppName string
}

// Load loads configuration for a repository. settingsFile may be empty, in which case
// .changegate.yaml (or .yml, .json) in repoRoot is used when present.
//
// Settings may be overridden from the environment with the CHANGEGATE_ prefix and
// dots replaced by underscores, e.g. CHANGEGATE_COVERAGE_REPORT_FORMAT=lcov.
func Load(repoRoot, settingsFile string) (*Config, error) {
	settings, used, err := loadSettings(repoRoot, settingsFile)
	if err != nil {
		return nil, err
	}

	chConfig, err := loadClickHouseConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Settings:     *settings,
		SettingsFile: used,
		ClickHouse:   chConfig,
		VaultMount:   getenvDefault(EnvVaultMount, DefaultVaultMount),
		LogLevel:     getenvDefault(EnvLogLevel, DefaultLogLevel),
		LogAppName:   getenvDefault(EnvLogAppName, DefaultLogAppName),
	}, nil
}

// DefaultSettings returns the settings used when no file or override is present.
func DefaultSettings() Settings {
	return Settings{
		Source:         SourceSettings{Extensions: []string{".cs"}},
		Classification: ClassificationSettings{TestTokens: []string{"test", "tests"}},
		Coverage:       CoverageSettings{ReportFormat: "auto"},
	}
}

func loadSettings(repoRoot, settingsFile string) (*Settings, string, error) {
	v := viper.New()
	defaults := DefaultSettings()
	v.SetDefault("source.extensions", defaults.Source.Extensions)
	v.SetDefault("classification.test_tokens", defaults.Classification.TestTokens)
	v.SetDefault("selection.method_level", defaults.Selection.MethodLevel)
	v.SetDefault("coverage.exclude", []string{})
	v.SetDefault("coverage.path_prefixes", []string{})
	v.SetDefault("coverage.report_format", defaults.Coverage.ReportFormat)
	v.SetDefault("deploy.include_dependents", defaults.Deploy.IncludeDependents)
	v.SetDefault("deploy.artifacts_dir", defaults.Deploy.ArtifactsDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
	} else {
		if repoRoot == "" {
			repoRoot = "."
		}
		v.SetConfigName(SettingsFileName)
		v.AddConfigPath(repoRoot)
	}

	used := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if settingsFile != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("%w: %w", ErrSettingsInvalid, err)
		}
	} else {
		used = v.ConfigFileUsed()
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrSettingsInvalid, err)
	}

	s.Source.Extensions = normalizeExtensions(s.Source.Extensions)
	if s.Deploy.ArtifactsDir != "" {
		s.Deploy.ArtifactsDir = filepath.Clean(s.Deploy.ArtifactsDir)
	}
	return &s, used, nil
}

// normalizeExtensions lowercases and dot-prefixes extensions; env overrides arrive as
// a single space or comma separated string.
func normalizeExtensions(exts []string) []string {
	var out []string
	for _, e := range exts {
		for _, part := range strings.FieldsFunc(e, func(r rune) bool { return r == ',' || r == ' ' }) {
			part = strings.ToLower(part)
			if !strings.HasPrefix(part, ".") {
				part = "." + part
			}
			out = append(out, part)
		}
	}
	return out
}

func loadClickHouseConfig() (*ch.ClickhouseConfig, error) {
	if os.Getenv(EnvClickHouseHostname) == "" {
		return nil, nil
	}

	chConfig, err := ch.ClickhouseLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClickHouseConfigInvalid, err)
	}
	return chConfig, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
