package deploymap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// VaultPrefix marks a map source stored in Vault: vault:<path>[#key].
const VaultPrefix = "vault:"

// DefaultSecretKey is the secret field holding the map document when the source
// names no key.
const DefaultSecretKey = "config"

// DefaultMount is the KV v2 mount used when none is configured.
const DefaultMount = "secret"

// ErrSecretNotFound indicates the Vault secret holding the map could not be read.
var ErrSecretNotFound = errors.New("deployment map not found in Vault")

// SecretReader reads a secret from Vault's KV v2 engine.
type SecretReader interface {
	GetKVSecret(ctx context.Context, path, mount string) (map[string]interface{}, error)
}

// SecretReaderFactory creates a SecretReader on first use, so runs that read the map
// from a file never authenticate.
type SecretReaderFactory func(ctx context.Context) (SecretReader, error)

// Logger defines the logging interface for the loader.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
}

// Loader reads the deployment map from a file or from Vault.
type Loader struct {
	vault    SecretReaderFactory
	mount    string
	readFile func(name string) ([]byte, error)
	logger   Logger
}

// NewLoader creates a Loader. vault may be nil when Vault sources are not supported.
func NewLoader(vault SecretReaderFactory, mount string, log Logger) *Loader {
	if mount == "" {
		mount = DefaultMount
	}
	return &Loader{
		vault:    vault,
		mount:    mount,
		readFile: os.ReadFile,
		logger:   log,
	}
}

// Load reads and validates the map named by source.
func (l *Loader) Load(ctx context.Context, source string) (*domain.DeploymentMap, error) {
	var (
		m   *domain.DeploymentMap
		err error
	)
	if strings.HasPrefix(source, VaultPrefix) {
		m, err = l.loadFromVault(ctx, strings.TrimPrefix(source, VaultPrefix))
	} else {
		m, err = l.loadFromFile(source)
	}
	if err != nil {
		return nil, err
	}

	l.logger.Info(ctx, "loaded deployment map", map[string]interface{}{
		"source":  source,
		"entries": m.Len(),
	})
	return m, nil
}

func (l *Loader) loadFromFile(name string) (*domain.DeploymentMap, error) {
	data, err := l.readFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: file %s not found", domain.ErrMalformedMap, name)
		}
		return nil, fmt.Errorf("failed to read deployment map: %w", err)
	}
	return Parse(data)
}

func (l *Loader) loadFromVault(ctx context.Context, ref string) (*domain.DeploymentMap, error) {
	if l.vault == nil {
		return nil, fmt.Errorf("vault source %q requires a Vault client", ref)
	}
	secretPath, key := ParseVaultRef(ref)
	if secretPath == "" {
		return nil, fmt.Errorf("%w: empty Vault path", domain.ErrMalformedMap)
	}

	client, err := l.vault(ctx)
	if err != nil {
		return nil, err
	}
	data, err := client.GetKVSecret(ctx, secretPath, l.mount)
	if err != nil {
		return nil, fmt.Errorf("%w at path %s: %w", ErrSecretNotFound, secretPath, err)
	}
	return parseSecret(data, key)
}

// ParseVaultRef splits path#key; the key defaults to DefaultSecretKey.
func ParseVaultRef(ref string) (string, string) {
	secretPath, key, found := strings.Cut(ref, "#")
	if !found || key == "" {
		key = DefaultSecretKey
	}
	return strings.Trim(secretPath, "/"), key
}

// parseSecret accepts the document as a string under key, or the secret itself
// holding a deployments field.
func parseSecret(data map[string]interface{}, key string) (*domain.DeploymentMap, error) {
	if doc, ok := data[key].(string); ok {
		return Parse([]byte(doc))
	}
	if _, ok := data["deployments"]; !ok {
		return nil, fmt.Errorf("%w: secret has neither %q nor deployments", domain.ErrMalformedMap, key)
	}

	doc, err := yaml.Marshal(map[string]interface{}{"deployments": data["deployments"]})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedMap, err)
	}
	return Parse(doc)
}
