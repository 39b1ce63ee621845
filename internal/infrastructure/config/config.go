// Package config provides configuration loading for the greenbase application.
// It handles application settings from environment variables, Evergreen API
// credentials from the user's credentials file or HashiCorp Vault, and the
// saved-criteria file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/vault"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	// EnvAPIServer overrides the Evergreen API server base URL.
	EnvAPIServer = "EVG_API_SERVER"

	// EnvLogLevel is the log level (debug, info, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"

	// EnvVaultCredsPath is the path in Vault KV where Evergreen credentials
	// are stored. When set, Vault is preferred over the credentials file.
	EnvVaultCredsPath = "VAULT_EVERGREEN_CREDS_PATH"

	// EnvVaultCredsMount is the Vault KV mount point (defaults to "secret").
	EnvVaultCredsMount = "VAULT_EVERGREEN_CREDS_MOUNT"
)

// Default values.
const (
	DefaultAPIServer       = "https://evergreen.mongodb.com/api"
	DefaultProject         = "mongodb-mongo-master"
	DefaultLogLevel        = "info"
	DefaultLogAppName      = "greenbase"
	DefaultVaultCredsMount = "secret"

	// DefaultCredentialsFile is the conventional Evergreen credentials file,
	// relative to the user's home directory.
	DefaultCredentialsFile = ".evergreen.yml"
)

// Configuration errors.
var (
	// ErrCredentialsRequired indicates no credential source is available.
	ErrCredentialsRequired = errors.New(
		"evergreen credentials required: set VAULT_EVERGREEN_CREDS_PATH (with VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID) " +
			"or provide a credentials file",
	)

	// ErrCredentialsNotFound indicates the credentials file does not exist.
	ErrCredentialsNotFound = errors.New("evergreen credentials file not found")

	// ErrCredentialsInvalid indicates the credentials are malformed or incomplete.
	ErrCredentialsInvalid = errors.New("evergreen credentials are invalid")

	// ErrVaultClientFailed indicates failure to create or authenticate with Vault.
	ErrVaultClientFailed = errors.New("failed to create Vault client")

	// ErrVaultSecretNotFound indicates the secret was not found in Vault.
	ErrVaultSecretNotFound = errors.New("evergreen credentials not found in Vault")
)

// VaultClient defines the interface for Vault operations.
// This interface allows for dependency injection and testing.
type VaultClient interface {
	// GetKVSecret retrieves a secret from Vault's KV v2 secrets engine.
	GetKVSecret(ctx context.Context, path, mount string) (map[string]interface{}, error)
}

// VaultClientFactory creates a VaultClient using AppRole authentication.
type VaultClientFactory func(ctx context.Context) (VaultClient, error)

// DefaultVaultClientFactory creates a VaultClient using goLibMyCarrier/vault with AppRole auth.
// Uses: VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID.
func DefaultVaultClientFactory(ctx context.Context) (VaultClient, error) {
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

// Config holds application settings loaded from the environment.
type Config struct {
	// APIServer is the Evergreen API server base URL.
	APIServer string

	// LogLevel is the logging level (debug, info, error).
	LogLevel string

	// LogAppName is the application name for log context.
	LogAppName string
}

// Load reads application settings from environment variables, applying
// defaults for anything unset.
func Load() (*Config, error) {
	apiServer := os.Getenv(EnvAPIServer)
	if apiServer == "" {
		apiServer = DefaultAPIServer
	}

	logLevel := os.Getenv(EnvLogLevel)
	if logLevel == "" {
		logLevel = DefaultLogLevel
	}

	logAppName := os.Getenv(EnvLogAppName)
	if logAppName == "" {
		logAppName = DefaultLogAppName
	}

	return &Config{
		APIServer:  apiServer,
		LogLevel:   logLevel,
		LogAppName: logAppName,
	}, nil
}

// Credentials authenticate against the Evergreen API.
type Credentials struct {
	// User is the Evergreen username.
	User string `yaml:"user"`

	// APIKey is the Evergreen API key.
	APIKey string `yaml:"api_key"`

	// APIServerHost, when set in the credentials file, overrides the API
	// server base URL.
	APIServerHost string `yaml:"api_server_host,omitempty"`
}

// validate checks the credentials carry both required fields.
func (c *Credentials) validate() error {
	if c.User == "" || c.APIKey == "" {
		return fmt.Errorf("%w: user and api_key are both required", ErrCredentialsInvalid)
	}
	return nil
}

// LoadCredentials loads Evergreen API credentials from Vault (preferred,
// when VAULT_EVERGREEN_CREDS_PATH is set) or the given credentials file.
// If vaultClientFactory is nil, DefaultVaultClientFactory is used.
func LoadCredentials(
	ctx context.Context,
	path string,
	vaultClientFactory VaultClientFactory,
) (*Credentials, error) {
	vaultPath := os.Getenv(EnvVaultCredsPath)
	if vaultPath != "" {
		return loadCredentialsFromVault(ctx, vaultClientFactory, vaultPath)
	}

	if path == "" {
		return nil, ErrCredentialsRequired
	}
	return loadCredentialsFromFile(path)
}

// loadCredentialsFromVault reads the user/api_key pair from Vault KV v2.
func loadCredentialsFromVault(
	ctx context.Context,
	vaultClientFactory VaultClientFactory,
	path string,
) (*Credentials, error) {
	if vaultClientFactory == nil {
		vaultClientFactory = DefaultVaultClientFactory
	}

	client, err := vaultClientFactory(ctx)
	if err != nil {
		return nil, err
	}

	mount := os.Getenv(EnvVaultCredsMount)
	if mount == "" {
		mount = DefaultVaultCredsMount
	}

	secretData, err := client.GetKVSecret(ctx, path, mount)
	if err != nil {
		return nil, fmt.Errorf("%w at path %s: %w", ErrVaultSecretNotFound, path, err)
	}

	creds := &Credentials{}
	if user, ok := secretData["user"].(string); ok {
		creds.User = user
	}
	if apiKey, ok := secretData["api_key"].(string); ok {
		creds.APIKey = apiKey
	}
	if err := creds.validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// loadCredentialsFromFile reads the conventional Evergreen YAML credentials file.
func loadCredentialsFromFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, path)
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	creds := &Credentials{}
	if err := yaml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialsInvalid, err)
	}
	if err := creds.validate(); err != nil {
		return nil, err
	}
	return creds, nil
}
