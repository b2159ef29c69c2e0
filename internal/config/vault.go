package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"resumetailor/internal/errors"

	"github.com/hashicorp/vault/api"
)

// Field names read from the KV v2 secrets.
const (
	vaultAPIKeysField = "keys"
	vaultAIKeyField   = "api_key"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Address   string        `mapstructure:"address"`
	Token     string        `mapstructure:"token"`
	TokenFile string        `mapstructure:"tokenFile"`
	Namespace string        `mapstructure:"namespace"`
	Mount     string        `mapstructure:"mount"`
	Timeout   time.Duration `mapstructure:"timeout"`

	Secrets VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets names KV v2 secrets relative to Mount. Empty paths are skipped.
type VaultSecrets struct {
	// APIKeys holds a comma-separated "keys" field, e.g. "key1,key2".
	APIKeys string `mapstructure:"apiKeys"`
	// AIKey holds the model provider key in its "api_key" field.
	AIKey string `mapstructure:"aiKey"`
}

// secretReader reads one string field of a secret.
type secretReader interface {
	ReadString(ctx context.Context, path, field string) (string, error)
}

// vaultKV reads fields from a KV v2 secrets engine
type vaultKV struct {
	kv *api.KVv2
}

func newVaultKV(cfg VaultConfig, logger *errors.Logger) (*vaultKV, error) {
	apiCfg := api.DefaultConfig()
	if apiCfg.Error != nil {
		return nil, fmt.Errorf("invalid vault environment: %w", apiCfg.Error)
	}
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		apiCfg.Timeout = cfg.Timeout
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	token, err := vaultToken(cfg, client.Token())
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	logger.Debug("Vault client ready", "address", apiCfg.Address, "namespace", cfg.Namespace, "mount", mount)
	return &vaultKV{kv: client.KVv2(mount)}, nil
}

// vaultToken prefers the configured token, then the token file, then VAULT_TOKEN
// as already picked up by the client.
func vaultToken(cfg VaultConfig, fromEnv string) (string, error) {
	if token := strings.TrimSpace(cfg.Token); token != "" {
		return token, nil
	}
	if cfg.TokenFile != "" {
		data, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token file: %w", err)
		}
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("vault token file %s is empty", cfg.TokenFile)
	}
	if fromEnv != "" {
		return fromEnv, nil
	}
	return "", fmt.Errorf("vault token is required when vault is enabled")
}

func (v *vaultKV) ReadString(ctx context.Context, path, field string) (string, error) {
	secret, err := v.kv.Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	return stringField(secret.Data, path, field)
}

func stringField(data map[string]any, path, field string) (string, error) {
	raw, ok := data[field]
	if !ok {
		return "", fmt.Errorf("field %q not found in secret %s", field, path)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field %q in secret %s is %T, not a string", field, path, raw)
	}
	return value, nil
}

// ApplyVaultSecrets overlays the server API keys and the model key stored in
// Vault onto cfg. It does nothing when Vault is disabled.
func ApplyVaultSecrets(ctx context.Context, cfg *Config, logger *errors.Logger) error {
	if !cfg.Vault.Enabled {
		return nil
	}
	if logger == nil {
		logger = errors.Discard()
	}

	kv, err := newVaultKV(cfg.Vault, logger)
	if err != nil {
		return err
	}
	return applySecrets(ctx, cfg, kv, logger)
}

func applySecrets(ctx context.Context, cfg *Config, secrets secretReader, logger *errors.Logger) error {
	paths := cfg.Vault.Secrets

	if paths.APIKeys != "" {
		value, err := secrets.ReadString(ctx, paths.APIKeys, vaultAPIKeysField)
		if err != nil {
			return fmt.Errorf("failed to load API keys from vault: %w", err)
		}
		if keys := splitAndTrim(value); len(keys) > 0 {
			cfg.Server.APIKeys = keys
			logger.Info("API keys loaded from Vault", "count", len(keys))
		} else {
			logger.Warn("No API keys found in Vault", "path", paths.APIKeys)
		}
	}

	if paths.AIKey != "" {
		value, err := secrets.ReadString(ctx, paths.AIKey, vaultAIKeyField)
		if err != nil {
			return fmt.Errorf("failed to load AI API key from vault: %w", err)
		}
		if key := strings.TrimSpace(value); key != "" {
			applyAIKeyToConfig(cfg, key)
			logger.Info("AI API key loaded from Vault")
		} else {
			logger.Warn("Empty AI API key found in Vault", "path", paths.AIKey)
		}
	}

	return nil
}

// applyAIKeyToConfig sets the global key and every operation key that was not configured explicitly
func applyAIKeyToConfig(cfg *Config, key string) {
	cfg.AI.APIKey = key
	for _, op := range []*OperationAIConfig{&cfg.AI.Extract, &cfg.AI.Tailor, &cfg.AI.Explain, &cfg.AI.Edit} {
		if op.APIKey == "" {
			op.APIKey = key
		}
	}
}
