package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"resumetailor/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *errors.Logger {
	logger, _ := errors.NewWithWriter("debug", os.Stderr)
	return logger
}

type mapSecrets map[string]map[string]any

func (m mapSecrets) ReadString(ctx context.Context, path, field string) (string, error) {
	data, ok := m[path]
	if !ok {
		return "", fmt.Errorf("secret not found at path: %s", path)
	}
	return stringField(data, path, field)
}

func TestApplyAIKeyToConfig(t *testing.T) {
	cfg := &Config{
		AI: AIConfig{
			Edit: OperationAIConfig{APIKey: "edit-only-key"},
		},
	}

	applyAIKeyToConfig(cfg, "vault-key")

	assert.Equal(t, "vault-key", cfg.AI.APIKey)
	assert.Equal(t, "vault-key", cfg.AI.Extract.APIKey)
	assert.Equal(t, "vault-key", cfg.AI.Tailor.APIKey)
	assert.Equal(t, "vault-key", cfg.AI.Explain.APIKey)
	assert.Equal(t, "edit-only-key", cfg.AI.Edit.APIKey, "explicit operation key must survive")
}

func TestVaultToken(t *testing.T) {
	t.Run("token from config", func(t *testing.T) {
		token, err := vaultToken(VaultConfig{Token: "direct-token"}, "env-token")
		require.NoError(t, err)
		assert.Equal(t, "direct-token", token)
	})

	t.Run("token from file is trimmed", func(t *testing.T) {
		tokenFile := filepath.Join(t.TempDir(), "vault-token")
		require.NoError(t, os.WriteFile(tokenFile, []byte("  file-token  \n"), 0600))

		token, err := vaultToken(VaultConfig{TokenFile: tokenFile}, "env-token")
		require.NoError(t, err)
		assert.Equal(t, "file-token", token)
	})

	t.Run("empty token file", func(t *testing.T) {
		tokenFile := filepath.Join(t.TempDir(), "vault-token")
		require.NoError(t, os.WriteFile(tokenFile, []byte("\n"), 0600))

		_, err := vaultToken(VaultConfig{TokenFile: tokenFile}, "")
		assert.ErrorContains(t, err, "is empty")
	})

	t.Run("missing token file", func(t *testing.T) {
		_, err := vaultToken(VaultConfig{TokenFile: "/nonexistent/token/file"}, "")
		assert.ErrorContains(t, err, "failed to read vault token file")
	})

	t.Run("environment token", func(t *testing.T) {
		token, err := vaultToken(VaultConfig{}, "env-token")
		require.NoError(t, err)
		assert.Equal(t, "env-token", token)
	})

	t.Run("no token provided", func(t *testing.T) {
		_, err := vaultToken(VaultConfig{}, "")
		assert.ErrorContains(t, err, "vault token is required")
	})
}

func TestApplyVaultSecretsDisabled(t *testing.T) {
	cfg := &Config{AI: AIConfig{APIKey: "from-env"}}

	require.NoError(t, ApplyVaultSecrets(context.Background(), cfg, newTestLogger()))
	assert.Equal(t, "from-env", cfg.AI.APIKey)
}

func TestApplySecrets(t *testing.T) {
	secrets := mapSecrets{
		"resumetailor/server": {"keys": " key1, key2 ,,"},
		"resumetailor/ai":     {"api_key": "sk-vault"},
		"resumetailor/empty":  {"keys": "", "api_key": "  "},
		"resumetailor/bad":    {"keys": 42},
	}

	t.Run("both secrets", func(t *testing.T) {
		cfg := &Config{Vault: VaultConfig{Secrets: VaultSecrets{APIKeys: "resumetailor/server", AIKey: "resumetailor/ai"}}}
		cfg.Server.APIKeys = []string{"from-config"}

		require.NoError(t, applySecrets(context.Background(), cfg, secrets, newTestLogger()))
		assert.Equal(t, []string{"key1", "key2"}, cfg.Server.APIKeys)
		assert.Equal(t, "sk-vault", cfg.AI.APIKey)
		assert.Equal(t, "sk-vault", cfg.AI.Tailor.APIKey)
	})

	t.Run("empty values keep config", func(t *testing.T) {
		cfg := &Config{Vault: VaultConfig{Secrets: VaultSecrets{APIKeys: "resumetailor/empty", AIKey: "resumetailor/empty"}}}
		cfg.Server.APIKeys = []string{"from-config"}
		cfg.AI.APIKey = "from-env"

		require.NoError(t, applySecrets(context.Background(), cfg, secrets, newTestLogger()))
		assert.Equal(t, []string{"from-config"}, cfg.Server.APIKeys)
		assert.Equal(t, "from-env", cfg.AI.APIKey)
	})

	t.Run("missing secret", func(t *testing.T) {
		cfg := &Config{Vault: VaultConfig{Secrets: VaultSecrets{AIKey: "resumetailor/missing"}}}
		err := applySecrets(context.Background(), cfg, secrets, newTestLogger())
		assert.ErrorContains(t, err, "failed to load AI API key from vault")
	})

	t.Run("wrong field type", func(t *testing.T) {
		cfg := &Config{Vault: VaultConfig{Secrets: VaultSecrets{APIKeys: "resumetailor/bad"}}}
		err := applySecrets(context.Background(), cfg, secrets, newTestLogger())
		assert.ErrorContains(t, err, "not a string")
	})
}

func TestApplyVaultSecretsFromKVv2(t *testing.T) {
	var paths []string
	vault := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var data map[string]any
		switch r.URL.Path {
		case "/v1/kv/data/resumetailor/server":
			data = map[string]any{"keys": "alpha,beta"}
		case "/v1/kv/data/resumetailor/ai":
			data = map[string]any{"api_key": "sk-from-vault"}
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data":     data,
				"metadata": map[string]any{"created_time": "2026-01-01T00:00:00Z", "version": 1},
			},
		})
	}))
	defer vault.Close()

	cfg := &Config{Vault: VaultConfig{
		Enabled: true,
		Address: vault.URL,
		Token:   "test-token",
		Mount:   "kv",
		Secrets: VaultSecrets{APIKeys: "resumetailor/server", AIKey: "resumetailor/ai"},
	}}

	require.NoError(t, ApplyVaultSecrets(context.Background(), cfg, nil))
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Server.APIKeys)
	assert.Equal(t, "sk-from-vault", cfg.AI.APIKey)
	assert.Contains(t, paths, "/v1/kv/data/resumetailor/ai")
}
