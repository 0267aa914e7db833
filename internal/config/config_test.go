package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validYAML = `
name: test-relayer
signing_key:
  kind: raw.mnemonic
networks:
  - name: sepolia
    chain_id: 11155111
    provider_urls:
      - https://rpc.example/sepolia
api_config:
  host: 0.0.0.0
  port: 8080
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rrelayer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MNEMONIC", "test test test test test test test test test test test junk")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadSucceedsWithRequiredEnv(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	t.Setenv("DATABASE_URL", "postgres://localhost/rrelayer")
	t.Setenv("MNEMONIC", "test test test test test test test test test test test junk")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "test-relayer", cfg.Name)
	require.Len(t, cfg.Networks, 1)
	require.Equal(t, "postgres://localhost/rrelayer", cfg.Env.DatabaseURL)
}

func TestLoadFailsWhenMnemonicMissingForRawSigningKey(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	t.Setenv("DATABASE_URL", "postgres://localhost/rrelayer")
	t.Setenv("MNEMONIC", "")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "MNEMONIC")
}

func TestValidateRejectsDuplicateChainID(t *testing.T) {
	cfg := Config{
		Name: "x",
		Networks: []Network{
			{Name: "a", ChainID: 1, ProviderURLs: []string{"u"}},
			{Name: "b", ChainID: 1, ProviderURLs: []string{"u2"}},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate chain_id")
}

func TestValidateRejectsNetworkWithNoProviderURLs(t *testing.T) {
	cfg := Config{
		Name:     "x",
		Networks: []Network{{Name: "a", ChainID: 1}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "provider_urls")
}

func TestValidateRejectsNoNetworks(t *testing.T) {
	cfg := Config{Name: "x"}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestNetworkAPIKeysFromEnv(t *testing.T) {
	t.Setenv("RRELAYER_NETWORK_API_KEY_SEPOLIA", "abc123")
	keys := networkAPIKeysFromEnv()
	require.Equal(t, "abc123", keys["SEPOLIA"])
}
