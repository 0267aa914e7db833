// Package config loads the YAML project configuration of §6, the same
// flag/file split cmd/geth and cmd/utils show: file values set the
// baseline and environment variables fill in secrets the file must never
// carry. The only CLI flag (handled by cmd/rrelayer) selects the file's
// path; no flag overrides a file or environment value.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rrelayer/rrelayer/internal/chain"
)

// SigningKeyKind is §6's `signing_key` discriminant.
type SigningKeyKind string

const (
	SigningKeyRawMnemonic    SigningKeyKind = "raw.mnemonic"
	SigningKeyAWSSecretsMgr  SigningKeyKind = "aws_secret_manager"
	SigningKeyGCPSecretsMgr  SigningKeyKind = "gcp_secret_manager"
	SigningKeyKeystore       SigningKeyKind = "keystore"
)

// SigningKey is §6's `signing_key` option; the fields beside Kind that
// apply to the chosen Kind are the ones read. Validate only checks that a
// raw.mnemonic key has MNEMONIC set; it does not check these fields.
type SigningKey struct {
	Kind              SigningKeyKind `yaml:"kind"`
	AWSSecretPrefix   string         `yaml:"aws_secret_prefix,omitempty"`
	GCPSecretPrefix   string         `yaml:"gcp_secret_prefix,omitempty"`
	KeystorePath      string         `yaml:"keystore_path,omitempty"`
	KeystorePassword  string         `yaml:"keystore_password,omitempty"`
}

// Network is one entry of §6's `networks` list.
type Network struct {
	Name                  string   `yaml:"name"`
	ChainID               chain.ID `yaml:"chain_id"`
	ProviderURLs          []string `yaml:"provider_urls"`
	BlockExplorerURL      string   `yaml:"block_explorer_url,omitempty"`
	GasProvider           string   `yaml:"gas_provider,omitempty"`
	GasBumpBlocksEvery    uint64   `yaml:"gas_bump_blocks_every,omitempty"`
	MaxGasPriceMultiplier float64  `yaml:"max_gas_price_multiplier,omitempty"`
	SigningKey            *SigningKey `yaml:"signing_key,omitempty"`
	ConfirmationDepth     uint64   `yaml:"confirmation_depth,omitempty"`
}

// GasProvider is one entry of §6's optional `gas_providers` map: an
// external HTTP gas-estimation API keyed by the name networks reference.
type GasProvider struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// RateLimitRule mirrors internal/ratelimit.Rule in config-file form.
type RateLimitRule struct {
	Scope     string        `yaml:"scope"`
	Operation string        `yaml:"operation"`
	Limit     int           `yaml:"limit"`
	Interval  time.Duration `yaml:"interval"`
}

// WebhookConfig is §6's optional `webhooks` option.
type WebhookConfig struct {
	URL           string `yaml:"url"`
	SigningSecret string `yaml:"signing_secret,omitempty"`
}

// APIConfig is §6's `api_config.{host,port}`.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Config is the full parsed YAML document, §6's "Recognised top-level
// options" list.
type Config struct {
	Name            string          `yaml:"name"`
	Description     string          `yaml:"description,omitempty"`
	SigningKey      SigningKey      `yaml:"signing_key"`
	Networks        []Network       `yaml:"networks"`
	GasProviders    []GasProvider   `yaml:"gas_providers,omitempty"`
	APIConfig       APIConfig       `yaml:"api_config"`
	RateLimits      []RateLimitRule `yaml:"rate_limits,omitempty"`
	Webhooks        []WebhookConfig `yaml:"webhooks,omitempty"`
	SafeProxy       string          `yaml:"safe_proxy,omitempty"`
	AllowedOrigins  []string        `yaml:"allowed_origins,omitempty"`

	// Env holds the environment-variable-sourced secrets of §6, never
	// written to or read from the YAML file.
	Env Env `yaml:"-"`
}

// Env is §6's "Environment variables" section: values that must never
// live in the checked-in YAML file.
type Env struct {
	DatabaseURL       string
	AuthUsername      string
	AuthPassword      string
	Mnemonic          string
	NetworkAPIKeys    map[string]string
	AccessJWTSecret   string
	RefreshJWTSecret  string
}

// Load reads and parses the YAML file at path and resolves the
// environment-variable overlay. A missing required environment variable
// is a Fatal-category error per §7: the process should exit non-zero
// rather than start against a half-configured signing key or database.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Env, err = loadEnv()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnv() (Env, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return Env{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	return Env{
		DatabaseURL:      dbURL,
		AuthUsername:     os.Getenv("RRELAYER_AUTH_USERNAME"),
		AuthPassword:     os.Getenv("RRELAYER_AUTH_PASSWORD"),
		Mnemonic:         os.Getenv("MNEMONIC"),
		NetworkAPIKeys:   networkAPIKeysFromEnv(),
		AccessJWTSecret:  os.Getenv("ACCESS_JWT_SECRET_KEY"),
		RefreshJWTSecret: os.Getenv("REFRESH_JWT_SECRET_KEY"),
	}, nil
}

// networkAPIKeysFromEnv collects every RRELAYER_NETWORK_API_KEY_<NAME>
// variable into a name-keyed map, the env-var analogue of the YAML
// config's per-network API key references (§6).
func networkAPIKeysFromEnv() map[string]string {
	const prefix = "RRELAYER_NETWORK_API_KEY_"
	keys := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				k, v := kv[:i], kv[i+1:]
				if len(k) > len(prefix) && k[:len(prefix)] == prefix {
					keys[k[len(prefix):]] = v
				}
				break
			}
		}
	}
	return keys
}

// Validate checks the fatal-category invariants of §7: a relayer server
// with no networks, no signing key material, or a chain-id collision
// should never finish starting up.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name is required")
	}
	if len(c.Networks) == 0 {
		return fmt.Errorf("config: at least one network is required")
	}
	seen := make(map[chain.ID]bool, len(c.Networks))
	for _, n := range c.Networks {
		if len(n.ProviderURLs) == 0 {
			return fmt.Errorf("config: network %q has no provider_urls", n.Name)
		}
		if seen[n.ChainID] {
			return fmt.Errorf("config: duplicate chain_id %d across networks", n.ChainID)
		}
		seen[n.ChainID] = true
	}
	if c.SigningKey.Kind == SigningKeyRawMnemonic && c.Env.Mnemonic == "" {
		return fmt.Errorf("config: signing_key is raw.mnemonic but MNEMONIC is not set")
	}
	return nil
}
