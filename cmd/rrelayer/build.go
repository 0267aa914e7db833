package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/rrelayer/rrelayer/internal/auth"
	"github.com/rrelayer/rrelayer/internal/config"
	"github.com/rrelayer/rrelayer/internal/gas"
	"github.com/rrelayer/rrelayer/internal/orchestrator"
	"github.com/rrelayer/rrelayer/internal/provider"
	"github.com/rrelayer/rrelayer/internal/ratelimit"
	"github.com/rrelayer/rrelayer/internal/signer"
	"github.com/rrelayer/rrelayer/internal/signer/kms"
	"github.com/rrelayer/rrelayer/internal/storage"
	"github.com/rrelayer/rrelayer/internal/webhook"
)

// app holds every long-lived component start assembles, so shutdown can
// unwind them in the right order.
type app struct {
	cfg          config.Config
	store        *storage.Postgres
	orchestrator *orchestrator.Orchestrator
	signer       *signer.Router
	gasCache     *gas.Cache
	webhooks     *webhook.Dispatcher
	rateLimiter  *ratelimit.Limiter
	tokens       *auth.TokenIssuer
	apiKeyCache  *auth.Cache
}

// newSigner constructs the composite Router described by §4.5 from the
// configured signing_key. RawKey is always present so a migrated EOA can
// be imported into a relayer later without restarting with a different
// backend set (§4.5, §9).
func newSigner(ctx context.Context, cfg config.Config) (*signer.Router, error) {
	if len(cfg.Networks) == 0 {
		return nil, fmt.Errorf("cmd/rrelayer: no networks configured")
	}
	representativeChain := cfg.Networks[0].ChainID

	backends := []signer.Backend{signer.NewRawKey()}

	switch cfg.SigningKey.Kind {
	case config.SigningKeyRawMnemonic:
		hd, err := signer.NewHD(cfg.Env.Mnemonic, representativeChain)
		if err != nil {
			return nil, fmt.Errorf("cmd/rrelayer: build HD signer: %w", err)
		}
		backends = append(backends, hd)
	case config.SigningKeyAWSSecretsMgr:
		backend, err := kms.New(ctx, cfg.SigningKey.AWSSecretPrefix)
		if err != nil {
			return nil, fmt.Errorf("cmd/rrelayer: build KMS signer: %w", err)
		}
		backends = append(backends, backend)
	case config.SigningKeyGCPSecretsMgr:
		return nil, fmt.Errorf("cmd/rrelayer: gcp_secret_manager signing key is not yet wired")
	case config.SigningKeyKeystore:
		return nil, fmt.Errorf("cmd/rrelayer: keystore signing key is not yet wired")
	default:
		return nil, fmt.Errorf("cmd/rrelayer: unrecognised signing_key kind %q", cfg.SigningKey.Kind)
	}

	return signer.NewRouter(backends...), nil
}

// buildApp wires every package this module owns into one running process:
// storage first (every other component persists through it), then the
// signers, the webhook dispatcher, the gas cache and the orchestrator,
// then each network's provider and gas estimator, and finally the restore
// of every relayer's queue.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := storage.Open(ctx, cfg.Env.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("cmd/rrelayer: open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("cmd/rrelayer: migrate storage: %w", err)
	}

	signerRouter, err := newSigner(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	webhooks := webhook.NewDispatcher(store)

	gasCache := gas.NewCache()

	a := &app{
		cfg:      cfg,
		store:    store,
		signer:   signerRouter,
		gasCache: gasCache,
		webhooks: webhooks,
	}

	webhookURL := ""
	if len(cfg.Webhooks) > 0 {
		webhookURL = cfg.Webhooks[0].URL
	}

	orch := orchestrator.New(orchestrator.Config{
		Store:        store,
		Allocator:    store,
		Signer:       signerRouter,
		GasCache:     gasCache,
		Webhooks:     webhooks,
		WebhookURL:   webhookURL,
		TickInterval: time.Second,
	})
	a.orchestrator = orch

	for _, n := range cfg.Networks {
		p, err := provider.Dial(ctx, n.ChainID, n.ProviderURLs, signerRouter.SupportsBlobs())
		if err != nil {
			log.Error("cmd/rrelayer: failed to dial network, skipping", "network", n.Name, "chain", n.ChainID, "err", err)
			continue
		}
		orch.RegisterProvider(n.ChainID, p)

		estimator := estimatorFor(cfg, n, p)
		gasCache.Register(n.ChainID, estimator, nil)
	}

	if err := orch.RestoreAll(ctx); err != nil {
		log.Error("cmd/rrelayer: failed to restore one or more queues", "err", err)
	}

	if cfg.Env.AccessJWTSecret != "" && cfg.Env.RefreshJWTSecret != "" {
		a.tokens = auth.NewTokenIssuer(cfg.Env.AccessJWTSecret, cfg.Env.RefreshJWTSecret)
	}
	a.apiKeyCache = auth.NewCache(store, 5*time.Minute)

	if len(cfg.RateLimits) > 0 {
		a.rateLimiter = ratelimit.New(store, rulesFromConfig(cfg.RateLimits), true)
	}

	return a, nil
}

// estimatorFor picks the gas-estimation source for a network: a configured
// HTTP provider by name if one matches, otherwise the native eth_feeHistory
// estimator every provider already supports (§4.3).
func estimatorFor(cfg config.Config, n config.Network, p provider.Provider) gas.Estimator {
	if n.GasProvider != "" {
		for _, gp := range cfg.GasProviders {
			if gp.Name == n.GasProvider {
				return gas.NewHTTPEstimator(gp.URL)
			}
		}
		log.Warn("cmd/rrelayer: gas_provider referenced but not found, falling back to native", "network", n.Name, "gas_provider", n.GasProvider)
	}
	return gas.NewNativeEstimator(p)
}

func rulesFromConfig(rules []config.RateLimitRule) map[ratelimit.Scope]map[ratelimit.Operation]ratelimit.Rule {
	out := make(map[ratelimit.Scope]map[ratelimit.Operation]ratelimit.Rule)
	for _, rule := range rules {
		scope := ratelimit.Scope(rule.Scope)
		if _, ok := out[scope]; !ok {
			out[scope] = make(map[ratelimit.Operation]ratelimit.Rule)
		}
		out[scope][ratelimit.Operation(rule.Operation)] = ratelimit.Rule{Limit: rule.Limit, Interval: rule.Interval}
	}
	return out
}

func (a *app) Close() {
	a.gasCache.Close()
	a.orchestrator.StopAll(30 * time.Second)
	if err := a.store.Close(); err != nil {
		log.Error("cmd/rrelayer: error closing storage", "err", err)
	}
}
