package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/rrelayer/rrelayer/internal/api"
	"github.com/rrelayer/rrelayer/internal/auth"
	"github.com/rrelayer/rrelayer/internal/background"
	"github.com/rrelayer/rrelayer/internal/config"
)

var startCommand = &cli.Command{
	Name:  "start",
	Usage: "start the relayer server: HTTP API, queue orchestrator and background workers",
	Action: func(ctx *cli.Context) error {
		cfg, err := config.Load(ctx.String(configFlag.Name))
		if err != nil {
			return err
		}
		return run(ctx.Context, cfg)
	},
}

func run(ctx context.Context, cfg config.Config) error {
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	supervisor := background.New(background.Config{
		Webhooks: a.webhooks,
		Store:    a.store,
	})
	supervisor.Start()
	defer supervisor.Stop(30 * time.Second)

	handler := api.Router(api.Config{
		Orchestrator:   a.orchestrator,
		Store:          a.store,
		Signer:         a.signer,
		GasCache:       a.gasCache,
		RateLimiter:    a.rateLimiter,
		Tokens:         a.tokens,
		Credentials:    auth.Credentials{Username: cfg.Env.AuthUsername, Password: cfg.Env.AuthPassword},
		APIKeyCache:    a.apiKeyCache,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	addr := cfg.APIConfig.Host + ":" + portString(cfg.APIConfig.Port)
	srv := &http.Server{Addr: addr, Handler: handler}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("rrelayer listening", "addr", addr)
		serveErr <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-stop:
		log.Info("shutdown signal received, draining queues")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown error", "err", err)
		}
	}
	return nil
}

func portString(port int) string {
	if port == 0 {
		port = 8080
	}
	return strconv.Itoa(port)
}
