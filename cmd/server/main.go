// Command server runs the polygate LLM gateway.
//
// Configuration is layered: built-in defaults, then a YAML config file,
// then environment variables. The config file is found via -config,
// POLYGATE_CONFIG, ./config.yaml, or /etc/polygate/config.yaml.
//
// Environment overrides:
//
//	POLYGATE_ADDR        - Listen address (host:port, bare port, or bare IP)
//	POLYGATE_MODEL       - Default model id ("client:name")
//	POLYGATE_AUTH_TYPE   - Inbound auth: "none", "apikey", or "jwt"
//	POLYGATE_USAGE_STORE - Usage ledger: "memory", "postgres", or "none"
//	POLYGATE_PG_DSN      - PostgreSQL DSN for the usage ledger
//	POLYGATE_DEBUG       - Debug categories (providers,streaming,gateway,...)
//	POLYGATE_LOG_LEVEL   - ERROR, WARN, INFO, DEBUG, or TRACE
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/polygate-dev/polygate/pkg/auth"
	"github.com/polygate-dev/polygate/pkg/config"
	"github.com/polygate-dev/polygate/pkg/debug"
	"github.com/polygate-dev/polygate/pkg/gateway"
	"github.com/polygate-dev/polygate/pkg/usage"
	"github.com/polygate-dev/polygate/pkg/usage/memory"
	"github.com/polygate-dev/polygate/pkg/usage/postgres"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env file is optional; environment wins when both are set.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	debug.Init("", "")

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.Default()

	authn, err := auth.FromConfig(cfg.Auth)
	if err != nil {
		return fmt.Errorf("configuring authentication: %w", err)
	}
	if authn != nil {
		logger.Info("authentication enabled", "type", cfg.Auth.Type)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildUsageStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("configuring usage store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	srv := gateway.NewServer(cfg, store, authn, logger)
	logger.Info("starting gateway",
		"addr", srv.Addr(),
		"default_model", cfg.DefaultModelID(),
		"clients", len(cfg.Clients),
	)
	return srv.Run(ctx)
}

func buildUsageStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (usage.Store, error) {
	switch cfg.Usage.Store {
	case "memory":
		logger.Info("usage ledger enabled", "store", "memory", "max_size", cfg.Usage.MaxSize)
		return memory.New(cfg.Usage.MaxSize), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Usage.Postgres.DSN,
			MaxConns:       cfg.Usage.Postgres.MaxConns,
			MigrateOnStart: cfg.Usage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("usage ledger enabled", "store", "postgres")
		return store, nil
	case "none":
		logger.Info("usage ledger disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown usage store %q", cfg.Usage.Store)
	}
}
