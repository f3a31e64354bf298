// Command settled runs the settlement engine behind its HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	flag "github.com/spf13/pflag"

	"burnrouter/cmd/internal/passphrase"
	"burnrouter/config"
	"burnrouter/crypto"
	"burnrouter/native/settlement"
	"burnrouter/observability"
	"burnrouter/observability/logging"
	telemetry "burnrouter/observability/otel"
	"burnrouter/services/settled/adapters"
	svcconfig "burnrouter/services/settled/config"
	"burnrouter/services/settled/node"
	"burnrouter/services/settled/server"
	"burnrouter/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "settled: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "./burnrouter.toml", "node configuration file (created with defaults when missing)")
	servicePath := flag.String("service-config", "", "YAML service configuration (listen address, auth, limits, telemetry)")
	genesisPath := flag.String("genesis", "", "genesis file, overriding GenesisFile from the node configuration")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	inMemory := flag.Bool("memory", false, "keep state in memory instead of LevelDB")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	svc := svcconfig.Default()
	if *servicePath != "" {
		loaded, err := svcconfig.Load(*servicePath)
		if err != nil {
			return err
		}
		svc = loaded
	}
	secret := svc.Auth.ResolveSecret()
	if secret == "" {
		return fmt.Errorf("auth secret must be configured via auth.hmac_secret or $%s", svc.Auth.HMACSecretEnv)
	}

	env := strings.TrimSpace(os.Getenv("BURNROUTER_ENV"))
	logger := logging.Setup(logging.Options{
		Service:    "settled",
		Env:        env,
		Level:      svc.Log.Level,
		File:       svc.Log.File,
		MaxSizeMB:  svc.Log.MaxSizeMB,
		MaxBackups: svc.Log.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nodeCfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *genesisPath != "" {
		nodeCfg.GenesisFile = *genesisPath
	}
	if strings.TrimSpace(nodeCfg.GenesisFile) == "" {
		return fmt.Errorf("genesis file required (set GenesisFile or --genesis)")
	}
	genesis, err := config.LoadGenesis(nodeCfg.GenesisFile)
	if err != nil {
		return err
	}
	if strings.TrimSpace(genesis.Owner) == "" {
		pass, err := passphrase.NewSource("SETTLED_KEYSTORE_PASSPHRASE").Get()
		if err != nil {
			return err
		}
		key, err := crypto.LoadFromKeystore(nodeCfg.OwnerKeystorePath, pass)
		if err != nil {
			return fmt.Errorf("load owner keystore: %w", err)
		}
		genesis.Owner = key.PubKey().Address().String()
		logger.Info("genesis owner taken from keystore", "owner", genesis.Owner)
	}
	engine := nodeCfg.EngineAddress()
	engineBech := crypto.FromRaw(crypto.AccountPrefix, engine).String()
	providers, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "settled",
		Environment:    env,
		Engine:         engineBech,
		Endpoint:       svc.Telemetry.Endpoint,
		Insecure:       svc.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:        svc.Telemetry.Metrics,
		Traces:         svc.Telemetry.Traces,
		ExportInterval: svc.Telemetry.ExportInterval.Duration,
		SampleRatio:    svc.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = providers.Shutdown(context.Background()) }()

	resolved, err := genesis.Resolve(engine)
	if err != nil {
		return err
	}

	db, err := openDatabase(nodeCfg, *inMemory)
	if err != nil {
		return err
	}
	defer db.Close()

	var forwarder settlement.Forwarder
	if url := strings.TrimSpace(svc.Forwarder.URL); url != "" {
		forwarder = adapters.NewWebhookForwarder(url, svc.Forwarder.Timeout.Duration)
	}

	n, err := node.New(node.Options{
		DB:        db,
		Engine:    engine,
		Genesis:   resolved,
		Forwarder: forwarder,
		Metrics:   observability.Settlement(),
		Logger:    logger,
		Clock:     clockwork.NewRealClock(),
	})
	if err != nil {
		return err
	}

	auth, err := server.NewAuthenticator(server.AuthConfig{
		HMACSecret: secret,
		Issuer:     svc.Auth.Issuer,
		Audience:   svc.Auth.Audience,
		ClockSkew:  svc.Auth.ClockSkew.Duration,
	}, logger.With("component", "auth"))
	if err != nil {
		return err
	}
	srv, err := server.New(server.Config{
		ListenAddress:   svc.ListenAddress,
		MaxConnections:  svc.MaxConnections,
		ExecutionBudget: svc.ExecutionBudget,
		RateLimit: server.RateLimit{
			RequestsPerMinute: svc.RateLimit.RequestsPerMinute,
			Burst:             svc.RateLimit.Burst,
			TrustedProxies:    svc.RateLimit.TrustedProxies,
		},
		Metrics: observability.API(),
	}, n, auth, logger.With("component", "http"))
	if err != nil {
		return err
	}

	logger.Info("settlement engine ready",
		slog.String("engine", engineBech),
		slog.String("router", crypto.FromRaw(crypto.AccountPrefix, n.Router().Address()).String()),
		slog.Bool("forwarder", forwarder != nil),
	)
	return srv.Run(ctx)
}

func openDatabase(cfg *config.Config, inMemory bool) (storage.Database, error) {
	if inMemory {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if cfg.StorageBackend == config.BackendBolt {
		path := filepath.Join(cfg.DataDir, "state.db")
		db, err := storage.NewBoltDB(path)
		if err != nil {
			return nil, fmt.Errorf("open state at %s: %w", path, err)
		}
		return db, nil
	}
	path := filepath.Join(cfg.DataDir, "state")
	db, err := storage.NewLevelDB(path)
	if err != nil {
		return nil, fmt.Errorf("open state at %s: %w", path, err)
	}
	return db, nil
}
