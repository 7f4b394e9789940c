package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/commitgate/internal/auth"
	"github.com/mattjoyce/commitgate/internal/config"
	"github.com/mattjoyce/commitgate/internal/directory"
	"github.com/mattjoyce/commitgate/internal/ledger"
	"github.com/mattjoyce/commitgate/internal/lock"
	"github.com/mattjoyce/commitgate/internal/log"
	"github.com/mattjoyce/commitgate/internal/pipeline"
	"github.com/mattjoyce/commitgate/internal/secrets"
	"github.com/mattjoyce/commitgate/internal/server"
	"github.com/mattjoyce/commitgate/internal/signature"
	"github.com/mattjoyce/commitgate/internal/storage"
	"github.com/mattjoyce/commitgate/internal/upstream"
	"github.com/mattjoyce/commitgate/internal/vcs"
)

const (
	ledgerPruneInterval = time.Hour
	// Slack on top of budget and grace before the HTTP write deadline.
	writeTimeoutSlack = 5 * time.Second
)

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("commitgate starting", "version", version, "config", cfg.SourcePath)

	instanceLock, err := lock.Acquire(lock.PathFor(cfg.Ledger.Path))
	if err != nil {
		logger.Error("failed to acquire instance lock (another instance may be running)", "error", err)
		return 1
	}
	defer instanceLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := buildSecrets(cfg)
	if err != nil {
		logger.Error("failed to initialize secrets", "error", err)
		return 1
	}

	db, store, err := openLedger(ctx, cfg)
	if err != nil {
		logger.Error("failed to open ledger", "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("ledger opened", "path", cfg.Ledger.Path, "retention", cfg.Ledger.Retention)

	cache, err := buildDeviceCache(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize device cache", "backend", cfg.Directory.Cache.Backend, "error", err)
		return 1
	}

	verifier, err := signature.New(cfg.Signature.Scheme, cfg.Signature.Encoding)
	if err != nil {
		logger.Error("invalid signature settings", "error", err)
		return 1
	}

	vcsClient := vcs.NewClient(cfg.VCS.BaseURL, cfg.HTTP.Timeout, vcs.Options{
		Mode:      cfg.VCS.ReportMode,
		Context:   cfg.VCS.StatusContext,
		TargetURL: cfg.VCS.TargetURL,
		Fields: vcs.FieldPaths{
			AuthorEmail:   cfg.VCS.Fields.AuthorEmail,
			Signature:     cfg.VCS.Fields.Signature,
			SignedContent: cfg.VCS.Fields.SignedContent,
		},
	})

	devices := directory.New(
		directory.NewClient(upstream.New(cfg.Directory.BaseURL, cfg.HTTP.Timeout), cfg.Directory.LookupPath, cfg.Directory.FilterParam),
		cache,
		log.WithComponent("directory"),
		directory.WithLookupTimeout(cfg.HTTP.Timeout),
	)

	gate := pipeline.New(pipelineSettings(cfg), pipeline.Deps{
		Secrets:  provider,
		Fetcher:  vcsClient,
		Resolver: devices,
		Verifier: verifier,
		Reporter: vcsClient,
		Recorder: store,
		Logger:   log.WithComponent("pipeline"),
	})

	srvConfig := server.Config{
		Listen:       cfg.Service.Listen,
		WebhookPath:  cfg.Webhook.Path,
		MaxBodySize:  cfg.MaxBodyBytes(),
		WriteTimeout: cfg.Service.InvocationBudget + cfg.Service.ReportGrace + writeTimeoutSlack,
	}
	if cfg.Ops.TokenRef != "" {
		srvConfig.OpsToken = opsTokenSource(provider, cfg.Ops.TokenRef)
		logger.Info("verdict query endpoint enabled")
	}
	srv := server.New(srvConfig, gate, store, log.WithComponent("server"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go pruneLedger(ctx, store, cfg.Ledger.Retention, log.WithComponent("ledger"))

	logger.Info("commitgate running (press Ctrl+C to stop)")
	code := serveUntilSignal(ctx, cancel, sigCh, srv.Start, logger)
	logger.Info("commitgate stopped")
	return code
}

// serveUntilSignal runs start until a shutdown signal or a failure. After a
// signal it cancels start's context and waits for start to return, so
// in-flight deliveries are reported and recorded before the process exits.
func serveUntilSignal(ctx context.Context, cancel context.CancelFunc, sigCh <-chan os.Signal, start func(context.Context) error, logger *slog.Logger) int {
	done := make(chan error, 1)
	go func() { done <- start(ctx) }()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal, draining in-flight deliveries", "signal", sig)
		cancel()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("shutdown incomplete", "error", err)
			return 1
		}
		return 0
	case err := <-done:
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("component failed", "error", fmt.Errorf("server: %w", err))
			return 1
		}
		return 0
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}
	return config.Load(configPath)
}

// buildSecrets consults the secrets directory first, then the environment
// (seeded from the env file).
func buildSecrets(cfg *config.Config) (secrets.Provider, error) {
	env, err := secrets.NewEnvProvider(cfg.Secrets.EnvFile)
	if err != nil {
		return nil, err
	}
	if cfg.Secrets.Dir == "" {
		return env, nil
	}
	return secrets.Chain{secrets.NewDirProvider(cfg.Secrets.Dir), env}, nil
}

func buildDeviceCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (directory.Cache, error) {
	cc := cfg.Directory.Cache
	if cc.Backend == config.CacheBackendRedis {
		rdb, err := directory.NewRedisClient(ctx, cc.RedisAddr, cc.RedisDB)
		if err != nil {
			return nil, err
		}
		logger.Info("device cache ready", "backend", cc.Backend, "addr", cc.RedisAddr, "ttl", cc.TTL)
		return directory.NewRedisCache(rdb, cc.KeyPrefix, cc.TTL, log.WithComponent("device-cache")), nil
	}

	mem := directory.NewMemoryCache(cc.TTL)
	if cc.TTL > 0 {
		go mem.RunPruner(ctx, cc.TTL)
	}
	logger.Info("device cache ready", "backend", config.CacheBackendMemory, "ttl", cc.TTL)
	return mem, nil
}

func pipelineSettings(cfg *config.Config) pipeline.Settings {
	return pipeline.Settings{
		WebhookSecretRef:  cfg.Webhook.SecretRef,
		VCSTokenRef:       cfg.VCS.TokenRef,
		DirectoryTokenRef: cfg.Directory.TokenRef,
		SignatureHeader:   cfg.Webhook.SignatureHeader,
		Budget:            cfg.Service.InvocationBudget,
		ReportGrace:       cfg.Service.ReportGrace,
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BackoffBase: cfg.Retry.BackoffBase,
			BackoffMax:  cfg.Retry.BackoffMax,
		},
	}
}

// opsTokenSource reads the operator token on every request so rotation
// needs no restart.
func opsTokenSource(provider secrets.Provider, ref string) auth.TokenSource {
	return func(ctx context.Context) (string, error) {
		return provider.GetSecret(ctx, ref)
	}
}

func pruneLedger(ctx context.Context, store *ledger.Store, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	prune := func() {
		n, err := store.Prune(ctx, retention)
		if err != nil {
			logger.Warn("ledger prune failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("ledger pruned", "removed", n)
		}
	}

	prune()
	ticker := time.NewTicker(ledgerPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func openLedger(ctx context.Context, cfg *config.Config) (*sql.DB, *ledger.Store, error) {
	db, err := storage.OpenSQLite(ctx, cfg.Ledger.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger %s: %w", cfg.Ledger.Path, err)
	}
	return db, ledger.NewStore(db), nil
}
