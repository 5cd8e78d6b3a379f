package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"bookcat.org/internal/auth"
	"bookcat.org/internal/catalog"
	"bookcat.org/internal/config"
	"bookcat.org/internal/httpapi"
	"bookcat.org/internal/ingest"
	"bookcat.org/internal/migrate"
	"bookcat.org/internal/objectstore"
	"bookcat.org/internal/obs"
	"bookcat.org/internal/ratelimit"
	"bookcat.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "unknown"
)

func main() {
	cfgPath := flag.String("config", config.DefaultPath, "path to YAML config")
	migrateUp := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	if err := run(*cfgPath, *migrateUp); err != nil {
		obs.Logger().Error("bookcat-api stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string, migrateUp bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	// Инициализация observability: JSON-логгер, метрики, build info
	logger := obs.InitLogger(cfg.LogLevel, os.Stdout)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	if migrateUp {
		if err := migrate.NewManager(store.DB(), migrate.WithLogger(logger)).Up(ctx); err != nil {
			return err
		}
	}

	files, err := newFiles(ctx, cfg, logger)
	if err != nil {
		return err
	}
	limiter, closeLimiter, err := newAuthLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	var privPEM []byte
	if cfg.JWT.PrivateKeyPath != "" {
		if privPEM, err = os.ReadFile(cfg.JWT.PrivateKeyPath); err != nil {
			return fmt.Errorf("read jwt private key: %w", err)
		}
	}
	pubPEM, err := os.ReadFile(cfg.JWT.PublicKeyPath)
	if err != nil {
		return fmt.Errorf("read jwt public key: %w", err)
	}
	codec, err := auth.NewTokenCodec(privPEM, pubPEM, auth.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		return err
	}
	if !codec.CanSign() {
		logger.Warn("jwt private key not configured, login and refresh will fail")
	}
	gate, err := auth.NewGate(store, codec,
		auth.WithAccessTTL(cfg.JWT.AccessTTL.Std()),
		auth.WithRefreshTTL(cfg.JWT.RefreshTTL.Std()),
	)
	if err != nil {
		return err
	}

	books := catalog.NewService(store, files,
		catalog.WithMaxFileSize(cfg.Upload.MaxBytes),
		catalog.WithLogger(logger),
	)
	importer := ingest.NewPipeline(store,
		ingest.WithClock(books.Now),
		ingest.WithLogger(logger),
	)
	ready := httpapi.ReadyProbe{DB: store.DB()}

	api := httpapi.New(httpapi.Deps{
		Gate:             gate,
		Catalog:          books,
		Importer:         importer,
		AuthLimiter:      limiter,
		Ready:            ready,
		Version:          version,
		MaxUploadBytes:   cfg.Upload.MaxBytes,
		DefaultBatchSize: cfg.Import.DefaultBatchSize,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	health := httpapi.NewGRPCServer(ready, version)
	health.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		logger.Info("grpc listening", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		health.Watch(gctx, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// newFiles uses MinIO when an endpoint is configured and an in-memory
// store otherwise.
func newFiles(ctx context.Context, cfg config.Config, logger *slog.Logger) (catalog.Files, error) {
	if cfg.Minio.Endpoint == "" {
		logger.Warn("minio endpoint not set, book files are kept in memory")
		return objectstore.NewMemory(), nil
	}
	return objectstore.NewMinio(ctx, objectstore.MinioConfig{
		Endpoint:  cfg.Minio.Endpoint,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		Bucket:    cfg.Minio.Bucket,
		UseSSL:    cfg.Minio.UseSSL,
	})
}

// newAuthLimiter prefers the shared Redis window so every replica counts
// against the same quota.
func newAuthLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, func(), error) {
	limit := cfg.RateLimit.AuthPerMinute
	if cfg.Redis.Addr == "" {
		l, err := ratelimit.NewLocal(limit, time.Minute)
		return l, func() {}, err
	}
	l, err := ratelimit.NewRedisFixedWindow(cfg.Redis.Addr, cfg.Redis.Password, "", limit, time.Minute)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := l.Ping(pingCtx); err != nil {
		_ = l.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("auth rate limit backed by redis", "addr", cfg.Redis.Addr, "per_minute", limit)
	return l, func() { _ = l.Close() }, nil
}
