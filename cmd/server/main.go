package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"

	"usdqs-ledger/internal/config"
	apphttp "usdqs-ledger/internal/http"
	"usdqs-ledger/internal/repository"
	"usdqs-ledger/internal/repository/memory"
	"usdqs-ledger/internal/repository/sqlite"
	"usdqs-ledger/internal/service"
	"usdqs-ledger/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	configureLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closer, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup persistence: %v", err)
	}
	defer closer.Close()

	if err := store.Init(ctx); err != nil {
		logger.Fatalf("init store: %v", err)
	}

	userService := service.NewUserService(store, cfg.Auth.BcryptCost, logger)
	if err := userService.Load(ctx); err != nil {
		logger.Fatalf("load users: %v", err)
	}
	ledgerService := service.NewLedgerService(store, userService, logger)
	if err := ledgerService.Load(ctx); err != nil {
		logger.Fatalf("load accounts: %v", err)
	}
	sessions := service.NewSessionManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)

	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit.Auth)
	if err != nil {
		logger.Fatalf("parse auth rate limit: %v", err)
	}
	opts := apphttp.Options{
		AuthLimiter: limiter.New(limitermemory.NewStore(), rate),
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatalf("connect redis: %v", err)
		}
		opts.Idempotency = apphttp.NewRedisIdempotencyCache(rdb)
		logger.Infof("idempotency keys enabled (redis %s)", cfg.Redis.Addr)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(userService, ledgerService, sessions, logger, opts)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// buildStore selects the persistence backend. The returned closer releases
// whatever the backend holds open.
func buildStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (repository.Store, io.Closer, error) {
	switch cfg.Persistence.Backend {
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		logger.Infof("using sqlite database %s", cfg.Database.Path)
		return sqlite.NewStore(db), db, nil
	case config.BackendS3:
		store, err := buildS3Store(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil
	case config.BackendMemory:
		logger.Warn("using in-memory persistence; data is lost on exit")
		return memory.NewStore(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown persistence backend %q", cfg.Persistence.Backend)
	}
}

func buildS3Store(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*storage.S3Store, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}
	if cfg.Storage.MaxAttempts > 0 {
		loadOpts = append(loadOpts, awscfg.WithRetryMaxAttempts(cfg.Storage.MaxAttempts))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Store(client, storage.Options{
		Bucket:    cfg.Storage.Bucket,
		KeyPrefix: cfg.Storage.KeyPrefix,
	}), nil
}
