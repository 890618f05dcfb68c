package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mathtutor/internal/common/auth"
	"mathtutor/internal/common/cache"
	"mathtutor/internal/common/db"
	"mathtutor/internal/common/events"
	"mathtutor/internal/common/metrics"
	"mathtutor/internal/common/mq"
	"mathtutor/internal/common/ratelimit"
	"mathtutor/internal/common/storage"
	"mathtutor/internal/evaluation"
	"mathtutor/internal/evaluation/provider"
	problemController "mathtutor/internal/problem/controller"
	"mathtutor/internal/problem/dataset"
	problemRepo "mathtutor/internal/problem/repository"
	problemService "mathtutor/internal/problem/service"
	"mathtutor/internal/server"
	submitController "mathtutor/internal/submit/controller"
	submitRepo "mathtutor/internal/submit/repository"
	submitService "mathtutor/internal/submit/service"
	userController "mathtutor/internal/user/controller"
	userRepo "mathtutor/internal/user/repository"
	userService "mathtutor/internal/user/service"
	"mathtutor/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultConfigPath = "configs/server.yaml"

func main() {
	configPath := flag.String("config", getenvWithDefault("MATHTUTOR_CONFIG", defaultConfigPath), "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()
	m := metrics.New()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()
	dbProvider := db.NewManager(mysqlDB)

	// Redis is optional: without it caching is off, login throttling is
	// disabled and rate limits are kept per process.
	var (
		cacheClient cache.Cache
		limiter     ratelimit.Limiter = ratelimit.NewLocalLimiter()
	)
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis failed: %w", err)
		}
		defer func() {
			_ = redisCache.Close()
		}()
		cacheClient = redisCache
		limiter = ratelimit.NewRedisLimiter(redisCache, 0)
	} else {
		logger.Warn(ctx, "redis not configured, running without cache")
	}

	objStorage, err := newObjectStorage(ctx, appCfg.Storage)
	if err != nil {
		return err
	}

	questions, err := dataset.Load(appCfg.Dataset.Path)
	if err != nil {
		logger.Warn(ctx, "reference dataset unavailable", zap.String("path", appCfg.Dataset.Path), zap.Error(err))
	} else {
		logger.Info(ctx, "reference dataset loaded", zap.String("path", appCfg.Dataset.Path), zap.Int("questions", questions.Len()))
	}

	modelProvider, err := newModelProvider(ctx, appCfg.Model, m)
	if err != nil {
		return err
	}

	queue, err := newQueue(appCfg.Kafka)
	if err != nil {
		return err
	}
	defer func() {
		_ = queue.Close()
	}()

	tokens := auth.NewTokenManager(appCfg.Auth.JWTSecret, appCfg.Auth.JWTIssuer, appCfg.Auth.AccessTokenTTL)
	if !tokens.Enabled() {
		logger.Warn(ctx, "jwt secret not configured, admin routes are open")
	}

	users := userRepo.NewUserRepository(dbProvider, cacheClient)
	history := userRepo.NewRatingHistoryRepository(dbProvider)
	authSvc := userService.NewAuthService(dbProvider, users, cacheClient, tokens, userService.AuthServiceConfig{
		LegacyPlaintext: appCfg.Auth.legacyPlaintext(),
		LoginFailTTL:    appCfg.Auth.LoginFailTTL,
		LoginFailLimit:  appCfg.Auth.LoginFailLimit,
	})
	userSvc := userService.NewUserService(dbProvider, users, history, m)

	problemSvc := problemService.NewProblemService(dbProvider, problemRepo.NewProblemRepository(dbProvider, cacheClient), questions)

	var references submitService.ReferenceLookup
	if questions != nil {
		references = questions
	}
	pipeline := evaluation.NewPipeline(modelProvider, objStorage, m, appCfg.Model.Pipeline)
	submitSvc, err := submitService.NewSubmitService(submitService.Config{
		SubmissionRepo: submitRepo.NewSubmissionRepository(dbProvider, cacheClient),
		References:     references,
		Storage:        objStorage,
		Evaluator:      pipeline,
		Publisher:      queue,
		SolutionPrefix: appCfg.Storage.SolutionPrefix,
		MaxImageBytes:  appCfg.Storage.MaxImageBytes,
		Timeouts:       appCfg.Timeouts,
	})
	if err != nil {
		return fmt.Errorf("init submit service failed: %w", err)
	}
	uploadSvc := submitService.NewUploadService(objStorage, appCfg.Storage.UploadPrefix, appCfg.Storage.MaxImageBytes, appCfg.Timeouts.Storage)

	if err := queue.Subscribe(ctx, events.TopicSubmissionGraded, userSvc.HandleGradedMessage); err != nil {
		return fmt.Errorf("subscribe graded topic failed: %w", err)
	}
	if err := queue.Start(); err != nil {
		return fmt.Errorf("start consumer failed: %w", err)
	}

	router := server.NewRouter(server.Dependencies{
		Auth:        userController.NewAuthController(authSvc),
		Users:       userController.NewUserController(userSvc),
		Problems:    problemController.NewProblemController(problemSvc),
		Submissions: submitController.NewSubmitController(submitSvc),
		Uploads:     submitController.NewUploadController(uploadSvc),
		Database:    dbProvider,
		Tokens:      tokens,
		Limiter:     limiter,
		Metrics:     m,
		CORS:        appCfg.CORS,
		RateLimits:  appCfg.RateLimits,
	})
	httpServer := server.NewHTTPServer(appCfg.Server, router)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("model_provider", modelProvider.Name()),
			zap.String("storage", appCfg.Storage.Driver),
			zap.Bool("kafka", appCfg.Kafka.Enabled),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func newObjectStorage(ctx context.Context, cfg StorageConfig) (storage.ObjectStorage, error) {
	if cfg.Driver == storageDriverMinIO {
		minioStorage, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("init minio failed: %w", err)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := minioStorage.EnsureBucket(bucketCtx); err != nil {
			return nil, fmt.Errorf("ensure minio bucket failed: %w", err)
		}
		return minioStorage, nil
	}
	local, err := storage.NewLocalStorage(cfg.LocalRoot)
	if err != nil {
		return nil, fmt.Errorf("init local storage failed: %w", err)
	}
	return local, nil
}

func newModelProvider(ctx context.Context, cfg ModelConfig, m *metrics.Metrics) (provider.Provider, error) {
	var base provider.Provider
	switch cfg.Provider {
	case providerOllama:
		base = provider.NewOllamaProvider(cfg.Ollama)
	default:
		gemini, err := provider.NewGeminiProvider(ctx, cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("init gemini provider failed: %w", err)
		}
		base = gemini
	}
	if cfg.Breaker.Disabled {
		return base, nil
	}
	return provider.NewBreakerProvider(base, cfg.Breaker, m), nil
}

func newQueue(cfg KafkaSection) (mq.MessageQueue, error) {
	if !cfg.Enabled {
		return mq.NewMemoryQueue(), nil
	}
	queue, err := mq.NewKafkaQueue(cfg.KafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("init kafka failed: %w", err)
	}
	return queue, nil
}

func getenvWithDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
