package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	supabase "github.com/supabase-community/supabase-go"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/internal/ratelimit"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/internal/usertoken"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/internal/util"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/ai"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/queue"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/storage"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/store"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/services/study/internal/app"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/services/study/internal/config"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/services/study/internal/server"
)

func main() {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := server.NewMetrics(registry)

	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		util.Fatal("failed to parse jwt leeway", "err", err)
	}
	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:     cfg.JWTSecret,
		JWKSURL:    cfg.JWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     jwtLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		util.Fatal("failed to init token verifier", "err", err)
	}

	var supabaseClient *supabase.Client
	if cfg.StoreBackend == config.StoreBackendSupabase {
		supabaseClient, err = store.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			util.Fatal("failed to init supabase client", "err", err)
		}
	}

	dataStore, err := openStore(ctx, cfg, supabaseClient)
	if err != nil {
		util.Fatal("failed to init store", "backend", cfg.StoreBackend, "err", err)
	}
	objects, err := openObjects(ctx, cfg)
	if err != nil {
		util.Fatal("failed to init object storage", "backend", cfg.ObjectBackend, "err", err)
	}

	gateway, err := ai.NewGatewayClient(ai.GatewayConfig{
		BaseURL:  cfg.AIGatewayURL,
		APIKey:   cfg.AIAPIKey,
		Model:    cfg.AIModel,
		Observer: metrics.ObserveAICall,
	})
	if err != nil {
		util.Fatal("failed to init ai gateway", "err", err)
	}

	var (
		limiter  server.RateLimiter
		jobQueue *queue.RedisJobQueue
	)
	appCfg := app.Config{
		Store:          dataStore,
		Objects:        objects,
		Gateway:        gateway,
		HistoryLimit:   cfg.HistoryLimit,
		MaxUploadBytes: cfg.MaxUploadBytes,
		StepObserver:   metrics.ObserveStep,
	}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			util.Fatal("failed to connect redis", "addr", cfg.RedisAddr, "err", err)
		}
		fixedWindow, err := ratelimit.NewRedisFixedWindowLimiter(redisClient, "study:ratelimit", cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
		limiter = fixedWindow
		jobQueue, err = queue.NewRedisJobQueue(redisClient, queue.RedisQueueConfig{
			Stream:     "study:documents",
			Group:      "study-workers",
			MaxRetries: cfg.QueueMaxRetries,
		})
		if err != nil {
			util.Fatal("failed to init job queue", "err", err)
		}
		appCfg.Queue = jobQueue
	} else {
		logger.Warn("redis not configured; rate limiting disabled and documents processed inline")
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	defer appCore.Close()

	if jobQueue != nil {
		jobQueue.Start(ctx, cfg.QueueConcurrency, appCore.HandleJob)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		util.Fatal("invalid trusted proxies", "err", err)
	}
	httpServer := server.New(server.Config{
		App:            appCore,
		TokenVerifier:  tokenVerifier,
		Limiter:        limiter,
		Metrics:        metrics,
		TrustedProxies: trusted,
	})

	addr := ":" + cfg.Port
	// document extraction and generation run inside the request when no queue is configured
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("study server listening", "addr", addr, "store", cfg.StoreBackend, "objects", cfg.ObjectBackend, "queue", jobQueue != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}

func openStore(ctx context.Context, cfg config.FileConfig, client *supabase.Client) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendSupabase:
		s, err := store.NewSupabaseStore(client)
		if err != nil {
			return nil, err
		}
		return s, s.Ping(ctx)
	case config.StoreBackendMemory:
		slog.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	default:
		return store.NewGormStore(cfg.DatabaseURL)
	}
}

func openObjects(ctx context.Context, cfg config.FileConfig) (storage.ObjectStore, error) {
	switch cfg.ObjectBackend {
	case config.ObjectBackendSupabase:
		return storage.NewSupabaseStore(storage.SupabaseConfig{
			URL:        cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseServiceKey,
			Bucket:     cfg.SupabaseBucket,
		})
	case config.ObjectBackendMemory:
		return storage.NewMemoryStore(), nil
	default:
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	}
}
