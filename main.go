package main

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/example/derma-check/internal/analysis"
	"github.com/example/derma-check/internal/config"
	"github.com/example/derma-check/internal/gradioclient"
	"github.com/example/derma-check/internal/handlers"
	"github.com/example/derma-check/internal/logging"
	"github.com/example/derma-check/internal/metrics"
	"github.com/example/derma-check/internal/middleware"
	"github.com/example/derma-check/internal/usecase"
	"github.com/example/derma-check/internal/web"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var cache usecase.Cache
	if cfg.Cache.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		redisClient := initRedis(redisCtx, cfg.Cache.RedisAddr, logger)
		defer redisClient.Close()
		cache = usecase.NewRedisCache(redisClient, "derma-check:")
	}

	client := gradioclient.New(&http.Client{}, gradioclient.Options{
		Space:  cfg.Upstream.Space,
		HubURL: cfg.Upstream.HubURL,
		Token:  cfg.Upstream.Token,
	}, logger)

	registry := metrics.NewRegistry()
	uc := usecase.NewAnalysisUseCase(
		client,
		analysis.NewNormalizer(analysis.SystemClock{}, logger),
		cache,
		registry,
		logger,
		usecase.Options{
			Route:          cfg.Upstream.Route,
			Space:          cfg.Upstream.Space,
			ConnectTimeout: cfg.Upstream.ConnectTimeout,
			PredictTimeout: cfg.Upstream.PredictTimeout,
			APIInfoTTL:     cfg.Cache.APIInfoTTL,
		},
	)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = handlers.MaxUploadSize
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(logger), middleware.Metrics(registry))

	handlers.RegisterRoutes(r, uc, registry)
	web.RegisterRoutes(r)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           middleware.CORS(cfg.CORS.AllowedOrigins)(r),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("analysis API listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("space", cfg.Upstream.Space),
		zap.Bool("api_info_cache", cache != nil),
	)
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err), zap.String("addr", addr))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
