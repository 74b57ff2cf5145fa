// Command risk-auditor runs the paywall-gated approval audit gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kamiyo-ai/risk-auditor/internal/audit"
	"github.com/kamiyo-ai/risk-auditor/internal/config"
	"github.com/kamiyo-ai/risk-auditor/internal/gate"
	"github.com/kamiyo-ai/risk-auditor/internal/ledger"
	"github.com/kamiyo-ai/risk-auditor/internal/logger"
	"github.com/kamiyo-ai/risk-auditor/internal/metrics"
	"github.com/kamiyo-ai/risk-auditor/internal/upstream"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("gateway exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	payTo, err := solana.PublicKeyFromBase58(cfg.Payment.PayTo)
	if err != nil {
		return fmt.Errorf("invalid payment destination: %w", err)
	}
	verifier := ledger.NewVerifier(ledger.NewSolanaReader(cfg.Payment.RPCEndpoint), ledger.Config{
		PayTo:           payTo,
		MinAmount:       cfg.Payment.MinAmount,
		AmountTolerance: cfg.Payment.AmountTolerance,
	})

	proofCache := gate.NewProofCache(cfg.Payment.AccessWindow)
	proofCache.StartSweeper(cfg.Cache.SweepInterval)
	defer proofCache.Stop()

	accessGate := gate.New(gate.Config{
		Network:           cfg.Payment.Network,
		PayTo:             cfg.Payment.PayTo,
		Asset:             cfg.Payment.Asset,
		MinAmount:         cfg.Payment.MinAmount,
		AccessWindow:      cfg.Payment.AccessWindow,
		RequestAllowance:  cfg.Payment.RequestAllowance,
		MaxTimeoutSeconds: cfg.Payment.MaxTimeoutSeconds,
	}, proofCache, verifier, log, m)

	var store upstream.Store
	if cfg.Cache.RedisAddr != "" {
		store = upstream.NewRedisStore(redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
		}), "risk-auditor:")
		log.Info("using redis response cache", zap.String("addr", cfg.Cache.RedisAddr))
	} else {
		memory := upstream.NewMemoryStore()
		memory.StartSweeper(cfg.Cache.SweepInterval)
		defer memory.Stop()
		store = memory
	}

	sources := make([]*upstream.Source, 0, len(cfg.Upstream.Sources))
	for _, src := range cfg.Upstream.Sources {
		sources = append(sources, upstream.NewSource(src.Name, src.Endpoint, src.Priority))
	}
	registry := upstream.NewRegistry(sources, cfg.Upstream.BreakerThreshold, cfg.Upstream.BreakerTimeout)
	fetcher := upstream.NewFetcher(registry, store, cfg.Upstream.CacheTTL, cfg.Upstream.AttemptTimeout,
		log, upstream.WithMetrics(m))

	auditSvc := audit.NewService(fetcher, cfg.Upstream.StaleAfter, log)
	auditHandler := audit.NewHandler(auditSvc, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"sources": registry.Status(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	paid := router.Group("/", accessGate.Middleware())
	auditHandler.Register(paid)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Header("X-Request-Id", requestID)

		c.Next()

		log.Info("request",
			zap.String("requestId", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
