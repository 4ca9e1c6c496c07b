package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/madukaneranga/Kixora-sub000/internal/checkout"
	"github.com/madukaneranga/Kixora-sub000/internal/common"
	"github.com/madukaneranga/Kixora-sub000/internal/config"
	"github.com/madukaneranga/Kixora-sub000/internal/gateway"
	"github.com/madukaneranga/Kixora-sub000/internal/health"
	"github.com/madukaneranga/Kixora-sub000/internal/lock"
	"github.com/madukaneranga/Kixora-sub000/internal/obs"
	"github.com/madukaneranga/Kixora-sub000/internal/order"
	"github.com/madukaneranga/Kixora-sub000/internal/ratelimit"
	"github.com/madukaneranga/Kixora-sub000/internal/resilience"
	"github.com/madukaneranga/Kixora-sub000/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "json"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "kixora")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	httpMetrics := obs.NewHTTPMetrics(metricsNamespace, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "kixora-payments"
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	scriptClient := resilience.HTTPClient{
		Client:  &http.Client{},
		Breaker: resilience.NewBreaker(3, 30*time.Second, "payhere-script", logger),
		Timeout: cfg.ScriptTimeout,
	}
	sdk := gateway.NewPayHereSDK()
	loader := &gateway.ScriptLoaderHTTP{
		ScriptURL: cfg.PayHereScriptURL,
		Client:    scriptClient,
		SDK:       sdk,
	}
	bridge := gateway.New(loader, logger.With().Str("component", "gateway").Logger(), cfg.SessionTimeout)

	checkoutSvc := &checkout.Service{
		Orders: order.PGStore{Pool: pool},
		Bridge: bridge,
		Signer: checkout.RemoteSigner{
			BaseURL: cfg.SignerURL,
			Client: resilience.HTTPClient{
				Client:  &http.Client{},
				Breaker: resilience.NewBreaker(3, 15*time.Second, "signer", logger),
				Timeout: 5 * time.Second,
			},
		},
		Locker:         &lock.Locker{R: redisClient},
		MerchantID:     cfg.PayHereMerchantID,
		ReturnURL:      cfg.ReturnURL,
		CancelURL:      cfg.CancelURL,
		NotifyURL:      cfg.NotifyURL,
		Sandbox:        cfg.PayHereSandbox,
		SessionTimeout: cfg.SessionTimeout,
		Log:            logger.With().Str("component", "checkout").Logger(),
	}
	checkoutHandler := &checkout.Handler{
		Svc:      checkoutSvc,
		SDK:      sdk,
		Validate: validator.New(),
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	payLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:pay:"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return common.ClientIP(r) },
			Window: cfg.PayRateWindow,
			Max:    cfg.PayRateMax,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limiter") },
	}
	healthHandler := health.Handler{Checker: probes{pool: pool, redis: redisClient}}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz/live", healthHandler.Live)
	r.Get("/healthz/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(idem.Middleware, payLimiter.Middleware).Post("/checkout/pay", checkoutHandler.Pay)
		r.Get("/checkout/{orderID}/session", checkoutHandler.Session)
		r.Get("/payhere/return", checkoutHandler.Return)
		r.Get("/payhere/cancel", checkoutHandler.Cancel)
		r.Get("/payhere/error", checkoutHandler.Failure)
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// pay responses block until the session settles, so the write
		// timeout must exceed the session window
		WriteTimeout: cfg.SessionTimeout + time.Minute,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown http server")
	}
	logger.Info().Msg("server stopped")
}

// probes adapts the shared pool and redis client to the health checker.
type probes struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

func (p probes) PingDB(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

func (p probes) PingRedis(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
