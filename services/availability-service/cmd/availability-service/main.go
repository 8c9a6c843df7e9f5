package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"github.com/serenity-care/platform/libs/auth"
	"github.com/serenity-care/platform/libs/db"
	"github.com/serenity-care/platform/libs/httpx"
	"github.com/serenity-care/platform/libs/kafkax"
	otelx "github.com/serenity-care/platform/libs/otel"
	"github.com/serenity-care/platform/libs/runtime"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
	"github.com/serenity-care/platform/services/availability-service/internal/cache"
	"github.com/serenity-care/platform/services/availability-service/internal/consumer"
	"github.com/serenity-care/platform/services/availability-service/internal/grpcserver"
	"github.com/serenity-care/platform/services/availability-service/internal/handlers"
	"github.com/serenity-care/platform/services/availability-service/internal/inbox"
	"github.com/serenity-care/platform/services/availability-service/internal/outbox"
	"github.com/serenity-care/platform/services/availability-service/internal/policy"
	"github.com/serenity-care/platform/services/availability-service/internal/storage"
	"github.com/serenity-care/platform/services/availability-service/internal/windows"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadSettings()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	store := storage.NewPostgres(pool)
	policies := policy.NewPostgresProvider(pool, cfg.Defaults, logger)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers), Optional: true},
	}

	// Slot listing reads through the cache; checks and window changes always hit Postgres.
	var slotStore availability.WindowStore = store.Windows()
	var windowOpts []windows.Option
	middlewares := []httpx.Middleware{
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedHeaders: []string{auth.ProviderHeader, "Authorization"},
			MaxAge:         10 * time.Minute,
		}),
	}
	var windowCache *cache.WindowStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		windowCache = cache.NewWindowStore(store.Windows(), rdb, cfg.CacheTTL, "avail", logger)
		slotStore = windowCache
		windowOpts = append(windowOpts, windows.WithInvalidator(windowCache))
		checks = append(checks, runtime.ReadyCheck{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			Optional: true,
		})
		limiter := httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, cfg.RateWindow, "avail:rl", httpx.HeaderOrClientKey(auth.ProviderHeader))
		middlewares = append(middlewares, limiter.Middleware(logger, true))
		logger.Info("redis cache and rate limiter enabled", "addr", cfg.RedisAddr)
	} else {
		limiter := httpx.NewRateLimiter(cfg.RateLimit, cfg.RateWindow, httpx.HeaderOrClientKey(auth.ProviderHeader))
		middlewares = append(middlewares, limiter.Middleware())
	}
	middlewares = append(middlewares,
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.HandlerBudget),
	)

	engine := availability.NewEngine(store.Windows(), cfg.Defaults)
	windowSvc := windows.NewService(store, engine, policies, logger, windowOpts...)

	outboxPublisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if windowCache != nil && cfg.KafkaBrokers != "" {
		eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topics:  outbox.WindowTopics(),
		}, consumer.InvalidateOnWindowEvent(windowCache, logger))
		go eventConsumer.Run(ctx)
	}

	availabilityHandler := handlers.NewAvailabilityHandler(engine.WithStore(slotStore), store.Sessions(), windowSvc, policies, logger, time.Now)
	windowsHandler := handlers.NewWindowsHandler(windowSvc, policies, logger)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.HandleFunc("/api/v1/public/slots", availabilityHandler.Slots)
	mux.HandleFunc("/api/v1/public/availability/check", availabilityHandler.Check)
	provider := providerAuth(cfg, logger)
	mux.Handle("/api/v1/windows", provider(windowsHandler.Collection))
	mux.Handle("/api/v1/windows/update", provider(windowsHandler.Update))
	mux.Handle("/api/v1/windows/deactivate", provider(windowsHandler.Deactivate))
	mux.Handle("/api/v1/windows/reactivate", provider(windowsHandler.Reactivate))
	mux.Handle("/api/v1/windows/resolve", provider(windowsHandler.Resolve))

	httpHandler := otelhttp.NewHandler(httpx.Chain(mux, middlewares...), "availability")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go serveGRPC(ctx, logger, cfg.GRPCPort, checks)

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func serveGRPC(ctx context.Context, logger *slog.Logger, port string, checks []runtime.ReadyCheck) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		logger.Error("grpc listen failed", "err", err, "port", port)
		return
	}
	logger.Info("grpc server starting", "addr", lis.Addr().String())
	if err := grpcserver.New(logger, checks, 10*time.Second).Serve(ctx, lis); err != nil {
		logger.Error("grpc server error", "err", err)
	}
}

// providerAuth verifies bearer tokens on window routes when a secret or JWKS
// endpoint is configured. Otherwise the gateway's X-Provider-Id is trusted.
func providerAuth(cfg settings, logger *slog.Logger) func(http.HandlerFunc) http.Handler {
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		logger.Warn("window routes trust X-Provider-Id from the gateway; set JWT_SECRET or JWKS_URL to verify tokens")
		return func(h http.HandlerFunc) http.Handler { return h }
	}
	v := auth.TokenVerifier{Secret: cfg.JWTSecret}
	if cfg.JWKSURL != "" {
		v.Keys = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSTTL)
	}
	return func(h http.HandlerFunc) http.Handler { return auth.RequireProvider(h, v) }
}
