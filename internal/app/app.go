package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/cartloom/promo-engine/internal/api"
	"github.com/cartloom/promo-engine/internal/domain/abtest"
	"github.com/cartloom/promo-engine/internal/domain/auth"
	"github.com/cartloom/promo-engine/internal/domain/promo"
	"github.com/cartloom/promo-engine/internal/repository"
	"github.com/cartloom/promo-engine/pkg/health"
	"github.com/cartloom/promo-engine/pkg/httpmiddleware"
)

// Run wires every dependency together and serves HTTP until ctx is
// cancelled. It is the only place where storage, domain services and the
// API surface meet.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "migrate")
	}

	healthSvc := health.NewService(health.Options{})
	healthSvc.Readiness("postgres", health.PingDatabase(pool))
	healthSvc.Liveness("goroutines", health.GoroutineCeiling(10000))
	healthSvc.Liveness("gc_pause", health.GCPauseCeiling(time.Second))
	go healthSvc.Watch(ctx)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(buildRouter(ctx, pool, cfg, healthSvc), "promo-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	done := make(chan struct{})
	go drainThenStop(ctx, lg, cfg.Graceful, server, healthSvc, done)

	healthSvc.Ready()
	lg.Info("listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	<-done
	return nil
}

// buildRouter assembles the repository, domain and transport layers on top
// of one pgx pool.
func buildRouter(ctx context.Context, pool *pgxpool.Pool, cfg *Config, healthSvc *health.Service) http.Handler {
	discounts := repository.NewDiscountRepository(pool)
	usage := repository.NewUsageRepository(pool)
	profiles := repository.NewProfileRepository(pool)
	abtests := repository.NewABTestRepository(pool)
	apikeys := repository.NewAPIKeyRepository(pool)

	engine := promo.NewService(discounts, usage, profiles, cfg.Stacking.Policy())
	assigner := abtest.NewAssigner(abtests)
	verifier := auth.NewVerifier(apikeys, []byte(cfg.APIKeyPepper))

	h := api.NewHandler(engine, assigner, abtests, verifier)
	return api.NewRouter(ctx, api.RouterConfig{
		CORS: httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		},
		RateLimit: httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		},
	}, h, healthSvc)
}

// drainThenStop runs once ctx is cancelled: drop readiness, give load
// balancers cfg.ReadinessDelay to notice, then shut the listener down.
func drainThenStop(ctx context.Context, lg *zap.Logger, cfg GracefulConfig, server *http.Server, healthSvc *health.Service, done chan<- struct{}) {
	defer close(done)
	<-ctx.Done()

	healthSvc.Drain()
	lg.Info("draining", zap.Duration("delay", cfg.ReadinessDelay))
	time.Sleep(cfg.ReadinessDelay)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(stopCtx); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
}
