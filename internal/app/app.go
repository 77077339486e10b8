package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"

	"scanpro/internal/config"
	"scanpro/internal/features"
	"scanpro/internal/infrastructure"
	"scanpro/internal/license"
	"scanpro/internal/middleware"
	"scanpro/internal/services"
	transport "scanpro/internal/transport/http"
)

// Application wires the license engine, HTTP surface, and the periodic
// validation scheduler together.
type Application struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *infrastructure.Telemetry
	manager   *license.Manager
	service   services.LicenseService
	registry  *features.Registry
	server    *http.Server
}

// New builds the application from configuration.
func New(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	telemetry, err := infrastructure.InitTelemetry()
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	metrics, err := license.NewLicenseMetrics(telemetry.Meter)
	if err != nil {
		return nil, fmt.Errorf("init license metrics: %w", err)
	}

	store, err := buildStore(cfg.License, logger)
	if err != nil {
		return nil, err
	}

	client := license.NewHTTPClient(cfg.Authority.BaseURL, cfg.Authority.Timeout, logger)

	manager, err := license.NewManager(client, store, logger, license.Options{
		SiteID:   DeriveSiteID(cfg.License.SiteURL),
		CacheTTL: cfg.License.CacheTTL,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("init license manager: %w", err)
	}

	service := services.NewLicenseService(manager, logger)
	registry := features.NewRegistry(manager, logger)

	app := &Application{
		cfg:       cfg,
		logger:    logger,
		telemetry: telemetry,
		manager:   manager,
		service:   service,
		registry:  registry,
	}
	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

func buildStore(cfg config.LicenseConfig, logger *slog.Logger) (license.Store, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		store, err := license.NewSQLiteStore(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite license store: %w", err)
		}
		return store, nil
	default:
		secret, err := loadOrCreateStoreSecret(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		return license.NewFileStore(cfg.StorePath, secret, logger), nil
	}
}

// loadOrCreateStoreSecret returns the secret keying the license file's
// tamper signature. It is generated per install on first run and persisted
// beside the store with owner-only permissions.
func loadOrCreateStoreSecret(storePath string) ([]byte, error) {
	path := storePath + ".key"
	if data, err := os.ReadFile(path); err == nil && len(data) >= 32 {
		return data, nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate license store secret: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create license store dir: %w", err)
		}
	}
	if err := os.WriteFile(path, secret, 0600); err != nil {
		return nil, fmt.Errorf("write license store secret: %w", err)
	}
	return secret, nil
}

// DeriveSiteID produces the stable site identifier sent to the license
// authority, derived from the install's base URL. Scheme and trailing
// slashes are stripped so http/https flips don't burn an activation slot.
func DeriveSiteID(siteURL string) string {
	normalized := strings.TrimSpace(strings.ToLower(siteURL))
	if u, err := url.Parse(normalized); err == nil && u.Host != "" {
		normalized = u.Host + strings.TrimRight(u.Path, "/")
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

func (a *Application) router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(a.traceMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	gate := middleware.NewLicenseGate(a.manager, a.logger)
	gate.SetMetrics(a.gateCounters())
	r.Use(gate.Handler)

	licenseHandler := transport.NewLicenseHandler(a.service, a.logger)
	healthHandler := transport.NewHealthHandler(a.service, a.logger)
	featuresHandler := transport.NewFeaturesHandler(a.registry, a.logger)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/license", licenseHandler.Routes())
		r.Mount("/health", healthHandler.Routes())
		r.Mount("/features", featuresHandler.Routes())
	})
	r.Method(http.MethodGet, "/metrics", a.telemetry.PrometheusHTTP)

	return r
}

// traceMiddleware promotes the chi request ID into the trace-id context so
// logs across the request share one identifier.
func (a *Application) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
			ctx = infrastructure.WithTraceID(ctx, reqID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Application) gateCounters() (metric.Int64Counter, metric.Int64Counter) {
	gated, err := a.telemetry.Meter.Int64Counter("gate.requests.total",
		metric.WithDescription("Requests evaluated by the license gate"))
	if err != nil {
		a.logger.Warn("failed to create gate counter", slog.String("error", err.Error()))
	}
	denied, err := a.telemetry.Meter.Int64Counter("gate.requests.denied",
		metric.WithDescription("Requests denied by the license gate"))
	if err != nil {
		a.logger.Warn("failed to create gate denied counter", slog.String("error", err.Error()))
	}
	return gated, denied
}

// Run starts the HTTP server and the validation scheduler, blocking until
// shutdown.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.runScheduler(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting",
			slog.String("addr", a.server.Addr),
			slog.String("authority", a.cfg.Authority.BaseURL),
		)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
	}
	return infrastructure.CloseLogger()
}

// runScheduler invokes the engine's scheduled tick on the configured
// cadence. The first tick fires shortly after startup so a stale record is
// refreshed without waiting a full interval.
func (a *Application) runScheduler(ctx context.Context) {
	initial := time.NewTimer(30 * time.Second)
	defer initial.Stop()

	select {
	case <-ctx.Done():
		return
	case <-initial.C:
		a.manager.OnScheduledTick(ctx)
	}

	ticker := time.NewTicker(a.cfg.Authority.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.manager.OnScheduledTick(ctx)
		}
	}
}
