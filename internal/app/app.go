// Package app assembles the application: configuration, logging,
// telemetry, storage, the license core, services, and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pharmapos/internal/auth"
	"pharmapos/internal/config"
	"pharmapos/internal/infrastructure"
	"pharmapos/internal/license"
	custommw "pharmapos/internal/middleware"
	"pharmapos/internal/security"
	"pharmapos/internal/services"
	"pharmapos/internal/store"
	handlers "pharmapos/internal/transport/http"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Application is the dependency container for the server process.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Router    *chi.Mux
	Server    *http.Server
	Store     store.Store
	Authority *license.Authority
	Providers *infrastructure.OTelProviders

	closeStore func() error
}

// NewApplication loads configuration and wires every component.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("application starting",
		slog.String("version", Version),
		slog.Int("port", cfg.Server.Port))

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	app := &Application{
		Config:    cfg,
		Logger:    logger,
		Providers: providers,
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	codec, err := license.NewKeyCodec([]byte(cfg.License.SigningSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key codec: %w", err)
	}
	app.Authority = license.NewAuthority(app.Store, codec, logger)

	fingerprint := security.NewFingerprintManager()
	licenseSvc := services.NewLicenseService(app.Store, app.Authority, fingerprint, logger)
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authSvc := services.NewAuthService(app.Store, licenseSvc, tokens, logger)
	healthSvc := services.NewHealthService(app.Store, Version)

	if err := app.seedAdmin(context.Background()); err != nil {
		return nil, err
	}

	gateMetrics, err := custommw.NewGateMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to register gate metrics: %w", err)
	}
	gate := custommw.NewLicenseGate(authSvc, logger, gateMetrics)
	limiter := custommw.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Enabled)

	app.Router = app.buildRouter(
		handlers.NewAuthHandler(authSvc, logger),
		handlers.NewLicenseHandler(licenseSvc, logger),
		handlers.NewAdminHandler(app.Authority, cfg.Auth.BcryptCost, logger),
		handlers.NewHealthHandler(healthSvc, logger),
		gate, limiter,
	)
	app.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

func (a *Application) initStore() error {
	if a.Config.Database.InMemory {
		a.Logger.Warn("using in-memory store; data will not survive restarts")
		a.Store = store.NewMemoryStore()
		a.closeStore = func() error { return nil }
		return nil
	}

	s, err := store.OpenSQLite(a.Config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.Logger.Info("database opened", slog.String("path", a.Config.Database.Path))
	a.Store = s
	a.closeStore = s.Close
	return nil
}

// seedAdmin creates the configured back-office account on first start.
func (a *Application) seedAdmin(ctx context.Context) error {
	cfg := a.Config.Auth
	if cfg.AdminEmail == "" {
		return nil
	}
	if cfg.AdminPassword == "" {
		return fmt.Errorf("auth.admin_password is required when auth.admin_email is set")
	}

	hash, err := auth.HashPassword(cfg.AdminPassword, a.Config.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	err = a.Store.CreateUser(ctx, &store.User{
		ID:           uuid.New(),
		PharmacyID:   uuid.Nil,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         "admin",
	})
	if errors.Is(err, store.ErrDuplicateEmail) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to seed admin account: %w", err)
	}
	a.Logger.Info("admin account seeded", slog.String("email", cfg.AdminEmail))
	return nil
}

func (a *Application) buildRouter(
	authH *handlers.AuthHandler,
	licenseH *handlers.LicenseHandler,
	adminH *handlers.AdminHandler,
	healthH *handlers.HealthHandler,
	gate *custommw.LicenseGate,
	limiter *custommw.RateLimiter,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommw.RequestLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(custommw.WithTimeout(a.Config.Server.WriteTimeout))

	r.Route("/api", func(r chi.Router) {
		r.With(limiter.Handler).Mount("/auth", authH.Routes())
		r.Mount("/license", licenseH.Routes(limiter.Handler, gate.Handler))
		r.Route("/admin", func(r chi.Router) {
			r.Use(gate.Handler)
			r.Use(custommw.RequireRole("admin"))
			r.Mount("/", adminH.Routes())
		})
		r.Mount("/health", healthH.Routes())
	})

	if a.Providers.PrometheusHTTP != nil {
		r.Method(http.MethodGet, "/metrics", a.Providers.PrometheusHTTP)
	}
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled
// or a termination signal arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	if cerr := a.closeStore(); cerr != nil {
		a.Logger.Error("failed to close store", slog.String("error", cerr.Error()))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if terr := a.Providers.Shutdown(shutdownCtx); terr != nil {
		a.Logger.Error("failed to shut down telemetry", slog.String("error", terr.Error()))
	}

	a.Logger.Info("application stopped")
	return err
}
