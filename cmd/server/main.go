package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"devsettings/internal/api"
	"devsettings/internal/audit"
	"devsettings/internal/auth"
	"devsettings/internal/config"
	"devsettings/internal/logger"
	"devsettings/internal/metrics"
	"devsettings/internal/permissions"
	"devsettings/internal/storage"
	"devsettings/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Logger
	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "devsettings"})
	defer logger.Sync() //nolint:errcheck
	log := logger.L()
	log.Info("config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("driver", cfg.Database.Driver),
		zap.String("db", cfg.Database.Name))

	// 3. Permission catalog sanity check
	if err := permissions.Default.Validate(); err != nil {
		return fmt.Errorf("permission catalog: %w", err)
	}

	// 4. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	// 5. Bootstrap system tables and the first admin
	if err := db.Bootstrap(ctx, store.AdminSeed{
		Email:        cfg.Admin.Email,
		Password:     cfg.Admin.Password,
		Organization: cfg.Admin.Organization,
		Scopes:       permissions.Default.AllScopes(),
	}); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	log.Info("system tables ready")

	// 6. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// 7. Audit trail
	var recorder audit.Recorder = audit.Noop{}
	if cfg.Audit.Enabled {
		buf := audit.NewBuffer(db, cfg.Audit.BufferSize, cfg.Audit.FlushIntervalMs)
		defer buf.Stop()
		recorder = buf
		go cleanupAuditEvents(ctx, db, cfg.Audit.RetentionDays)
	}

	// 8. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          api.ErrorHandler,
		DisableStartupMessage: cfg.Log.Env == "prod",
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Log.Env != "prod",
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(api.RequestContext())
	app.Use(api.Metrics())

	// 9. Health and metrics
	app.Get("/health", func(c *fiber.Ctx) error {
		if err := db.DB.PingContext(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	v0 := app.Group("/api/0")

	authn := auth.Middleware(cfg.JWTSecret)

	// 10. Auth routes (login is public)
	auth.RegisterRoutes(v0, auth.NewHandler(db, cfg.JWTSecret, cfg.Server.TokenTTL), authn)

	// 11. Integration routes (auth required, audit log admin only)
	avatars := storage.NewLocalStorage(cfg.Storage.Path, cfg.Storage.MaxAvatarBytes)
	handler := api.NewHandler(db, permissions.Default, recorder, avatars)
	api.RegisterRoutes(v0, handler, authn)
	api.RegisterAuditRoutes(v0, handler, auth.RequireAdmin())

	// 12. Start server
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("starting server", zap.String("addr", addr))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func cleanupAuditEvents(ctx context.Context, db *store.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		n, err := audit.CleanupOldEvents(ctx, db, retentionDays)
		if err != nil {
			logger.L().Warn("audit cleanup failed", zap.Error(err))
		} else if n > 0 {
			logger.L().Info("audit events pruned", zap.Int64("deleted", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
