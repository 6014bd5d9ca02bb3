package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lims/lims/internal/config"
	"github.com/lims/lims/internal/domain/catalog"
	"github.com/lims/lims/internal/domain/directory"
	"github.com/lims/lims/internal/domain/orders"
	"github.com/lims/lims/internal/domain/samples"
	"github.com/lims/lims/internal/platform/auth"
	"github.com/lims/lims/internal/platform/clerk"
	"github.com/lims/lims/internal/platform/db"
	"github.com/lims/lims/internal/platform/middleware"
	"github.com/lims/lims/internal/platform/reporting"
)

// The adapters below bridge the domain services to the narrow resolver
// interfaces their consumers declare, avoiding circular imports between the
// domain packages. They translate "not found" into the (nil, nil) contract
// the resolvers specify.

type ordersAnalysisAdapter struct {
	svc *catalog.Service
}

func (a *ordersAnalysisAdapter) ResolveAnalysis(ctx context.Context, id uuid.UUID) (*orders.AnalysisInfo, error) {
	analysis, err := a.svc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &orders.AnalysisInfo{Name: analysis.Name, Cost: analysis.Cost}, nil
}

type ordersUserAdapter struct {
	svc *directory.Service
}

func (a *ordersUserAdapter) ResolveUser(ctx context.Context, id uuid.UUID) (*orders.PatientInfo, error) {
	user, err := a.svc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &orders.PatientInfo{Name: user.Name, Email: user.Email}, nil
}

type samplesAnalysisAdapter struct {
	svc *catalog.Service
}

func (a *samplesAnalysisAdapter) ResolveAnalysis(ctx context.Context, id uuid.UUID) (*samples.AnalysisRef, error) {
	analysis, err := a.svc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	params := make([]samples.ParamTemplate, 0, len(analysis.Parameters))
	for _, p := range analysis.Parameters {
		params = append(params, samples.ParamTemplate{
			Name:           p.Name,
			Unit:           p.Unit,
			ReferenceRange: p.ReferenceRange,
		})
	}
	return &samples.AnalysisRef{
		Name:        analysis.Name,
		Description: analysis.Description,
		Parameters:  params,
	}, nil
}

type samplesOrderAdapter struct {
	svc *orders.Service
}

func (a *samplesOrderAdapter) ResolveOrder(ctx context.Context, id uuid.UUID) (*samples.OrderRef, error) {
	o, err := a.svc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		ids = append(ids, li.AnalysisID)
	}
	return &samples.OrderRef{UserID: o.UserID, AnalysisIDs: ids}, nil
}

type samplesUserAdapter struct {
	svc *directory.Service
}

func (a *samplesUserAdapter) ResolveUser(ctx context.Context, id uuid.UUID) (*samples.UserRef, error) {
	user, err := a.svc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &samples.UserRef{Name: user.Name, Email: user.Email}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "lims-server",
		Short: "Clinical lab management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Domain services
	catalogSvc := catalog.NewService(catalog.NewRepoPG(pool))
	directorySvc := directory.NewService(directory.NewRepoPG(pool))
	ordersSvc := orders.NewService(
		orders.NewRepoPG(pool),
		&ordersAnalysisAdapter{svc: catalogSvc},
		&ordersUserAdapter{svc: directorySvc},
	)
	samplesSvc := samples.NewService(
		samples.NewRepoPG(pool),
		db.NewTxManager(pool),
		&samplesAnalysisAdapter{svc: catalogSvc},
		&samplesOrderAdapter{svc: ordersSvc},
		&samplesUserAdapter{svc: directorySvc},
	)
	reportingSvc := reporting.NewService(reporting.NewRepoPG(pool))

	// Clerk webhook, authenticated by signature rather than bearer token
	clerkHandler := clerk.NewHandler(cfg.ClerkWebhookSecret, directorySvc, logger)
	clerkHandler.RegisterRoutes(e)

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)
	directory.NewHandler(directorySvc).RegisterRoutes(apiV1)
	orders.NewHandler(ordersSvc).RegisterRoutes(apiV1)
	samples.NewHandler(samplesSvc).RegisterRoutes(apiV1)
	reporting.NewHandler(reportingSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
