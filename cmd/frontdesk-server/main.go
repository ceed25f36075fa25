package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mediflow/frontdesk/internal/config"
	"github.com/mediflow/frontdesk/internal/domain/appointment"
	"github.com/mediflow/frontdesk/internal/domain/patient"
	"github.com/mediflow/frontdesk/internal/platform/auth"
	"github.com/mediflow/frontdesk/internal/platform/db"
	"github.com/mediflow/frontdesk/internal/platform/middleware"
	"github.com/mediflow/frontdesk/internal/platform/records"
	"github.com/mediflow/frontdesk/internal/platform/records/memory"
	"github.com/mediflow/frontdesk/internal/platform/records/postgres"
	"github.com/mediflow/frontdesk/internal/platform/records/remote"
	"github.com/mediflow/frontdesk/internal/platform/sandbox"
	"github.com/mediflow/frontdesk/internal/session"
	"github.com/mediflow/frontdesk/internal/web"
)

const version = "0.1.0"

// sweepInterval is how often expired sessions are dropped.
const sweepInterval = 5 * time.Minute

func main() {
	rootCmd := &cobra.Command{
		Use:   "frontdesk-server",
		Short: "Hospital front desk: patients and appointments",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the front desk server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations (postgres backend)",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetInt("to")

			pool, closePool, err := openPool()
			if err != nil {
				return err
			}
			defer closePool()

			ctx := context.Background()
			migrator := db.NewMigrator(pool, db.Migrations())
			var count int
			if to > 0 {
				count, err = migrator.UpTo(ctx, to)
			} else {
				count, err = migrator.Up(ctx)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, closePool, err := openPool()
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(context.Background())
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
					if s.Modified {
						status = "modified"
					}
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo patients and appointments into the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.GeneratedPatients, _ = cmd.Flags().GetInt("patients")
			seedCfg.AppointmentsPerPatient, _ = cmd.Flags().GetInt("per-patient")
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")
			seedCfg.Force, _ = cmd.Flags().GetBool("force")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.ResolvedBackend() == config.BackendMemory {
				return errors.New("seed needs a persistent backend; set DATABASE_URL or REMOTE_API_URL")
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			gw, pool, err := buildGateway(ctx, cfg)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			res, err := seedDemo(ctx, gw, cfg, logger, seedCfg)
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Println("Patients already exist; nothing seeded. Use --force to seed anyway.")
				return nil
			}
			fmt.Printf("Seeded %d patient(s) and %d appointment(s) in %s.\n", res.Patients, res.Appointments, res.Duration)
			return nil
		},
	}
	def := sandbox.DefaultSeedConfig()
	cmd.Flags().Int("patients", def.GeneratedPatients, "Generated patients on top of the fixtures")
	cmd.Flags().Int("per-patient", def.AppointmentsPerPatient, "Generated appointments per generated patient")
	cmd.Flags().Int64("seed", 0, "Random seed (0 uses the clock)")
	cmd.Flags().Bool("force", false, "Seed even when patients exist")
	return cmd
}

func openPool() (*pgxpool.Pool, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	pool, err := db.Open(context.Background(), cfg.DatabaseURL, poolOptions(cfg))
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: cfg.DBConnTimeout,
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// buildGateway opens the configured record store. The pool is returned for
// postgres so callers can close it and probe it.
func buildGateway(ctx context.Context, cfg *config.Config) (records.Gateway, *pgxpool.Pool, error) {
	schema := records.FrontDeskSchema()
	switch cfg.ResolvedBackend() {
	case config.BackendRemote:
		logger := newLogger(cfg).With().Str("component", "records").Logger()
		gw, err := remote.New(remote.Config{
			BaseURL:   cfg.RemoteAPIURL,
			ProjectID: cfg.RemoteProject,
			PublicKey: cfg.RemoteKey,
			Timeout:   cfg.RemoteTimeout,
			Logger:    &logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("remote backend: %w", err)
		}
		return gw, nil, nil
	case config.BackendPostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL, poolOptions(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		return postgres.New(pool, schema), pool, nil
	default:
		return memory.New(schema), nil, nil
	}
}

// buildIdentity picks the sign-in provider for the configured mode.
// Standalone accounts live in postgres when a pool is available.
func buildIdentity(cfg *config.Config, pool *pgxpool.Pool) (auth.IdentityProvider, error) {
	switch cfg.ResolvedAuthMode() {
	case auth.ModeExternal:
		ext := auth.ExternalConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}
		if cfg.AuthSecret != "" {
			ext.SigningKey = []byte(cfg.AuthSecret)
		}
		return auth.NewExternalProvider(ext)
	case auth.ModeStandalone:
		if pool != nil {
			return auth.NewStandaloneProvider(auth.NewPGDirectory(pool), 0), nil
		}
		return auth.NewStandaloneProvider(auth.NewMemoryDirectory(), 0), nil
	default:
		return auth.NewDevProvider(), nil
	}
}

func seedDemo(ctx context.Context, gw records.Gateway, cfg *config.Config, logger zerolog.Logger, seedCfg sandbox.SeedConfig) (*sandbox.SeedResult, error) {
	fx, err := sandbox.DemoFixtures()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return sandbox.NewSeeder(gw, loc, logger).Run(ctx, fx, seedCfg)
}

// app is a fully wired server ready to start.
type app struct {
	echo     *echo.Echo
	sessions *session.Manager
}

// newApp wires middleware, the JSON API, the pages and the health checks
// around gw. pool may be nil for backends without a database.
func newApp(cfg *config.Config, logger zerolog.Logger, gw records.Gateway, identity auth.IdentityProvider, pool *pgxpool.Pool) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	patients := patient.NewService(gw)
	appointments := appointment.NewService(gw, loc)
	sessions := session.NewManager(cfg.SessionTTL, logger, session.WithSecureCookie(cfg.IsProduction()))

	site, err := web.New(web.Deps{
		Patients:     patients,
		Appointments: appointments,
		Sessions:     sessions,
		Identity:     identity,
		Logger:       logger,
		PageSize:     cfg.PageSize,
		FetchLimit:   cfg.FetchLimit,
		WidgetURL:    cfg.AuthWidgetURL,
		ClientID:     cfg.AuthAudience,
		Version:      version,
	})
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(middleware.SecurityHeaders(middleware.SecurityConfig{
		WidgetOrigins: originsOf(cfg.AuthWidgetURL, cfg.AuthIssuer),
		HSTS:          cfg.IsProduction(),
		LogoutPath:    "/logout",
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	// API group
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		WritesOnly:        true,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	var pinger db.Pinger
	if pool != nil {
		pinger = pool
	}
	e.GET("/health/db", db.HealthHandler(pinger, cfg.ResolvedBackend()))

	// Pages, sessions and session-scoped API
	site.Mount(e, apiV1)

	// Record API
	patient.NewHandler(patients).RegisterRoutes(apiV1)
	appointment.NewHandler(appointments).RegisterRoutes(apiV1)

	// Demo data reseeding, development only
	if cfg.IsDev() {
		sandbox.NewSeedHandler(sandbox.NewSeeder(gw, loc, logger)).RegisterRoutes(apiV1)
	}

	return &app{echo: e, sessions: sessions}, nil
}

// originsOf reduces URLs to scheme://host for the content policy.
func originsOf(raw ...string) []string {
	var out []string
	for _, r := range raw {
		if r == "" {
			continue
		}
		u, err := url.Parse(r)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		out = append(out, u.Scheme+"://"+u.Host)
	}
	return out
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	logger := newLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Record store
	ctx := context.Background()
	gw, pool, err := buildGateway(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open record store")
	}
	if pool != nil {
		defer pool.Close()
		logger.Info().Msg("connected to database")
	}
	logger.Info().Str("backend", cfg.ResolvedBackend()).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("record store ready")

	identity, err := buildIdentity(cfg, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure sign-in")
	}

	if cfg.SeedDemoData && cfg.ResolvedBackend() == config.BackendMemory {
		res, err := seedDemo(ctx, gw, cfg, logger, sandbox.DefaultSeedConfig())
		if err != nil {
			logger.Error().Err(err).Msg("demo seed failed")
		} else {
			logger.Info().Int("patients", res.Patients).Int("appointments", res.Appointments).Msg("demo data loaded")
		}
	}

	a, err := newApp(cfg, logger, gw, identity, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	a.sessions.Start(sweepCtx, sweepInterval)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	a.sessions.Stop()
	logger.Info().Msg("server stopped")
	return nil
}
