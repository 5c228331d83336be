package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/preop/intake/internal/config"
	"github.com/preop/intake/internal/domain/patient"
	"github.com/preop/intake/internal/domain/questionnaire"
	"github.com/preop/intake/internal/domain/spreadsheet"
	"github.com/preop/intake/internal/domain/staff"
	"github.com/preop/intake/internal/platform/auth"
	"github.com/preop/intake/internal/platform/blobstore"
	"github.com/preop/intake/internal/platform/db"
	"github.com/preop/intake/internal/platform/middleware"
	"github.com/preop/intake/internal/platform/notification"
	"github.com/preop/intake/internal/platform/webhook"
)

const requestTimeout = 60 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "preop-server",
		Short: "Pre-operative intake server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
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
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

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

			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	statusCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage staff accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			isAdmin, _ := cmd.Flags().GetBool("admin")
			isSuper, _ := cmd.Flags().GetBool("superadmin")
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			if password == "" {
				password = os.Getenv("PREOP_NEW_PASSWORD")
			}

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

			svc := staff.NewService(staff.NewRepo(pool), nil, newLogger(cfg.Env))
			u, err := svc.Create(ctx, staff.NewUser{
				Username:     username,
				Password:     password,
				Name:         name,
				IsAdmin:      isAdmin,
				IsSuperAdmin: isSuper,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created user %s (admin=%t superadmin=%t)\n", u.Username, u.IsAdmin, u.IsSuperAdmin)
			return nil
		},
	}
	createCmd.Flags().String("username", "", "Login name")
	createCmd.Flags().String("password", "", "Password (or PREOP_NEW_PASSWORD)")
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().Bool("admin", false, "Grant access to the admin API")
	createCmd.Flags().Bool("superadmin", false, "Grant superadmin")

	cmd.AddCommand(createCmd)
	return cmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// signingKey returns the configured staff token key, or a random one when
// none is set. Tokens signed with a random key do not survive a restart.
func signingKey(configured string) ([]byte, bool, error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

// handlers are the route owners mounted by newEcho.
type handlers struct {
	staff         *staff.Handler
	patients      *patient.Handler
	spreadsheet   *spreadsheet.Handler
	questionnaire *questionnaire.Handler
	uploads       *blobstore.BlobHandler
	dbHealth      echo.HandlerFunc
}

func newEcho(cfg *config.Config, logger zerolog.Logger, issuer *auth.TokenIssuer, h handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.MaxUploadSize))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	authMW := auth.JWTMiddleware(issuer)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(issuer)
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.dbHealth != nil {
		e.GET("/health/db", h.dbHealth)
	}

	authGroup := e.Group("/auth")
	h.staff.RegisterRoutes(
		authGroup.Group("", middleware.RateLimit(middleware.LoginRateLimitConfig())),
		authGroup.Group("", authMW),
	)

	adminGroup := e.Group("/api/v1/admin", authMW, auth.RequireRole(auth.RoleAdmin))
	h.patients.RegisterRoutes(adminGroup)
	h.spreadsheet.RegisterRoutes(adminGroup)
	h.uploads.RegisterRoutes(adminGroup)

	preopGroup := e.Group("/preop", middleware.RateLimit(middleware.TokenRateLimitConfig()))
	h.questionnaire.RegisterRoutes(preopGroup)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := cfg.EnsureDirs(); err != nil {
		logger.Fatal().Err(err).Msg("failed to create storage directories")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	key, generated, err := signingKey(cfg.AuthSigningKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve signing key")
	}
	if generated {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, using a random key; staff tokens expire on restart")
	}
	issuer := auth.NewTokenIssuer(key, cfg.AuthTokenTTL)

	// Blob stores
	maxUpload := middleware.ParseSize(cfg.MaxUploadSize)
	uploads, err := blobstore.NewLocalBlobStore(cfg.UploadDir, maxUpload, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open upload store")
	}
	forms, err := blobstore.NewLocalBlobStore(cfg.FormsDir, maxUpload, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open forms store")
	}
	exports, err := blobstore.NewLocalBlobStore(cfg.OutputDir, 0, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open export store")
	}

	// Outbound notifications
	sms := notification.NewGatewaySender(notification.GatewayConfig{
		URL:      cfg.SMSAPIURL,
		UserID:   cfg.SMSUserID,
		APIKey:   cfg.SMSAPIKey,
		Sender:   cfg.SMSSender,
		TestMode: cfg.SMSTestMode,
		Timeout:  cfg.SMSTimeout,
	}, logger)
	if !cfg.SMSConfigured() {
		logger.Warn().Msg("SMS gateway not configured; sending SMS will fail")
	}
	hook := webhook.NewNotifier(cfg.WebhookURL, cfg.WebhookTimeout, logger)

	// Domain services
	patientRepo := patient.NewRepo(pool)
	answerRepo := questionnaire.NewRepo(pool)
	matcher := spreadsheet.NewMatcher(spreadsheet.ColumnMapFromConfig(cfg))

	patientSvc := patient.NewService(patientRepo, answerRepo, sms, exports, patient.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		Location:      cfg.Location(),
	}, logger)
	questionnaireSvc := questionnaire.NewService(answerRepo, patientRepo, db.NewTransactor(pool), uploads, forms, hook,
		questionnaire.Options{Steps: cfg.QuestionnaireSteps, Location: cfg.Location()}, logger)
	staffSvc := staff.NewService(staff.NewRepo(pool), issuer, logger)

	if err := staffSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Fatal().Err(err).Msg("failed to bootstrap admin account")
	}

	e := newEcho(cfg, logger, issuer, handlers{
		staff:         staff.NewHandler(staffSvc),
		patients:      patient.NewHandler(patientSvc, matcher),
		spreadsheet:   spreadsheet.NewHandler(matcher),
		questionnaire: questionnaire.NewHandler(questionnaireSvc),
		uploads:       blobstore.NewBlobHandler(uploads),
		dbHealth:      db.HealthHandler(pool),
	})

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
