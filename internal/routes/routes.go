package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/votegate/votegate/internal/alert"
	"github.com/votegate/votegate/internal/biometric"
	"github.com/votegate/votegate/internal/config"
	"github.com/votegate/votegate/internal/directory"
	"github.com/votegate/votegate/internal/fraud"
	"github.com/votegate/votegate/internal/ledger"
	"github.com/votegate/votegate/internal/middleware"
	"github.com/votegate/votegate/internal/operator"
	"github.com/votegate/votegate/internal/report"
	"github.com/votegate/votegate/internal/verification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Backends: Postgres when configured, in-memory in dev. The Postgres
	// wiring also installs the transactional vote committer so the terminal
	// step's three writes land atomically.
	var (
		voterRepo     directory.Repository
		ledgerBackend ledger.Ledger
		sessions      verification.SessionStore
		committer     verification.VoteCommitter
	)
	if d.DB != nil {
		pgVoters := directory.NewPostgresRepository(d.DB)
		pgLedger := ledger.NewPostgresLedger(d.DB)
		pgSessions := verification.NewPostgresSessionStore(d.DB)
		voterRepo, ledgerBackend, sessions = pgVoters, pgLedger, pgSessions
		committer = verification.NewPostgresVoteCommitter(d.DB, pgLedger, pgVoters, pgSessions)
	} else {
		voterRepo = directory.NewMemoryRepository()
		ledgerBackend = ledger.NewInMemory()
		sessions = verification.NewMemorySessionStore()
	}

	var monitor fraud.Monitor
	if d.DB != nil {
		monitor = fraud.NewPostgresMonitor(d.DB)
	} else {
		monitor = fraud.NewInMemory()
	}

	var operatorRepo operator.Repository
	if d.DB != nil {
		operatorRepo = operator.NewPostgresRepository(d.DB)
	} else {
		operatorRepo = operator.NewMemoryRepository()
	}

	policy := verification.NewPolicy(
		biometric.NewHeuristicFaceMatcher(),
		biometric.NewHeuristicIrisMatcher(),
		biometric.NewTextDocumentReader(),
		verification.Thresholds{
			Face:     d.Cfg.FaceThreshold,
			Liveness: d.Cfg.LivenessThreshold,
			IrisEye:  d.Cfg.IrisEyeThreshold,
			IrisConf: d.Cfg.IrisConfThreshold,
		},
	)
	notifier := alert.NewLoggerNotifier(d.Logger)
	verifySvc := verification.NewService(voterRepo, sessions, ledgerBackend, monitor, policy, notifier, d.Logger, d.Cfg.MatcherTimeout)
	if committer != nil {
		verifySvc = verifySvc.WithVoteCommitter(committer)
	}
	reportSvc := report.NewService(voterRepo, ledgerBackend, monitor, time.Hour)
	operatorSvc := operator.NewService(operatorRepo, d.Cfg.OperatorJWTSecret, d.Cfg.OperatorTokenTTL)

	if d.Cfg.IsDev() {
		ctx := context.Background()
		if err := directory.Seed(ctx, voterRepo); err != nil {
			return fmt.Errorf("seed directory: %w", err)
		}
		if _, err := operatorSvc.Register(ctx, "admin", "change-me", "admin"); err != nil {
			return fmt.Errorf("seed operator: %w", err)
		}
	}

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Voter-facing verification endpoints are public: the booth terminal
	// itself carries no voter credentials.
	voterHandler := NewVoterHandler(verifySvc, d.Logger)
	rateLimiter := middleware.VerifyRateLimit(d.Cache, 10)
	RegisterVoterRoutes(api, voterHandler, rateLimiter)

	// Operator login is public; everything administrative sits behind it.
	adminHandler := NewAdminHandler(voterRepo, ledgerBackend, monitor, reportSvc, operatorSvc)
	api.Post("/operator/login", adminHandler.Login)

	authmw := middleware.OperatorAuth(operatorSvc)
	protected := api.Group("", authmw)
	RegisterAdminRoutes(protected, adminHandler)

	return nil
}
