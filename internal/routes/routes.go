package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
	"github.com/gate-tracker/gate_tracker/internal/audit"
	"github.com/gate-tracker/gate_tracker/internal/auth"
	"github.com/gate-tracker/gate_tracker/internal/config"
	"github.com/gate-tracker/gate_tracker/internal/identity"
	"github.com/gate-tracker/gate_tracker/internal/middleware"
	"github.com/gate-tracker/gate_tracker/internal/notification"
	"github.com/gate-tracker/gate_tracker/internal/otp"
	"github.com/gate-tracker/gate_tracker/internal/progress"
	"github.com/gate-tracker/gate_tracker/internal/visitor"
)

// Deps aggregates shared dependencies required to wire routes. At most one
// of DB and SQL is set; with neither the in-memory stores are used.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	SQL      *sqlx.DB
	Cache    *redis.Client
	Logger   *slog.Logger
	Audit    audit.Sink
	Notifier notification.Notifier
	// OTPStore and LoginOTPStore override the ticket stores picked from Cache.
	OTPStore      otp.Store
	LoginOTPStore otp.Store
	// Registry receives the HTTP metrics and backs /metrics. Nil uses the
	// process-wide default registry.
	Registry *prometheus.Registry
}

type repositories struct {
	users    identity.Repository
	progress progress.Store
	visitors visitor.Repository
	backend  string
}

func (d Deps) repositories() repositories {
	switch {
	case d.DB != nil:
		return repositories{
			users:    identity.NewPostgresRepository(d.DB),
			progress: progress.NewPostgresStore(d.DB),
			visitors: visitor.NewPostgresRepository(d.DB),
			backend:  config.DriverPostgres,
		}
	case d.SQL != nil:
		return repositories{
			users:    identity.NewSQLiteRepository(d.SQL),
			progress: progress.NewSQLiteStore(d.SQL),
			visitors: visitor.NewSQLiteRepository(d.SQL),
			backend:  config.DriverSQLite,
		}
	default:
		return repositories{
			users:    identity.NewMemoryRepository(),
			progress: progress.NewMemoryStore(),
			visitors: visitor.NewMemoryRepository(),
			backend:  config.DriverMemory,
		}
	}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if !d.Cfg.IsDev() && d.DB == nil && d.SQL == nil {
		return fmt.Errorf("a database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Audit == nil {
		d.Audit = audit.NewLoggerSink(d.Logger)
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}
	if d.OTPStore == nil {
		d.OTPStore = d.ticketStore(registrationTicketPrefix)
	}
	if d.LoginOTPStore == nil {
		d.LoginOTPStore = d.ticketStore(loginTicketPrefix)
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if d.Registry != nil {
		registerer, gatherer = d.Registry, d.Registry
	}
	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registerer})
	if err != nil {
		return err
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.ClientContext())
	app.Use(helmet.New())
	app.Use(cors.New(corsConfig(d.Cfg.CORSOrigins)))
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.RequestLogger(d.Logger))
	app.Use(metrics.Handler())

	limit := func(rule middleware.Rule) fiber.Handler {
		if !rateLimited(d.Cfg) {
			return func(c *fiber.Ctx) error { return c.Next() }
		}
		return middleware.RateLimit(d.Cache, rule, d.Logger)
	}

	// Health
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	RegisterHealthRoutes(app, d)

	repos := d.repositories()
	d.Logger.Info("routes wired", slog.String("backend", repos.backend), slog.Bool("redis", d.Cache != nil))

	users := identity.NewService(repos.users, d.Cfg.BcryptCost)
	tokens := auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.JWTExpire)
	authSvc := auth.NewService(auth.Deps{
		Users:           users,
		Tickets:         d.ticketMachine(d.OTPStore),
		LoginTickets:    d.ticketMachine(d.LoginOTPStore),
		Tokens:          tokens,
		Notifier:        d.Notifier,
		Audit:           d.Audit,
		Logger:          d.Logger,
		OTPRegistration: d.Cfg.OTPRegistration(),
	})
	progressSvc := progress.NewService(repos.progress)
	visitorSvc := visitor.NewService(repos.visitors, progressSvc, d.Audit)

	// API routes
	api := app.Group("/api", limit(middleware.GeneralLimit))
	var idem fiber.Handler = func(c *fiber.Ctx) error { return c.Next() }
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	api.Get("/health", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(apperr.RequestIDKey).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"message":    "Backend is running",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	jwtmw := middleware.JWTAuth(tokens)
	RegisterAuthRoutes(api, auth.NewHandler(authSvc), jwtmw, limit)
	RegisterProgressRoutes(api, progress.NewHandler(progressSvc, progress.UserScope{LocalsKey: auth.LocalsUserID}), jwtmw, idem)
	RegisterVisitorRoutes(api, visitor.NewHandler(visitorSvc), progress.NewHandler(progressSvc, progress.VisitorScope{Touch: visitorSvc.Touch}), idem)

	return nil
}

const (
	registrationTicketPrefix = "otp:registration"
	loginTicketPrefix        = "otp:login"
)

func (d Deps) ticketStore(prefix string) otp.Store {
	if d.Cache != nil {
		return otp.NewRedisStore(d.Cache, prefix)
	}
	return otp.NewMemoryStore()
}

func (d Deps) ticketMachine(store otp.Store) *otp.Machine {
	return otp.NewMachine(store, d.Cfg.OTPTTL, d.Cfg.OTPMaxAttempts).WithSecret([]byte(d.Cfg.JWTSecret))
}

func rateLimited(cfg config.Config) bool {
	return cfg.RateLimitEnabled || !cfg.IsDev()
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key, X-Request-ID",
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = "*"
	}
	// Fiber rejects credentials combined with a wildcard origin.
	cfg.AllowCredentials = !slices.Contains(origins, "*") && len(origins) > 0
	return cfg
}
