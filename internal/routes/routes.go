package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/orbit-pay/orbit_pay/internal/bridge"
	"github.com/orbit-pay/orbit_pay/internal/config"
	"github.com/orbit-pay/orbit_pay/internal/ledger"
	"github.com/orbit-pay/orbit_pay/internal/limits"
	"github.com/orbit-pay/orbit_pay/internal/middleware"
	"github.com/orbit-pay/orbit_pay/internal/notification"
	"github.com/orbit-pay/orbit_pay/internal/transfer"
	"github.com/orbit-pay/orbit_pay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Runtime holds the background components started alongside the HTTP routes.
// The server owns their lifecycle.
type Runtime struct {
	Monitor       *bridge.Monitor
	Notifications *notification.Consumer
	Broker        *transfer.Broker
}

// Setup configures middlewares and all application routes, returning the
// background runtime for the server to start and stop.
func Setup(app *fiber.App, d Deps) (*Runtime, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
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

	// Storage backends
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB, d.Cfg.CommitTimeout)
	} else {
		store = ledger.NewInMemory()
	}
	var walletRepo wallet.Repository
	if d.DB != nil {
		walletRepo = wallet.NewPostgresRepository(d.DB)
	} else {
		walletRepo = wallet.NewMemoryRepository()
	}
	var transferRepo transfer.Repository
	if d.DB != nil {
		transferRepo = transfer.NewPostgresRepository(d.DB)
	} else {
		transferRepo = transfer.NewMemoryRepository()
	}
	var prefRepo bridge.PreferenceRepository
	if d.DB != nil {
		prefRepo = bridge.NewPostgresPreferenceRepository(d.DB)
	} else {
		prefRepo = bridge.NewMemoryPreferenceRepository()
	}

	// Services
	walletSvc := wallet.NewService(walletRepo, store)
	enforcer := limits.NewEnforcer(transferRepo)
	broker := transfer.NewBroker()
	transferSvc := transfer.NewService(store, transferRepo, walletSvc, enforcer, broker, d.Logger)
	estimator := bridge.NewEstimator(store)
	monitor := bridge.NewMonitor(prefRepo, store, transferSvc, broker, d.Cache, d.Logger)

	notifier := notification.NewLoggerNotifier(d.Logger)
	consumer := notification.NewConsumer(notifier, d.Logger)
	consumer.Start(broker.Subscribe())

	// Handlers
	walletHandler := wallet.NewHandler(walletSvc)
	transferHandler := transfer.NewHandler(transferSvc)
	bridgeHandler := bridge.NewHandler(estimator, monitor, prefRepo)

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

	RegisterWalletRoutes(api, walletHandler)
	RegisterTransferRoutes(api, transferHandler)
	RegisterBridgeRoutes(api, bridgeHandler)

	return &Runtime{Monitor: monitor, Notifications: consumer, Broker: broker}, nil
}
