package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/orbit-pay/orbit_pay/internal/config"
	"github.com/orbit-pay/orbit_pay/internal/routes"
)

// Server wraps the Fiber application, shared dependencies and the background
// auto-bridge monitor.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	db      *pgxpool.Pool
	cache   *redis.Client
	runtime *routes.Runtime
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	runtime, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, db: db, cache: cache, runtime: runtime}, nil
}

// Listen starts the auto-bridge monitor and the HTTP server.
func (s *Server) Listen() error {
	if err := s.runtime.Monitor.Start(s.cfg.AutoBridgeSchedule); err != nil {
		return err
	}
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server and background components.
func (s *Server) Shutdown(ctx context.Context) error {
	s.runtime.Monitor.Stop()
	s.runtime.Notifications.Stop()
	s.runtime.Broker.Close()
	return s.app.ShutdownWithContext(ctx)
}
