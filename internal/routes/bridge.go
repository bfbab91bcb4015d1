package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/orbit-pay/orbit_pay/internal/bridge"
)

// RegisterBridgeRoutes wires the bridge estimate and auto-bridge endpoints.
func RegisterBridgeRoutes(r fiber.Router, h *bridge.Handler) {
	r.Post("/bridge/estimate", h.Estimate)
	r.Post("/bridge/auto/check", h.AutoCheck)
	r.Post("/bridge/preferences", h.SetPreference)
	r.Get("/bridge/preferences/:walletId", h.GetPreference)
}
