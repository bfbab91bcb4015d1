package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/orbit-pay/orbit_pay/internal/transfer"
)

// RegisterTransferRoutes wires the transfer lifecycle endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	r.Post("/transfers", h.Initiate)
	r.Get("/transfers/:transferId", h.Get)
	r.Post("/transfers/:transferId/cancel", h.Cancel)
	r.Get("/wallets/:walletId/transfers", h.History)
}
