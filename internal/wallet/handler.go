package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	OwnerID       string `json:"owner_id"`
	Currency      string `json:"currency"`
	Tier          string `json:"tier"`
	LinkCustodial bool   `json:"link_custodial"`
}

type walletResponse struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Currency string `json:"currency"`
	Tier     string `json:"tier"`
	Status   string `json:"status"`
}

// Create provisions a wallet for the given owner.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	wallet, err := h.service.Create(c.UserContext(), CreateInput{
		OwnerID:       req.OwnerID,
		Currency:      req.Currency,
		Tier:          req.Tier,
		LinkCustodial: req.LinkCustodial,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(walletResponse{
		ID:       wallet.ID,
		OwnerID:  wallet.OwnerID,
		Currency: wallet.Currency,
		Tier:     wallet.Tier,
		Status:   wallet.Status,
	})
}

// Balance returns the wallet balances across both ledgers.
func (h *Handler) Balance(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	balances, err := h.service.Balances(c.UserContext(), walletID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":         balances.WalletID,
		"primary_balance":   balances.Primary,
		"custodial_balance": balances.Custodial,
		"combined_balance":  balances.Combined(),
		"timestamp":         balances.AsOf,
	})
}
