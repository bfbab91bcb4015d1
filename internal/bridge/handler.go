package bridge

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/orbit-pay/orbit_pay/internal/ledger"
	"github.com/orbit-pay/orbit_pay/internal/transfer"
	"github.com/orbit-pay/orbit_pay/internal/validation"
)

// Handler exposes the bridge estimate, preference and auto-check endpoints.
type Handler struct {
	estimator *Estimator
	monitor   *Monitor
	prefs     PreferenceRepository
}

// NewHandler constructs a bridge handler.
func NewHandler(estimator *Estimator, monitor *Monitor, prefs PreferenceRepository) *Handler {
	return &Handler{estimator: estimator, monitor: monitor, prefs: prefs}
}

type estimateRequest struct {
	WalletID  string  `json:"wallet_id"`
	Amount    float64 `json:"amount"`
	Direction string  `json:"direction"`
}

// Estimate prices a prospective bridge transfer.
func (h *Handler) Estimate(c *fiber.Ctx) error {
	var req estimateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	err := validation.Apply(
		validation.Rule{Field: "wallet_id", Check: validation.Required(req.WalletID)},
		validation.Rule{Field: "amount", Check: validation.PositiveAmount(req.Amount)},
		validation.Rule{Field: "direction", Check: validation.OneOf(req.Direction, transfer.DirectionPrimaryToCustodial, transfer.DirectionCustodialToPrimary)},
	)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	est, err := h.estimator.Estimate(c.UserContext(), req.WalletID, validation.MinorUnits(req.Amount), req.Direction)
	if err != nil {
		return bridgeError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"direction":            est.Direction,
		"amount":               est.Amount,
		"fee":                  est.Fee,
		"time_seconds":         est.TimeSeconds,
		"instant":              est.Instant,
		"source_balance":       est.SourceBalance,
		"sufficient_balance":   est.SufficientBalance,
		"estimated_completion": est.EstimatedCompletion.Format(time.RFC3339Nano),
	})
}

type autoCheckRequest struct {
	WalletID string `json:"wallet_id"`
}

// AutoCheck runs the auto-bridge evaluation for one wallet on demand.
func (h *Handler) AutoCheck(c *fiber.Ctx) error {
	var req autoCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Apply(validation.Rule{Field: "wallet_id", Check: validation.Required(req.WalletID)}); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.monitor.CheckWallet(c.UserContext(), req.WalletID)
	if err != nil {
		return bridgeError(err)
	}

	body := fiber.Map{
		"wallet_id": res.WalletID,
		"triggered": res.Triggered,
		"balances": fiber.Map{
			"primary":   res.Primary,
			"custodial": res.Custodial,
		},
	}
	if res.Triggered {
		body["transfer_id"] = res.TransferID
		body["direction"] = res.Direction
		body["amount"] = res.Amount
	} else {
		body["message"] = res.Reason
	}
	return c.Status(http.StatusOK).JSON(body)
}

type preferenceRequest struct {
	WalletID        string  `json:"wallet_id"`
	AutoBridge      bool    `json:"auto_bridge_enabled"`
	PreferredLedger string  `json:"preferred_ledger"`
	Threshold       float64 `json:"bridge_threshold"`
	MinBridgeAmount float64 `json:"min_bridge_amount"`
	MaxBridgeAmount float64 `json:"max_bridge_amount"`
}

// SetPreference installs or replaces a wallet's auto-bridge configuration.
func (h *Handler) SetPreference(c *fiber.Ctx) error {
	var req preferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	err := validation.Apply(
		validation.Rule{Field: "wallet_id", Check: validation.Required(req.WalletID)},
		validation.Rule{Field: "preferred_ledger", Check: validation.OneOf(req.PreferredLedger, string(ledger.KindPrimary), string(ledger.KindCustodial))},
		validation.Rule{Field: "bridge_threshold", Check: validation.PositiveAmount(req.Threshold)},
	)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	pref := LinkPreference{
		WalletID:        req.WalletID,
		AutoBridge:      req.AutoBridge,
		PreferredLedger: ledger.Kind(req.PreferredLedger),
		Threshold:       validation.MinorUnits(req.Threshold),
		MinBridgeAmount: validation.MinorUnits(req.MinBridgeAmount),
		MaxBridgeAmount: validation.MinorUnits(req.MaxBridgeAmount),
	}
	if err := h.prefs.Upsert(c.UserContext(), pref); err != nil {
		return bridgeError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallet_id": pref.WalletID, "auto_bridge_enabled": pref.AutoBridge})
}

// GetPreference returns a wallet's auto-bridge configuration.
func (h *Handler) GetPreference(c *fiber.Ctx) error {
	pref, err := h.prefs.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return bridgeError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":           pref.WalletID,
		"auto_bridge_enabled": pref.AutoBridge,
		"preferred_ledger":    string(pref.PreferredLedger),
		"bridge_threshold":    pref.Threshold,
		"min_bridge_amount":   pref.MinBridgeAmount,
		"max_bridge_amount":   pref.MaxBridgeAmount,
	})
}

func bridgeError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidDirection):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPreferenceNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "insufficient funds")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
