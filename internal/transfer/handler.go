package transfer

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/orbit-pay/orbit_pay/internal/ledger"
	"github.com/orbit-pay/orbit_pay/internal/limits"
	"github.com/orbit-pay/orbit_pay/internal/validation"
)

// Direction labels accepted on the wire for bridge transfers.
const (
	DirectionPrimaryToCustodial = "primary_to_custodial"
	DirectionCustodialToPrimary = "custodial_to_primary"
)

// Handler exposes transfer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type initiateRequest struct {
	Kind           string  `json:"kind"`
	SourceWalletID string  `json:"source_wallet_id"`
	DestWalletID   string  `json:"dest_wallet_id"`
	Direction      string  `json:"direction"`
	Amount         float64 `json:"amount"`
	IdempotencyKey string  `json:"idempotency_key"`
	Note           string  `json:"note"`
}

type recordResponse struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	SourceWalletID string `json:"source_wallet_id"`
	DestWalletID   string `json:"dest_wallet_id"`
	SourceLedger   string `json:"source_ledger"`
	DestLedger     string `json:"dest_ledger"`
	Amount         int64  `json:"amount"`
	Fee            int64  `json:"fee"`
	Status         string `json:"status"`
	Note           string `json:"note,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`
	CreatedAt      string `json:"created_at"`
	CompletedAt    string `json:"completed_at,omitempty"`
	ProcessingSecs int64  `json:"processing_seconds,omitempty"`
}

func toResponse(rec Record) recordResponse {
	resp := recordResponse{
		ID:             rec.ID,
		Kind:           string(rec.Kind),
		SourceWalletID: rec.SourceWalletID,
		DestWalletID:   rec.DestWalletID,
		SourceLedger:   string(rec.SourceLedger),
		DestLedger:     string(rec.DestLedger),
		Amount:         rec.Amount,
		Fee:            rec.Fee,
		Status:         string(rec.Status),
		Note:           rec.Note,
		FailureReason:  rec.FailureReason,
		CreatedAt:      rec.CreatedAt.Format(time.RFC3339Nano),
	}
	if rec.CompletedAt != nil {
		resp.CompletedAt = rec.CompletedAt.Format(time.RFC3339Nano)
		resp.ProcessingSecs = rec.ProcessingSeconds()
	}
	return resp
}

// rulesFor is the declarative validation table for initiateTransfer.
func rulesFor(req initiateRequest) []validation.Rule {
	rules := []validation.Rule{
		{Field: "kind", Check: validation.OptionalOneOf(req.Kind, string(KindP2P), string(KindBridge))},
		{Field: "source_wallet_id", Check: validation.Required(req.SourceWalletID)},
		{Field: "amount", Check: validation.PositiveAmount(req.Amount)},
	}
	if req.Kind == string(KindBridge) {
		rules = append(rules,
			validation.Rule{Field: "direction", Check: validation.OneOf(req.Direction, DirectionPrimaryToCustodial, DirectionCustodialToPrimary)},
		)
	} else {
		rules = append(rules,
			validation.Rule{Field: "dest_wallet_id", Check: validation.Required(req.DestWalletID)},
			validation.Rule{Field: "dest_wallet_id", Check: validation.Different(req.SourceWalletID, req.DestWalletID)},
		)
	}
	return rules
}

// Initiate processes a P2P or bridge transfer request.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	var req initiateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Apply(rulesFor(req)...); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	input := InitiateInput{
		Kind:           Kind(req.Kind),
		SourceWalletID: req.SourceWalletID,
		DestWalletID:   req.DestWalletID,
		Amount:         validation.MinorUnits(req.Amount),
		IdempotencyKey: req.IdempotencyKey,
		Note:           req.Note,
	}
	if uid, ok := c.Locals("user_id").(string); ok {
		input.RequestorUserID = uid
	}
	if req.Kind == string(KindBridge) {
		switch req.Direction {
		case DirectionPrimaryToCustodial:
			input.SourceLedger, input.DestLedger = ledger.KindPrimary, ledger.KindCustodial
		case DirectionCustodialToPrimary:
			input.SourceLedger, input.DestLedger = ledger.KindCustodial, ledger.KindPrimary
		}
	}

	rec, err := h.service.Initiate(c.UserContext(), input)
	if err != nil {
		return transferError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(rec))
}

// Get returns the transfer status.
func (h *Handler) Get(c *fiber.Ctx) error {
	rec, err := h.service.Get(c.UserContext(), c.Params("transferId"))
	if err != nil {
		return transferError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(rec))
}

// Cancel stops a pending transfer.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	rec, err := h.service.Cancel(c.UserContext(), c.Params("transferId"))
	if err != nil {
		return transferError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(rec))
}

// History lists transfers touching a wallet, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}
	records, err := h.service.History(c.UserContext(), c.Params("walletId"), limit)
	if err != nil {
		return transferError(err)
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toResponse(rec))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transfers": out, "count": len(out)})
}

func transferError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, limits.ErrLimitExceeded):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrWalletNotFound), errors.Is(err, ErrRecordNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrWalletFrozen):
		return fiber.NewError(http.StatusForbidden, "wallet is not active")
	case errors.Is(err, ErrDuplicateTransfer), errors.Is(err, ErrNotCancellable):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, "not owner of source wallet")
	case errors.Is(err, ledger.ErrTransactionFailure):
		return fiber.NewError(http.StatusServiceUnavailable, "transfer could not be committed")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
