package fxrates

import (
	schemasvc "folio-backend/internal/application/schemas"
	"folio-backend/internal/fx"
	"folio-backend/internal/pkg/response"
	"folio-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Handlers administers the FX rate table.
type Handlers struct {
	Store   *fx.Store
	Schemas *schemasvc.Service
}

// ListRates GET /api/v1/fx-rates
func (h *Handlers) ListRates(c *fiber.Ctx) error {
	rates, err := h.Store.ListRates(c.UserContext())
	if err != nil {
		return err
	}
	return response.Success(c, "FX rates fetched successfully", rates, nil)
}

type setRateRequest struct {
	From string           `json:"from" binding:"required,currency"`
	To   string           `json:"to" binding:"required,currency"`
	Rate *decimal.Decimal `json:"rate" binding:"required"`
}

// SetRate PUT /api/v1/fx-rates
// Stores the rate and revalues portfolios in the target currency in one transaction.
func (h *Handlers) SetRate(c *fiber.Ctx) error {
	var req setRateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	row, reports, err := h.Schemas.ApplyFxRate(c.UserContext(), req.From, req.To, *req.Rate)
	if err != nil {
		return err
	}
	return response.Success(c, "FX rate saved", row, fiber.Map{"schemas_recomputed": len(reports)})
}
