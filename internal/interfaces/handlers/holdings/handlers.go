package holdings

import (
	holdsvc "folio-backend/internal/application/holdings"
	"folio-backend/internal/pkg/response"
	"folio-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles holdings handlers.
type Handlers struct {
	Service *holdsvc.Service
}

// ViewHoldings GET /api/v1/accounts/:account_id/holdings
func (h *Handlers) ViewHoldings(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("account_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid account_id format (must be a valid UUID)")
	}
	data, err := h.Service.ViewHoldings(c.UserContext(), accountID)
	if err != nil {
		return err
	}
	return response.Success(c, "Holdings fetched successfully", data, nil)
}

// ViewHolding GET /api/v1/holdings/:holding_id
func (h *Handlers) ViewHolding(c *fiber.Ctx) error {
	holdingID, err := uuid.Parse(c.Params("holding_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid Holding ID format (must be a valid UUID)")
	}
	data, err := h.Service.GetHolding(c.UserContext(), holdingID)
	if err != nil {
		return err
	}
	return response.Success(c, "Holding fetched successfully", data, nil)
}

// CreateHolding POST /api/v1/holdings
func (h *Handlers) CreateHolding(c *fiber.Ctx) error {
	var req holdsvc.CreateHoldingInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	holding, err := h.Service.CreateHolding(c.UserContext(), req)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Holding created successfully", holding, nil)
}

// UpdateHolding PATCH /api/v1/holdings/:holding_id
func (h *Handlers) UpdateHolding(c *fiber.Ctx) error {
	holdingID, err := uuid.Parse(c.Params("holding_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid Holding ID format (must be a valid UUID)")
	}
	var req holdsvc.UpdateHoldingInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	holding, err := h.Service.UpdateHolding(c.UserContext(), holdingID, req)
	if err != nil {
		return err
	}
	return response.Success(c, "Holding updated successfully", holding, nil)
}

// DeleteHolding DELETE /api/v1/holdings/:holding_id
func (h *Handlers) DeleteHolding(c *fiber.Ctx) error {
	holdingID, err := uuid.Parse(c.Params("holding_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid Holding ID format (must be a valid UUID)")
	}
	if err := h.Service.DeleteHolding(c.UserContext(), holdingID); err != nil {
		return err
	}
	return response.Success(c, "Holding deleted successfully", fiber.Map{"holding_id": holdingID}, nil)
}
