package accounts

import (
	accountsvc "folio-backend/internal/application/accounts"
	"folio-backend/internal/pkg/response"
	"folio-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *accountsvc.Service
}

// CreatePortfolio POST /api/v1/portfolios
func (h *Handlers) CreatePortfolio(c *fiber.Ctx) error {
	var req accountsvc.CreatePortfolioInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	p, err := h.Service.CreatePortfolio(c.UserContext(), req)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Portfolio created successfully", p, nil)
}

// GetPortfolio GET /api/v1/portfolios/:portfolio_id
func (h *Handlers) GetPortfolio(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("portfolio_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid portfolio_id format (must be a valid UUID)")
	}
	p, err := h.Service.GetPortfolio(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Portfolio fetched successfully", p, nil)
}

type currencyRequest struct {
	ProfileCurrency string `json:"profile_currency" binding:"required,currency"`
}

// UpdateProfileCurrency PATCH /api/v1/portfolios/:portfolio_id
func (h *Handlers) UpdateProfileCurrency(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("portfolio_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid portfolio_id format (must be a valid UUID)")
	}
	var req currencyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	p, err := h.Service.UpdateProfileCurrency(c.UserContext(), id, req.ProfileCurrency)
	if err != nil {
		return err
	}
	return response.Success(c, "Portfolio updated successfully", p, nil)
}

// ListAccounts GET /api/v1/portfolios/:portfolio_id/accounts
func (h *Handlers) ListAccounts(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("portfolio_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid portfolio_id format (must be a valid UUID)")
	}
	accounts, err := h.Service.ListAccounts(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Accounts fetched successfully", accounts, nil)
}

// CreateAccount POST /api/v1/accounts
func (h *Handlers) CreateAccount(c *fiber.Ctx) error {
	var req accountsvc.CreateAccountInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	account, schema, err := h.Service.CreateAccount(c.UserContext(), req)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Account created successfully", fiber.Map{"account": account, "schema": schema}, nil)
}

// GetAccount GET /api/v1/accounts/:account_id
func (h *Handlers) GetAccount(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("account_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid account_id format (must be a valid UUID)")
	}
	account, err := h.Service.GetAccount(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Account fetched successfully", account, nil)
}

// DeleteAccount DELETE /api/v1/accounts/:account_id
func (h *Handlers) DeleteAccount(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("account_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid account_id format (must be a valid UUID)")
	}
	if err := h.Service.DeleteAccount(c.UserContext(), id); err != nil {
		return err
	}
	return response.Success(c, "Account deleted successfully", fiber.Map{"account_id": id}, nil)
}
