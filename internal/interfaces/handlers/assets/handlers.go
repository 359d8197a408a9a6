package assets

import (
	assetsvc "folio-backend/internal/application/assets"
	"folio-backend/internal/pkg/response"
	"folio-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *assetsvc.Service
}

// CreateAsset POST /api/v1/assets
func (h *Handlers) CreateAsset(c *fiber.Ctx) error {
	var req assetsvc.CreateAssetInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	asset, err := h.Service.CreateAsset(c.UserContext(), req)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Asset created successfully", asset, nil)
}

// ListAssets GET /api/v1/assets?asset_type=
func (h *Handlers) ListAssets(c *fiber.Ctx) error {
	assets, err := h.Service.ListAssets(c.UserContext(), c.Query("asset_type"))
	if err != nil {
		return err
	}
	return response.Success(c, "Assets fetched successfully", assets, nil)
}

// GetAsset GET /api/v1/assets/:asset_id
func (h *Handlers) GetAsset(c *fiber.Ctx) error {
	assetID, err := uuid.Parse(c.Params("asset_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid asset_id format (must be a valid UUID)")
	}
	asset, err := h.Service.GetAsset(c.UserContext(), assetID)
	if err != nil {
		return err
	}
	return response.Success(c, "Asset fetched successfully", asset, nil)
}

type priceRequest struct {
	Price *decimal.Decimal `json:"price" binding:"required"`
}

// UpdatePrice PATCH /api/v1/assets/:asset_id/price
func (h *Handlers) UpdatePrice(c *fiber.Ctx) error {
	assetID, err := uuid.Parse(c.Params("asset_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid asset_id format (must be a valid UUID)")
	}
	var req priceRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	asset, touched, err := h.Service.UpdatePrice(c.UserContext(), assetID, *req.Price)
	if err != nil {
		return err
	}
	return response.Success(c, "Price updated", asset, fiber.Map{"holdings_recomputed": touched})
}
