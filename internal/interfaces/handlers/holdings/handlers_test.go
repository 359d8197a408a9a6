package holdings

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	holdsvc "folio-backend/internal/application/holdings"
	"folio-backend/internal/application/schemas"
	"folio-backend/internal/catalog"
	"folio-backend/internal/domain"
	"folio-backend/internal/fx"
	"folio-backend/internal/infrastructure/database"
	"folio-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupHoldingsTest(t *testing.T) (*fiber.App, *gorm.DB) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	engine := schemas.NewService(db, catalog.DefaultTemplates(), catalog.DefaultConstraints(), fx.Static{})
	h := &Handlers{Service: &holdsvc.Service{DB: db, Schemas: engine}}

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Get("/api/v1/accounts/:account_id/holdings", h.ViewHoldings)
	app.Post("/api/v1/holdings", h.CreateHolding)
	app.Patch("/api/v1/holdings/:holding_id", h.UpdateHolding)
	app.Delete("/api/v1/holdings/:holding_id", h.DeleteHolding)
	return app, db
}

func post(t *testing.T, app *fiber.App, method, path string, body any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

// ViewHoldings: invalid account_id → 400, unknown account → 404.
func TestViewHoldings_InvalidAccountID(t *testing.T) {
	app, _ := setupHoldingsTest(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/accounts/not-a-uuid/holdings", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/accounts/"+uuid.NewString()+"/holdings", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCreateHolding_Statuses(t *testing.T) {
	app, db := setupHoldingsTest(t)

	p := domain.Portfolio{Name: "Main", ProfileCurrency: "USD"}
	require.NoError(t, db.Create(&p).Error)
	a := domain.Account{PortfolioID: p.PortfolioID, AccountType: domain.AccountTypeCustom, Name: "Misc"}
	require.NoError(t, db.Create(&a).Error)
	asset := domain.Asset{AssetType: domain.AssetTypeCustom, Name: "Painting", Currency: "USD", Price: decimal.RequireFromString("1000")}
	require.NoError(t, db.Create(&asset).Error)

	assert.Equal(t, fiber.StatusBadRequest, post(t, app, "POST", "/api/v1/holdings", map[string]any{"asset_id": asset.AssetID}))
	assert.Equal(t, fiber.StatusBadRequest, post(t, app, "POST", "/api/v1/holdings", map[string]any{
		"account_id": a.AccountID, "asset_id": asset.AssetID, "quantity": "-2",
	}))
	assert.Equal(t, fiber.StatusCreated, post(t, app, "POST", "/api/v1/holdings", map[string]any{
		"account_id": a.AccountID, "asset_id": asset.AssetID, "quantity": "1",
	}))
	assert.Equal(t, fiber.StatusNotFound, post(t, app, "PATCH", "/api/v1/holdings/"+uuid.NewString(), map[string]any{"notes": "x"}))
	assert.Equal(t, fiber.StatusNotFound, post(t, app, "DELETE", "/api/v1/holdings/"+uuid.NewString(), nil))
}
