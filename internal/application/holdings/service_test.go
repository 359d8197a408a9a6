package holdings

import (
	"context"
	"testing"

	"folio-backend/internal/application/schemas"
	"folio-backend/internal/catalog"
	"folio-backend/internal/domain"
	"folio-backend/internal/fx"
	"folio-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type setup struct {
	svc     *Service
	db      *gorm.DB
	account domain.Account
	asset   domain.Asset
}

func setupHoldingsTest(t *testing.T) setup {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	engine := schemas.NewService(db, catalog.DefaultTemplates(), catalog.DefaultConstraints(),
		fx.Static{"USD:EUR": decimal.RequireFromString("0.9")})

	p := domain.Portfolio{Name: "Main", ProfileCurrency: "EUR"}
	require.NoError(t, db.Create(&p).Error)
	a := domain.Account{PortfolioID: p.PortfolioID, AccountType: domain.AccountTypeBrokerage, Name: "Broker"}
	require.NoError(t, db.Create(&a).Error)
	asset := domain.Asset{AssetType: domain.AssetTypeStock, Symbol: "ACME", Name: "Acme", Currency: "USD", Price: decimal.RequireFromString("25")}
	require.NoError(t, db.Create(&asset).Error)

	return setup{svc: &Service{DB: db, Schemas: engine}, db: db, account: a, asset: asset}
}

func cellText(t *testing.T, db *gorm.DB, holdingID uuid.UUID, identifier string) string {
	t.Helper()
	var v domain.SchemaColumnValue
	require.NoError(t, db.
		Joins("JOIN schema_columns ON schema_columns.column_id = schema_column_values.column_id").
		Where("schema_column_values.holding_id = ? AND schema_columns.identifier = ?", holdingID, identifier).
		First(&v).Error)
	if v.Value == nil {
		return "<null>"
	}
	return *v.Value
}

func TestCreateHolding_BootstrapsSchemaAndCells(t *testing.T) {
	s := setupHoldingsTest(t)
	ctx := context.Background()

	h, err := s.svc.CreateHolding(ctx, CreateHoldingInput{
		AccountID:   s.account.AccountID,
		AssetID:     s.asset.AssetID,
		Quantity:    decimal.RequireFromString("10"),
		AverageCost: decimal.RequireFromString("20"),
		Notes:       "core position",
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, s.db.Model(&domain.Schema{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, "250.00", cellText(t, s.db, h.HoldingID, "market_value"))
	assert.Equal(t, "200.00", cellText(t, s.db, h.HoldingID, "cost_basis"))
	assert.Equal(t, "225.00", cellText(t, s.db, h.HoldingID, "current_value"))
	assert.Equal(t, "core position", cellText(t, s.db, h.HoldingID, "notes"))

	second, err := s.svc.CreateHolding(ctx, CreateHoldingInput{
		AccountID: s.account.AccountID,
		AssetID:   s.asset.AssetID,
		Quantity:  decimal.RequireFromString("2"),
	})
	require.NoError(t, err)
	require.NoError(t, s.db.Model(&domain.Schema{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, "50.00", cellText(t, s.db, second.HoldingID, "market_value"))
}

func TestCreateHolding_Rejections(t *testing.T) {
	s := setupHoldingsTest(t)
	ctx := context.Background()

	_, err := s.svc.CreateHolding(ctx, CreateHoldingInput{AccountID: uuid.New(), AssetID: s.asset.AssetID})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = s.svc.CreateHolding(ctx, CreateHoldingInput{AccountID: s.account.AccountID, AssetID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)

	_, err = s.svc.CreateHolding(ctx, CreateHoldingInput{
		AccountID: s.account.AccountID,
		AssetID:   s.asset.AssetID,
		Quantity:  decimal.RequireFromString("-1"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = s.svc.CreateHolding(ctx, CreateHoldingInput{
		AccountID:    s.account.AccountID,
		AssetID:      s.asset.AssetID,
		PurchaseDate: "03/01/2024",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)

	var count int64
	require.NoError(t, s.db.Model(&domain.Holding{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateHolding_Recomputes(t *testing.T) {
	s := setupHoldingsTest(t)
	ctx := context.Background()
	h, err := s.svc.CreateHolding(ctx, CreateHoldingInput{
		AccountID: s.account.AccountID,
		AssetID:   s.asset.AssetID,
		Quantity:  decimal.RequireFromString("10"),
	})
	require.NoError(t, err)

	q := decimal.RequireFromString("20")
	date := "2024-03-01"
	updated, err := s.svc.UpdateHolding(ctx, h.HoldingID, UpdateHoldingInput{Quantity: &q, PurchaseDate: &date})
	require.NoError(t, err)
	assert.True(t, updated.Quantity.Equal(q))
	require.NotNil(t, updated.PurchaseDate)
	assert.Equal(t, "2024-03-01", updated.PurchaseDate.Format(domain.DateLayout))

	assert.Equal(t, "500.00", cellText(t, s.db, h.HoldingID, "market_value"))
	assert.Equal(t, "450.00", cellText(t, s.db, h.HoldingID, "current_value"))
	assert.Equal(t, "2024-03-01", cellText(t, s.db, h.HoldingID, "purchase_date"))

	_, err = s.svc.UpdateHolding(ctx, uuid.New(), UpdateHoldingInput{Quantity: &q})
	assert.ErrorIs(t, err, domain.ErrHoldingNotFound)
}

func TestDeleteHolding_RemovesCells(t *testing.T) {
	s := setupHoldingsTest(t)
	ctx := context.Background()
	h, err := s.svc.CreateHolding(ctx, CreateHoldingInput{
		AccountID: s.account.AccountID,
		AssetID:   s.asset.AssetID,
		Quantity:  decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	require.NoError(t, s.svc.DeleteHolding(ctx, h.HoldingID))

	var cells int64
	require.NoError(t, s.db.Model(&domain.SchemaColumnValue{}).Where("holding_id = ?", h.HoldingID).Count(&cells).Error)
	assert.Zero(t, cells)
	assert.ErrorIs(t, s.svc.DeleteHolding(ctx, h.HoldingID), domain.ErrHoldingNotFound)

	list, err := s.svc.ViewHoldings(ctx, s.account.AccountID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
