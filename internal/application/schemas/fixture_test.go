package schemas

import (
	"context"
	"testing"

	"folio-backend/internal/catalog"
	"folio-backend/internal/domain"
	"folio-backend/internal/fx"
	"folio-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	ctx       context.Context
	db        *gorm.DB
	svc       *Service
	portfolio domain.Portfolio
	account   domain.Account
	asset     domain.Asset
	holding   domain.Holding
}

// valuationTemplates is the four-column schema used by the worked examples:
// quantity, price, market_value = quantity * price, current_value = market_value * fx_rate.
func valuationTemplates(t *testing.T) *catalog.TemplateCatalog {
	t.Helper()
	var cols []catalog.ColumnTemplate
	for _, c := range catalog.BuiltinColumns() {
		switch c.Identifier {
		case "quantity", "price", "market_value", "current_value":
			cols = append(cols, c)
		}
	}
	c, err := catalog.NewTemplateCatalog(cols, catalog.BuiltinFormulas(), map[domain.AccountType][]string{
		domain.AccountTypeBrokerage: {"current_value"},
	})
	require.NoError(t, err)
	return c
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T, templates *catalog.TemplateCatalog, rates fx.Lookup) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)

	f := &fixture{
		ctx: context.Background(),
		db:  db,
		svc: NewService(db, templates, catalog.DefaultConstraints(), rates),
	}
	f.portfolio = domain.Portfolio{Name: "Main", ProfileCurrency: "EUR"}
	require.NoError(t, db.Create(&f.portfolio).Error)
	f.account = domain.Account{PortfolioID: f.portfolio.PortfolioID, AccountType: domain.AccountTypeBrokerage, Name: "Broker"}
	require.NoError(t, db.Create(&f.account).Error)
	f.asset = f.addAsset(t, domain.AssetTypeStock, "ACME", "USD", "25.004")
	f.holding = f.addHolding(t, f.asset, "10")
	return f
}

func (f *fixture) addAsset(t *testing.T, assetType domain.AssetType, symbol, currency, price string) domain.Asset {
	t.Helper()
	a := domain.Asset{AssetType: assetType, Symbol: symbol, Name: symbol, Currency: currency, Price: dec(price)}
	require.NoError(t, f.db.Create(&a).Error)
	return a
}

func (f *fixture) addHolding(t *testing.T, asset domain.Asset, quantity string) domain.Holding {
	t.Helper()
	h := domain.Holding{AccountID: f.account.AccountID, AssetID: asset.AssetID, Quantity: dec(quantity)}
	require.NoError(t, f.db.Create(&h).Error)
	return h
}

func (f *fixture) ensureSchema(t *testing.T) *domain.Schema {
	t.Helper()
	schema, err := f.svc.EnsureSchema(f.ctx, f.account)
	require.NoError(t, err)
	return schema
}

func (f *fixture) column(t *testing.T, schemaID uuid.UUID, identifier string) domain.SchemaColumn {
	t.Helper()
	var col domain.SchemaColumn
	require.NoError(t, f.db.Where("schema_id = ? AND identifier = ?", schemaID, identifier).First(&col).Error)
	return col
}

// cell returns the stored cell of the fixture holding for identifier.
func (f *fixture) cell(t *testing.T, schemaID uuid.UUID, identifier string) domain.SchemaColumnValue {
	t.Helper()
	return f.cellOf(t, schemaID, identifier, f.holding.HoldingID)
}

func (f *fixture) cellOf(t *testing.T, schemaID uuid.UUID, identifier string, holdingID uuid.UUID) domain.SchemaColumnValue {
	t.Helper()
	col := f.column(t, schemaID, identifier)
	var v domain.SchemaColumnValue
	require.NoError(t, f.db.Where("column_id = ? AND holding_id = ?", col.ColumnID, holdingID).First(&v).Error)
	return v
}

func text(v domain.SchemaColumnValue) string {
	if v.Value == nil {
		return "<null>"
	}
	return *v.Value
}

func usdEur() fx.Static {
	return fx.Static{"USD:EUR": dec("0.90")}
}
