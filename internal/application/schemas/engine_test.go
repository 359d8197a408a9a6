package schemas

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"folio-backend/internal/application/constraints"
	"folio-backend/internal/catalog"
	"folio-backend/internal/domain"
	"folio-backend/internal/fx"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func evaluationOrder(t *testing.T, f *fixture, schemaID uuid.UUID) []string {
	t.Helper()
	st, err := loadState(f.ctx, f.db, schemaID)
	require.NoError(t, err)
	cols, po := st.order()
	require.True(t, po.Complete)
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Identifier
	}
	return out
}

func TestEnsureSchema_ValuationScenario(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)

	if diff := cmp.Diff([]string{"quantity", "price", "market_value", "current_value"}, evaluationOrder(t, f, schema.SchemaID)); diff != "" {
		t.Fatalf("evaluation order (-want +got):\n%s", diff)
	}

	mv := f.cell(t, schema.SchemaID, "market_value")
	assert.Equal(t, "250.04", text(mv))
	assert.Equal(t, domain.SourceFormula, mv.Source)
	assert.Equal(t, "225.04", text(f.cell(t, schema.SchemaID, "current_value")))
	assert.Equal(t, "10", text(f.cell(t, schema.SchemaID, "quantity")))
	assert.Equal(t, domain.SourceSystem, f.cell(t, schema.SchemaID, "price").Source)

	again, err := f.svc.EnsureSchema(f.ctx, f.account)
	require.NoError(t, err)
	assert.Equal(t, schema.SchemaID, again.SchemaID)
	var count int64
	require.NoError(t, f.db.Model(&domain.SchemaColumn{}).Where("schema_id = ?", schema.SchemaID).Count(&count).Error)
	assert.EqualValues(t, 4, count)
}

func TestRecompute_OrderIgnoresDisplayOrder(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)

	_, err := f.svc.ReorderColumns(f.ctx, schema.SchemaID, []string{"current_value", "market_value", "price", "quantity"})
	require.NoError(t, err)

	order := evaluationOrder(t, f, schema.SchemaID)
	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["quantity"], pos["market_value"])
	assert.Less(t, pos["price"], pos["market_value"])
	assert.Less(t, pos["market_value"], pos["current_value"])

	assert.Equal(t, "225.04", text(f.cell(t, schema.SchemaID, "current_value")))
	assert.Equal(t, 0, f.column(t, schema.SchemaID, "current_value").DisplayOrder)
}

func TestSetValue_UserOverrideFeedsDownstream(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)
	mv := f.cell(t, schema.SchemaID, "market_value")

	updated, err := f.svc.SetValue(f.ctx, mv.ValueID, "999.99")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceUser, updated.Source)
	assert.Equal(t, "999.99", text(*updated))
	assert.Equal(t, "899.99", text(f.cell(t, schema.SchemaID, "current_value")))

	for i := 0; i < 2; i++ {
		report, err := f.svc.Recompute(f.ctx, schema.SchemaID)
		require.NoError(t, err)
		assert.Equal(t, 0, report.CellsWritten, "nothing changed, nothing rewritten")
		mv = f.cell(t, schema.SchemaID, "market_value")
		assert.Equal(t, "999.99", text(mv))
		assert.Equal(t, domain.SourceUser, mv.Source)
		assert.Equal(t, "899.99", text(f.cell(t, schema.SchemaID, "current_value")))
	}

	reverted, err := f.svc.RevertValue(f.ctx, mv.ValueID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFormula, reverted.Source)
	assert.Equal(t, "250.04", text(*reverted))
	assert.Equal(t, "225.04", text(f.cell(t, schema.SchemaID, "current_value")))
}

func TestSetValue_Rejections(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)

	_, err := f.svc.SetValue(f.ctx, f.cell(t, schema.SchemaID, "current_value").ValueID, "1")
	assert.ErrorIs(t, err, domain.ErrNotEditable)

	mv := f.cell(t, schema.SchemaID, "market_value")
	_, err = f.svc.SetValue(f.ctx, mv.ValueID, "lots")
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
	assert.Equal(t, domain.SourceFormula, f.cell(t, schema.SchemaID, "market_value").Source, "rejected edit leaves the cell alone")
}

func TestSetValue_HoldingFieldWritesThrough(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)
	qty := f.cell(t, schema.SchemaID, "quantity")

	updated, err := f.svc.SetValue(f.ctx, qty.ValueID, "20")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceSystem, updated.Source)
	assert.Equal(t, "20", text(*updated))

	var h domain.Holding
	require.NoError(t, f.db.First(&h, "holding_id = ?", f.holding.HoldingID).Error)
	assert.True(t, h.Quantity.Equal(dec("20")))
	assert.Equal(t, "500.08", text(f.cell(t, schema.SchemaID, "market_value")))
	assert.Equal(t, "450.07", text(f.cell(t, schema.SchemaID, "current_value")))
}

func TestDeleteColumn_DependentsExist(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)
	mv := f.column(t, schema.SchemaID, "market_value")

	err := f.svc.DeleteColumn(f.ctx, mv.ColumnID)
	var de *domain.DependentsExistError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"current_value"}, de.Dependents)
	assert.ErrorIs(t, err, domain.ErrDependentsExist)
	f.column(t, schema.SchemaID, "market_value")

	// dependents are reported transitively
	err = f.svc.DeleteColumn(f.ctx, f.column(t, schema.SchemaID, "quantity").ColumnID)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"current_value", "market_value"}, de.Dependents)

	cv := f.column(t, schema.SchemaID, "current_value")
	assert.ErrorIs(t, f.svc.DeleteColumn(f.ctx, cv.ColumnID), domain.ErrNotDeletable)
}

func TestCalculatedColumns_LifecycleAndPrecision(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)

	third, err := f.svc.AddCalculatedColumn(f.ctx, schema.SchemaID, CalculatedColumnInput{Title: "Third", Expression: "quantity / 3"})
	require.NoError(t, err)
	assert.Equal(t, "third", third.Identifier)
	assert.Equal(t, "3.33", text(f.cell(t, schema.SchemaID, "third")))

	places := 4
	_, err = f.svc.UpdateFormula(f.ctx, third.ColumnID, "quantity / 3", &places)
	require.NoError(t, err)
	assert.Equal(t, "3.3333", text(f.cell(t, schema.SchemaID, "third")))

	doubled, err := f.svc.AddCalculatedColumn(f.ctx, schema.SchemaID, CalculatedColumnInput{Title: "Doubled", Expression: "third * 2"})
	require.NoError(t, err)
	assert.Equal(t, "6.67", text(f.cell(t, schema.SchemaID, "doubled")))

	err = f.svc.DeleteColumn(f.ctx, third.ColumnID)
	assert.ErrorIs(t, err, domain.ErrDependentsExist)

	_, err = f.svc.UpdateFormula(f.ctx, third.ColumnID, "doubled + 1", nil)
	assert.ErrorIs(t, err, domain.ErrCyclicDependency)
	_, err = f.svc.UpdateFormula(f.ctx, third.ColumnID, "third + 1", nil)
	assert.ErrorIs(t, err, domain.ErrCyclicDependency)
	_, err = f.svc.UpdateFormula(f.ctx, third.ColumnID, "missing + 1", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownDependency)
	_, err = f.svc.UpdateFormula(f.ctx, f.column(t, schema.SchemaID, "market_value").ColumnID, "1", nil)
	assert.ErrorIs(t, err, domain.ErrNotEditable)

	require.NoError(t, f.svc.DeleteColumn(f.ctx, doubled.ColumnID))
	require.NoError(t, f.svc.DeleteColumn(f.ctx, third.ColumnID))
	var formulas int64
	require.NoError(t, f.db.Model(&domain.FormulaDefinition{}).Where("is_system = ?", false).Count(&formulas).Error)
	assert.EqualValues(t, 0, formulas)
	var cells int64
	require.NoError(t, f.db.Model(&domain.SchemaColumnValue{}).Where("column_id = ?", third.ColumnID).Count(&cells).Error)
	assert.EqualValues(t, 0, cells)

	_, err = f.svc.AddCalculatedColumn(f.ctx, schema.SchemaID, CalculatedColumnInput{Title: "Bad", Expression: "ghost * 2"})
	assert.ErrorIs(t, err, domain.ErrUnknownDependency)
	_, err = f.svc.AddCalculatedColumn(f.ctx, schema.SchemaID, CalculatedColumnInput{Title: "Bad", Expression: "quantity *"})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
}

func TestSystemFormulaPrecisionFollowsColumnConstraint(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	f.asset.Price = dec("25.005")
	require.NoError(t, f.db.Save(&f.asset).Error)
	schema := f.ensureSchema(t)
	assert.Equal(t, "250.05", text(f.cell(t, schema.SchemaID, "market_value")))

	mv := f.column(t, schema.SchemaID, "market_value")
	_, err := f.svc.UpdateConstraint(f.ctx, mv.ColumnID, domain.ConstraintDecimalPlaces, constraints.Patch{Value: json.RawMessage(`3`)})
	require.NoError(t, err)
	assert.Equal(t, "250.050", text(f.cell(t, schema.SchemaID, "market_value")))

	_, err = f.svc.UpdateConstraint(f.ctx, mv.ColumnID, domain.ConstraintDecimalPlaces, constraints.Patch{Value: json.RawMessage(`12`)})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
	_, err = f.svc.UpdateConstraint(f.ctx, mv.ColumnID, domain.ConstraintEnum, constraints.Patch{Value: json.RawMessage(`["a"]`)})
	assert.ErrorIs(t, err, domain.ErrUnknownConstraint)
}

func TestMissingFxRateNullsOnlyThatCell(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), fx.Static{})
	schema := f.ensureSchema(t)

	assert.Equal(t, "250.04", text(f.cell(t, schema.SchemaID, "market_value")))
	cv := f.cell(t, schema.SchemaID, "current_value")
	assert.Nil(t, cv.Value)
	assert.Equal(t, domain.SourceFormula, cv.Source)

	report, err := f.svc.Recompute(f.ctx, schema.SchemaID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedCells)
	assert.Equal(t, 1, report.Holdings)
}

func TestSameCurrencySkipsLookup(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), nil)
	f.portfolio.ProfileCurrency = "USD"
	require.NoError(t, f.db.Save(&f.portfolio).Error)
	schema := f.ensureSchema(t)
	assert.Equal(t, "250.04", text(f.cell(t, schema.SchemaID, "current_value")))
}

func TestEnumInvalidOverrideClearedOnce(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)

	tier, err := f.svc.AddCustomColumn(f.ctx, schema.SchemaID, "Tier", domain.DataTypeString)
	require.NoError(t, err)
	_, err = f.svc.UpdateConstraint(f.ctx, tier.ColumnID, domain.ConstraintEnum, constraints.Patch{Value: json.RawMessage(`["gold","silver"]`)})
	require.NoError(t, err)

	cell := f.cell(t, schema.SchemaID, "tier")
	_, err = f.svc.SetValue(f.ctx, cell.ValueID, "bronze")
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
	_, err = f.svc.SetValue(f.ctx, cell.ValueID, "gold")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceUser, f.cell(t, schema.SchemaID, "tier").Source)

	var report RecomputeReport
	err = f.db.Transaction(func(tx *gorm.DB) error {
		var row domain.ColumnConstraint
		require.NoError(t, tx.Where("column_id = ? AND name = ?", tier.ColumnID, domain.ConstraintEnum).First(&row).Error)
		row.Value = []byte(`{"values":["silver"]}`)
		require.NoError(t, tx.Save(&row).Error)
		var rerr error
		report, rerr = f.svc.SchemaChanged(f.ctx, tx, schema.SchemaID)
		return rerr
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.RevertedOverrides)
	cleared := f.cell(t, schema.SchemaID, "tier")
	assert.Nil(t, cleared.Value)
	assert.Equal(t, domain.SourceSystem, cleared.Source)

	report, err = f.svc.Recompute(f.ctx, schema.SchemaID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.RevertedOverrides)
}

func TestAddCustomColumn_IdentifierCollisions(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)

	a, err := f.svc.AddCustomColumn(f.ctx, schema.SchemaID, "Market Value", domain.DataTypeDecimal)
	require.NoError(t, err)
	assert.Equal(t, "market_value_2", a.Identifier)
	assert.False(t, a.IsSystem)
	assert.True(t, a.IsEditable)
	assert.True(t, a.IsDeletable)

	b, err := f.svc.AddCustomColumn(f.ctx, schema.SchemaID, "FX rate", domain.DataTypeDecimal)
	require.NoError(t, err)
	assert.Equal(t, "fx_rate_2", b.Identifier)

	c, err := f.svc.AddCustomColumn(f.ctx, schema.SchemaID, "!!!", domain.DataTypeBoolean)
	require.NoError(t, err)
	assert.Equal(t, "column", c.Identifier)

	cell := f.cell(t, schema.SchemaID, "market_value_2")
	assert.Nil(t, cell.Value)

	renamed, err := f.svc.RenameColumn(f.ctx, a.ColumnID, "Other Value")
	require.NoError(t, err)
	assert.Equal(t, "market_value_2", renamed.Identifier)
	_, err = f.svc.RenameColumn(f.ctx, f.column(t, schema.SchemaID, "price").ColumnID, "Cost")
	assert.ErrorIs(t, err, domain.ErrNotEditable)
}

func TestDependencyPolicy(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)

	_, err := f.svc.AddCustomColumn(f.ctx, schema.SchemaID, "Bonus", domain.DataTypeDecimal)
	require.NoError(t, err)

	_, err = f.svc.AddCalculatedColumn(f.ctx, schema.SchemaID, CalculatedColumnInput{Title: "Strict Total", Expression: "quantity + bonus"})
	require.NoError(t, err)
	_, err = f.svc.AddCalculatedColumn(f.ctx, schema.SchemaID, CalculatedColumnInput{
		Title: "Loose Total", Expression: "quantity + bonus", Policy: domain.DependencyAutoExpand,
	})
	require.NoError(t, err)

	assert.Nil(t, f.cell(t, schema.SchemaID, "strict_total").Value)
	assert.Equal(t, "10.00", text(f.cell(t, schema.SchemaID, "loose_total")))
}

func TestCycleFallsBackWithoutFailing(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)

	a, err := f.svc.AddCalculatedColumn(f.ctx, schema.SchemaID, CalculatedColumnInput{Title: "A", Expression: "quantity + 1"})
	require.NoError(t, err)
	_, err = f.svc.AddCalculatedColumn(f.ctx, schema.SchemaID, CalculatedColumnInput{Title: "B", Expression: "a + 1"})
	require.NoError(t, err)

	var behavior domain.ColumnAssetBehavior
	require.NoError(t, f.db.Where("column_id = ?", a.ColumnID).First(&behavior).Error)
	var def domain.FormulaDefinition
	require.NoError(t, f.db.First(&def, "formula_id = ?", *behavior.FormulaID).Error)
	def.Expression = "b + 1"
	def.SetDependencies([]string{"b"})
	require.NoError(t, f.db.Save(&def).Error)

	report, err := f.svc.Recompute(f.ctx, schema.SchemaID)
	require.NoError(t, err)
	assert.True(t, report.CycleDetected)
	assert.Equal(t, []string{"a", "b"}, report.CyclicColumns)
	assert.Equal(t, "225.04", text(f.cell(t, schema.SchemaID, "current_value")))
}

func TestAddSystemColumn_MissingDependencyTemplate(t *testing.T) {
	templates, err := catalog.NewTemplateCatalog(
		[]catalog.ColumnTemplate{
			{Identifier: "quantity", Title: "Quantity", DataType: domain.DataTypeDecimal,
				Behaviors: []catalog.BehaviorTemplate{{Source: domain.HoldingField{Field: "quantity"}}}},
			{Identifier: "ghostly", Title: "Ghostly", DataType: domain.DataTypeDecimal,
				Behaviors: []catalog.BehaviorTemplate{{Source: domain.FormulaRef{Identifier: "ghostly"}}}},
		},
		[]catalog.FormulaTemplate{{Identifier: "ghostly", Expression: "ghost * quantity"}},
		map[domain.AccountType][]string{domain.AccountTypeBrokerage: {"quantity"}},
	)
	require.NoError(t, err)
	f := newFixture(t, templates, usdEur())
	schema := f.ensureSchema(t)

	_, err = f.svc.AddSystemColumn(f.ctx, schema.SchemaID, "ghostly")
	var md *domain.MissingDependencyError
	require.ErrorAs(t, err, &md)
	assert.Equal(t, "ghost", md.Dependency)
	assert.ErrorIs(t, err, domain.ErrMissingDependencyTemplate)

	var count int64
	require.NoError(t, f.db.Model(&domain.SchemaColumn{}).Where("identifier = ?", "ghostly").Count(&count).Error)
	assert.EqualValues(t, 0, count)

	_, err = f.svc.AddSystemColumn(f.ctx, schema.SchemaID, "nope")
	assert.ErrorIs(t, err, domain.ErrUnknownTemplate)

	again, err := f.svc.AddSystemColumn(f.ctx, schema.SchemaID, "quantity")
	require.NoError(t, err)
	assert.Equal(t, f.column(t, schema.SchemaID, "quantity").ColumnID, again.ColumnID)
}

func TestDefaultTemplates_FullBrokerageSchema(t *testing.T) {
	f := newFixture(t, catalog.DefaultTemplates(), usdEur())
	f.holding.AverageCost = dec("20")
	require.NoError(t, f.db.Save(&f.holding).Error)
	cash := f.addAsset(t, domain.AssetTypeCash, "EUR", "EUR", "0")
	cashHolding := f.addHolding(t, cash, "100")
	coin := f.addAsset(t, domain.AssetTypeCrypto, "BTC", "EUR", "50000")
	coinHolding := f.addHolding(t, coin, "0.5")
	schema := f.ensureSchema(t)

	assert.Equal(t, "200.00", text(f.cell(t, schema.SchemaID, "cost_basis")))
	assert.Equal(t, "50.04", text(f.cell(t, schema.SchemaID, "unrealized_gain")))
	assert.Equal(t, "0.2502", text(f.cell(t, schema.SchemaID, "unrealized_gain_pct")))
	assert.Equal(t, "medium", text(f.cell(t, schema.SchemaID, "risk_level")))

	assert.Equal(t, "1", text(f.cellOf(t, schema.SchemaID, "price", cashHolding.HoldingID)))
	assert.Equal(t, "100.00", text(f.cellOf(t, schema.SchemaID, "current_value", cashHolding.HoldingID)))
	assert.Equal(t, "high", text(f.cellOf(t, schema.SchemaID, "risk_level", coinHolding.HoldingID)))

	_, err := f.svc.SetValue(f.ctx, f.cellOf(t, schema.SchemaID, "risk_level", coinHolding.HoldingID).ValueID, "low")
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
	_, err = f.svc.SetValue(f.ctx, f.cellOf(t, schema.SchemaID, "risk_level", coinHolding.HoldingID).ValueID, "very_high")
	require.NoError(t, err)

	row, err := f.svc.ProjectHolding(f.ctx, f.holding.HoldingID)
	require.NoError(t, err)
	displays := map[string]string{}
	for _, c := range row.Cells {
		displays[c.Identifier] = c.Display
	}
	assert.Equal(t, "25.02%", displays["unrealized_gain_pct"])
	assert.Equal(t, "ACME", displays["symbol"])
}

func TestProjectAccount_CSV(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)

	table, err := f.svc.ProjectAccount(f.ctx, f.account.AccountID)
	require.NoError(t, err)
	assert.Equal(t, schema.SchemaID, table.SchemaID)
	require.Len(t, table.Rows, 1)
	require.Len(t, table.Rows[0].Cells, 4)
	assert.Equal(t, "Quantity", table.Rows[0].Cells[0].Title)
	assert.Equal(t, "225.04", table.Rows[0].Cells[3].Display)

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))
	out := buf.String()
	assert.Contains(t, out, "holding_id,symbol,column,title,value,display,source")
	assert.Contains(t, out, "market_value,Market Value,250.04,250.04,FORMULA")
}

func TestDisplayValue(t *testing.T) {
	s := func(v string) *string { return &v }
	pct := domain.SchemaColumn{DataType: domain.DataTypePercent}
	assert.Equal(t, "12.50%", DisplayValue(pct, nil, s("0.125")))
	assert.Equal(t, "Yes", DisplayValue(domain.SchemaColumn{DataType: domain.DataTypeBoolean}, nil, s("true")))
	assert.Equal(t, "", DisplayValue(pct, nil, nil))
}

func TestFormulaRounding_HalfAwayFromZero(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	schema := f.ensureSchema(t)

	cases := []struct {
		title, expression, want string
	}{
		{"Half Up", "quantity / 10 + 0.005", "1.01"},
		{"Half Down Negative", "-(quantity / 10 + 0.005)", "-1.01"},
		{"Below Half", "quantity / 10 + 0.0049", "1.00"},
		{"Exact Half Cent", "quantity * 0.2345", "2.35"},
	}
	for _, tc := range cases {
		col, err := f.svc.AddCalculatedColumn(f.ctx, schema.SchemaID, CalculatedColumnInput{Title: tc.title, Expression: tc.expression})
		require.NoError(t, err)
		assert.Equal(t, tc.want, text(f.cell(t, schema.SchemaID, col.Identifier)), tc.expression)
	}
}

func TestUpdateConstraint_SystemLocksCannotBeLifted(t *testing.T) {
	f := newFixture(t, catalog.DefaultTemplates(), usdEur())
	schema := f.ensureSchema(t)
	unlock, lock := true, false

	currency := f.column(t, schema.SchemaID, "currency")
	_, err := f.svc.UpdateConstraint(f.ctx, currency.ColumnID, domain.ConstraintMaxLength,
		constraints.Patch{IsEditable: &unlock, Value: json.RawMessage(`500`)})
	assert.ErrorIs(t, err, domain.ErrNotEditable)
	var row domain.ColumnConstraint
	require.NoError(t, f.db.Where("column_id = ? AND name = ?", currency.ColumnID, domain.ConstraintMaxLength).First(&row).Error)
	assert.False(t, row.IsEditable)
	n, _ := row.IntValue()
	assert.Equal(t, 3, n)

	quantity := f.column(t, schema.SchemaID, "quantity")
	_, err = f.svc.UpdateConstraint(f.ctx, quantity.ColumnID, domain.ConstraintDecimalPlaces, constraints.Patch{Value: json.RawMessage(`6`)})
	require.NoError(t, err)
	locked, err := f.svc.UpdateConstraint(f.ctx, quantity.ColumnID, domain.ConstraintDecimalPlaces, constraints.Patch{IsEditable: &lock})
	require.NoError(t, err)
	n, _ = locked.IntValue()
	assert.Equal(t, 8, n, "locking restores the template default, not the catalog one")
	_, err = f.svc.UpdateConstraint(f.ctx, quantity.ColumnID, domain.ConstraintDecimalPlaces, constraints.Patch{IsEditable: &unlock})
	assert.ErrorIs(t, err, domain.ErrNotEditable)

	target, err := f.svc.AddCustomColumn(f.ctx, schema.SchemaID, "Target", domain.DataTypeDecimal)
	require.NoError(t, err)
	_, err = f.svc.UpdateConstraint(f.ctx, target.ColumnID, domain.ConstraintDecimalPlaces, constraints.Patch{IsEditable: &lock})
	require.NoError(t, err)
	reopened, err := f.svc.UpdateConstraint(f.ctx, target.ColumnID, domain.ConstraintDecimalPlaces, constraints.Patch{IsEditable: &unlock})
	require.NoError(t, err)
	assert.True(t, reopened.IsEditable)
}

func TestApplyFxRate_RateAndRecomputeCommitTogether(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), fx.Static{})
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := &fx.Store{DB: f.db}
	f.svc.Fx = &fx.CachedLookup{Next: store, Rdb: rdb, TTL: time.Minute}

	schema := f.ensureSchema(t)
	assert.Equal(t, "<null>", text(f.cell(t, schema.SchemaID, "current_value")))

	row, reports, err := f.svc.ApplyFxRate(f.ctx, "usd", "eur", dec("0.9"))
	require.NoError(t, err)
	assert.Equal(t, "EUR", row.ToCurrency)
	require.Len(t, reports, 1)
	assert.Equal(t, schema.SchemaID, reports[0].SchemaID)
	assert.Equal(t, "225.04", text(f.cell(t, schema.SchemaID, "current_value")))

	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("test:fail_cell_writes", func(tx *gorm.DB) {
		if tx.Statement.Table == "schema_column_values" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))
	_, _, err = f.svc.ApplyFxRate(f.ctx, "USD", "EUR", dec("0.8"))
	require.Error(t, err)
	require.NoError(t, f.db.Callback().Update().Remove("test:fail_cell_writes"))

	rate, err := store.Rate(f.ctx, "USD", "EUR")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.9")), "rolled back with the failed recompute, got %s", rate)
	assert.Equal(t, "225.04", text(f.cell(t, schema.SchemaID, "current_value")))
	assert.False(t, mr.Exists(fx.CacheKey("USD", "EUR")))

	_, _, err = f.svc.ApplyFxRate(f.ctx, "USD", "EUR", decimal.Zero)
	assert.ErrorIs(t, err, fx.ErrInvalidRate)
}

func TestProjectHolding_MissingAccount(t *testing.T) {
	f := newFixture(t, valuationTemplates(t), usdEur())
	f.ensureSchema(t)

	stray := domain.Holding{AccountID: uuid.New(), AssetID: f.asset.AssetID, Quantity: dec("1")}
	require.NoError(t, f.db.Create(&stray).Error)

	_, err := f.svc.ProjectHolding(f.ctx, stray.HoldingID)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = f.svc.ProjectHolding(f.ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrHoldingNotFound)
	_, err = f.svc.ProjectAccount(f.ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
