package catalog

import (
	"testing"

	"folio-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplates_Load(t *testing.T) {
	c := DefaultTemplates()

	mv, ok := c.Column("market_value")
	require.True(t, ok)
	assert.Equal(t, []string{"quantity", "price"}, c.Dependencies(mv))

	cv, ok := c.Column("current_value")
	require.True(t, ok)
	assert.Equal(t, []string{"market_value"}, c.Dependencies(cv), "fx_rate is implicit")

	for _, accountType := range []domain.AccountType{domain.AccountTypeBrokerage, domain.AccountTypeCryptoWallet, domain.AccountTypeMetals, domain.AccountTypeCustom} {
		assert.NotEmpty(t, c.DefaultColumns(accountType), accountType)
	}
}

func TestColumnTemplate_SourcesLaterEntriesWin(t *testing.T) {
	price, ok := DefaultTemplates().Column("price")
	require.True(t, ok)
	sources := price.Sources()
	assert.Equal(t, domain.AssetField{Field: "price"}, sources[domain.AssetTypeStock])
	assert.Equal(t, domain.Constant{Value: "1"}, sources[domain.AssetTypeCash])

	weight, _ := DefaultTemplates().Column("weight_oz")
	ws := weight.Sources()
	assert.Len(t, ws, 1)
	assert.Equal(t, domain.HoldingField{Field: "weight_oz"}, ws[domain.AssetTypeMetal])
}

func TestNewTemplateCatalog_Rejects(t *testing.T) {
	_, err := NewTemplateCatalog(nil, []FormulaTemplate{{Identifier: "bad", Expression: "1 +"}}, nil)
	assert.Error(t, err)

	_, err = NewTemplateCatalog([]ColumnTemplate{{
		Identifier: "x", DataType: domain.DataTypeDecimal,
		Behaviors: everyAsset(formulaRef("missing")),
	}}, nil, nil)
	assert.Error(t, err)

	_, err = NewTemplateCatalog(nil, nil, map[domain.AccountType][]string{domain.AccountTypeCustom: {"nope"}})
	assert.Error(t, err)
}

func TestConstraintCatalog_Instantiate(t *testing.T) {
	cc := DefaultConstraints()
	colID := uuid.New()

	rows, err := cc.Instantiate(colID, domain.DataTypeDecimal, []ConstraintOverride{{Name: domain.ConstraintDecimalPlaces, Value: 4}})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, domain.ConstraintDecimalPlaces, rows[0].Name)
	dp, ok := rows[0].IntValue()
	require.True(t, ok)
	assert.Equal(t, 4, dp)
	assert.Equal(t, colID, rows[0].ColumnID)
	assert.False(t, rows[1].IsSet(), "min is unbounded by default")

	rows, err = cc.Instantiate(colID, domain.DataTypeString, nil)
	require.NoError(t, err)
	for _, r := range rows {
		assert.NotEqual(t, domain.ConstraintEnum, r.Name, "enum is only attached on request")
	}

	rows, err = cc.Instantiate(colID, domain.DataTypeString, []ConstraintOverride{{Name: domain.ConstraintEnum, Value: domain.EnumOptions{Values: []string{"a"}}}})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	e, ok := rows[2].EnumValue()
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, e.AllowedFor(domain.AssetTypeStock))

	_, err = cc.Instantiate(colID, domain.DataTypeBoolean, []ConstraintOverride{{Name: domain.ConstraintMin, Value: 1}})
	assert.Error(t, err)
}

func TestRiskLevelEnumIsAssetTypeAware(t *testing.T) {
	risk, ok := DefaultTemplates().Column("risk_level")
	require.True(t, ok)
	rows, err := DefaultConstraints().Instantiate(uuid.New(), risk.DataType, risk.Constraints)
	require.NoError(t, err)

	var found bool
	for _, r := range rows {
		if r.Name != domain.ConstraintEnum {
			continue
		}
		found = true
		e, ok := r.EnumValue()
		require.True(t, ok)
		assert.Equal(t, []string{"high", "very_high"}, e.AllowedFor(domain.AssetTypeCrypto))
		assert.Equal(t, []string{"low", "medium", "high"}, e.AllowedFor(domain.AssetTypeStock))
	}
	assert.True(t, found)
}

func TestConstraintCatalog_EffectiveAppliesOverrides(t *testing.T) {
	cc := DefaultConstraints()
	locked := false
	m, ok := cc.Effective(domain.DataTypeString, domain.ConstraintMaxLength,
		[]ConstraintOverride{{Name: domain.ConstraintMaxLength, Value: 3, IsEditable: &locked}})
	require.True(t, ok)
	assert.Equal(t, 3, m.Default)
	assert.False(t, m.IsEditable)

	m, ok = cc.Effective(domain.DataTypeDecimal, domain.ConstraintDecimalPlaces, nil)
	require.True(t, ok)
	assert.Equal(t, 2, m.Default)
	assert.True(t, m.IsEditable)

	_, ok = cc.Effective(domain.DataTypeBoolean, domain.ConstraintMin, nil)
	assert.False(t, ok)
}
