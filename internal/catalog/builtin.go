package catalog

import (
	"folio-backend/internal/domain"
)

func places(n int) *int { return &n }

func editable(b bool) *bool { return &b }

func everyAsset(src domain.ValueSource) []BehaviorTemplate {
	return []BehaviorTemplate{{Source: src}}
}

func formulaRef(identifier string) domain.FormulaRef {
	return domain.FormulaRef{Identifier: identifier}
}

// BuiltinFormulas are the system formulas column templates refer to.
func BuiltinFormulas() []FormulaTemplate {
	return []FormulaTemplate{
		{Identifier: "market_value", Expression: "quantity * price"},
		{Identifier: "cost_basis", Expression: "quantity * average_cost"},
		{Identifier: "unrealized_gain", Expression: "market_value - cost_basis"},
		{Identifier: "unrealized_gain_pct", Expression: "(market_value - cost_basis) / cost_basis", DecimalPlaces: places(4)},
		{Identifier: "current_value", Expression: "market_value * fx_rate"},
		{Identifier: "total_weight_oz", Expression: "quantity * weight_oz", DecimalPlaces: places(4)},
	}
}

// BuiltinColumns are the system column templates.
func BuiltinColumns() []ColumnTemplate {
	return []ColumnTemplate{
		{Identifier: "symbol", Title: "Symbol", DataType: domain.DataTypeString, Category: "identity",
			Behaviors: everyAsset(domain.AssetField{Field: "symbol"})},
		{Identifier: "name", Title: "Name", DataType: domain.DataTypeString, Category: "identity",
			Behaviors: everyAsset(domain.AssetField{Field: "name"})},
		{Identifier: "currency", Title: "Currency", DataType: domain.DataTypeString, Category: "identity",
			Behaviors:   everyAsset(domain.AssetField{Field: "currency"}),
			Constraints: []ConstraintOverride{{Name: domain.ConstraintMaxLength, Value: 3, IsEditable: editable(false)}}},
		{Identifier: "quantity", Title: "Quantity", DataType: domain.DataTypeDecimal, Category: "position", IsEditable: true,
			Behaviors:   everyAsset(domain.HoldingField{Field: "quantity"}),
			Constraints: []ConstraintOverride{{Name: domain.ConstraintDecimalPlaces, Value: 8}, {Name: domain.ConstraintMin, Value: 0}}},
		{Identifier: "average_cost", Title: "Average Cost", DataType: domain.DataTypeDecimal, Category: "position", IsEditable: true,
			Behaviors:   everyAsset(domain.HoldingField{Field: "average_cost"}),
			Constraints: []ConstraintOverride{{Name: domain.ConstraintDecimalPlaces, Value: 4}, {Name: domain.ConstraintMin, Value: 0}}},
		{Identifier: "weight_oz", Title: "Weight (oz)", DataType: domain.DataTypeDecimal, Category: "position", IsEditable: true,
			Behaviors: []BehaviorTemplate{
				{AssetTypes: []domain.AssetType{domain.AssetTypeMetal}, Source: domain.HoldingField{Field: "weight_oz"}},
			},
			Constraints: []ConstraintOverride{{Name: domain.ConstraintDecimalPlaces, Value: 4}, {Name: domain.ConstraintMin, Value: 0}}},
		{Identifier: "total_weight_oz", Title: "Total Weight (oz)", DataType: domain.DataTypeDecimal, Category: "valuation",
			Behaviors: []BehaviorTemplate{
				{AssetTypes: []domain.AssetType{domain.AssetTypeMetal}, Source: formulaRef("total_weight_oz")},
			},
			Constraints: []ConstraintOverride{{Name: domain.ConstraintDecimalPlaces, Value: 4}}},
		{Identifier: "price", Title: "Price", DataType: domain.DataTypeDecimal, Category: "market", IsEditable: true,
			Behaviors: []BehaviorTemplate{
				{Source: domain.AssetField{Field: "price"}},
				{AssetTypes: []domain.AssetType{domain.AssetTypeCash}, Source: domain.Constant{Value: "1"}},
			},
			Constraints: []ConstraintOverride{{Name: domain.ConstraintDecimalPlaces, Value: 4}, {Name: domain.ConstraintMin, Value: 0}}},
		{Identifier: "market_value", Title: "Market Value", DataType: domain.DataTypeDecimal, Category: "valuation", IsEditable: true,
			Behaviors: everyAsset(formulaRef("market_value"))},
		{Identifier: "cost_basis", Title: "Cost Basis", DataType: domain.DataTypeDecimal, Category: "valuation",
			Behaviors: everyAsset(formulaRef("cost_basis"))},
		{Identifier: "unrealized_gain", Title: "Unrealized Gain", DataType: domain.DataTypeDecimal, Category: "performance",
			Behaviors: everyAsset(formulaRef("unrealized_gain"))},
		{Identifier: "unrealized_gain_pct", Title: "Unrealized Gain %", DataType: domain.DataTypePercent, Category: "performance",
			Behaviors: everyAsset(formulaRef("unrealized_gain_pct"))},
		{Identifier: "current_value", Title: "Current Value", DataType: domain.DataTypeDecimal, Category: "valuation",
			Behaviors: everyAsset(formulaRef("current_value"))},
		{Identifier: "purchase_date", Title: "Purchase Date", DataType: domain.DataTypeDate, Category: "position", IsEditable: true,
			Behaviors: everyAsset(domain.HoldingField{Field: "purchase_date"})},
		{Identifier: "notes", Title: "Notes", DataType: domain.DataTypeString, Category: "notes", IsEditable: true,
			Behaviors:   everyAsset(domain.HoldingField{Field: "notes"}),
			Constraints: []ConstraintOverride{{Name: domain.ConstraintMaxLength, Value: 1000}}},
		{Identifier: "risk_level", Title: "Risk Level", DataType: domain.DataTypeString, Category: "classification", IsEditable: true,
			Behaviors: []BehaviorTemplate{
				{Source: domain.Constant{Value: "medium"}},
				{AssetTypes: []domain.AssetType{domain.AssetTypeCrypto}, Source: domain.Constant{Value: "high"}},
			},
			Constraints: []ConstraintOverride{{Name: domain.ConstraintEnum, Value: domain.EnumOptions{
				Values: []string{"low", "medium", "high"},
				ByAssetType: map[domain.AssetType][]string{
					domain.AssetTypeCrypto: {"high", "very_high"},
				},
			}}}},
	}
}

// BuiltinDefaults is the default-column policy per account type.
func BuiltinDefaults() map[domain.AccountType][]string {
	valuation := []string{"symbol", "name", "currency", "quantity", "average_cost", "price",
		"market_value", "cost_basis", "unrealized_gain", "unrealized_gain_pct", "current_value",
		"purchase_date", "notes"}
	return map[domain.AccountType][]string{
		domain.AccountTypeBrokerage:    append(append([]string(nil), valuation...), "risk_level"),
		domain.AccountTypeCryptoWallet: append(append([]string(nil), valuation...), "risk_level"),
		domain.AccountTypeMetals: {"symbol", "name", "currency", "quantity", "weight_oz", "total_weight_oz",
			"average_cost", "price", "market_value", "cost_basis", "unrealized_gain", "current_value",
			"purchase_date", "notes"},
		domain.AccountTypeCustom: {"name", "quantity", "price", "currency", "market_value", "current_value", "notes"},
	}
}

// DefaultTemplates builds the catalog from the builtin definitions.
func DefaultTemplates() *TemplateCatalog {
	c, err := NewTemplateCatalog(BuiltinColumns(), BuiltinFormulas(), BuiltinDefaults())
	if err != nil {
		panic("builtin templates: " + err.Error())
	}
	return c
}
