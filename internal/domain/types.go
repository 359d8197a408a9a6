package domain

import (
	"fmt"
	"strings"
)

// DataType is the storage type of a schema column. It never changes after the column is created.
type DataType string

const (
	DataTypeDecimal DataType = "decimal"
	DataTypeInteger DataType = "integer"
	DataTypePercent DataType = "percent" // stored as a fraction: 12.5% is 0.125
	DataTypeString  DataType = "string"
	DataTypeBoolean DataType = "boolean"
	DataTypeDate    DataType = "date"
)

var dataTypes = []DataType{DataTypeDecimal, DataTypeInteger, DataTypePercent, DataTypeString, DataTypeBoolean, DataTypeDate}

// ParseDataType accepts the lower-case names above.
func ParseDataType(s string) (DataType, error) {
	dt := DataType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range dataTypes {
		if dt == known {
			return dt, nil
		}
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

// Numeric reports whether values of this type are decimals.
func (d DataType) Numeric() bool {
	return d == DataTypeDecimal || d == DataTypeInteger || d == DataTypePercent
}

// AssetType classifies the asset behind a holding; column behaviors are declared per asset type.
type AssetType string

const (
	AssetTypeStock  AssetType = "stock"
	AssetTypeETF    AssetType = "etf"
	AssetTypeCrypto AssetType = "crypto"
	AssetTypeMetal  AssetType = "metal"
	AssetTypeCash   AssetType = "cash"
	AssetTypeCustom AssetType = "custom"
)

// AllAssetTypes lists every asset type in a stable order.
var AllAssetTypes = []AssetType{AssetTypeStock, AssetTypeETF, AssetTypeCrypto, AssetTypeMetal, AssetTypeCash, AssetTypeCustom}

func ParseAssetType(s string) (AssetType, error) {
	at := AssetType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllAssetTypes {
		if at == known {
			return at, nil
		}
	}
	return "", fmt.Errorf("unknown asset type %q", s)
}

// AccountType selects the schema (and its default columns) an account's holdings use.
type AccountType string

const (
	AccountTypeBrokerage    AccountType = "brokerage"
	AccountTypeCryptoWallet AccountType = "crypto_wallet"
	AccountTypeMetals       AccountType = "metals"
	AccountTypeCustom       AccountType = "custom"
)

var accountTypes = []AccountType{AccountTypeBrokerage, AccountTypeCryptoWallet, AccountTypeMetals, AccountTypeCustom}

func ParseAccountType(s string) (AccountType, error) {
	at := AccountType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range accountTypes {
		if at == known {
			return at, nil
		}
	}
	return "", fmt.Errorf("unknown account type %q", s)
}

// CellSource is the provenance of a stored cell value. It decides whether recompute may overwrite it.
type CellSource string

const (
	SourceSystem  CellSource = "SYSTEM"
	SourceFormula CellSource = "FORMULA"
	SourceUser    CellSource = "USER"
)

// DependencyPolicy controls how a formula treats blank dependency values.
type DependencyPolicy string

const (
	// DependencyStrict omits blank dependencies from the evaluation context.
	DependencyStrict DependencyPolicy = "strict"
	// DependencyAutoExpand substitutes zero for blank dependencies.
	DependencyAutoExpand DependencyPolicy = "auto_expand"
)

// FxRateIdentifier is injected by the evaluator: the rate from the asset currency to the portfolio profile currency.
const FxRateIdentifier = "fx_rate"

// IsImplicitIdentifier reports whether a formula dependency is resolved by the evaluator rather than by a column.
func IsImplicitIdentifier(identifier string) bool {
	return identifier == FxRateIdentifier
}
