package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Schema is the column set shared by every account of one type inside one portfolio.
type Schema struct {
	SchemaID    uuid.UUID   `gorm:"column:schema_id;type:uuid;primaryKey" json:"schema_id"`
	PortfolioID uuid.UUID   `gorm:"column:portfolio_id;type:uuid;not null;uniqueIndex:idx_schema_portfolio_type" json:"portfolio_id"`
	AccountType AccountType `gorm:"column:account_type;type:varchar(32);not null;uniqueIndex:idx_schema_portfolio_type" json:"account_type"`
	Name        string      `gorm:"column:name" json:"name"`
	CreatedAt   time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

func (Schema) TableName() string {
	return "schemas"
}

func (s *Schema) BeforeCreate(tx *gorm.DB) error {
	if s.SchemaID == uuid.Nil {
		s.SchemaID = uuid.New()
	}
	return nil
}

// SchemaColumn is one column of a schema. IsEditable governs value overrides; structure of
// system columns is never editable.
type SchemaColumn struct {
	ColumnID           uuid.UUID `gorm:"column:column_id;type:uuid;primaryKey" json:"column_id"`
	SchemaID           uuid.UUID `gorm:"column:schema_id;type:uuid;not null;uniqueIndex:idx_column_schema_identifier" json:"schema_id"`
	Identifier         string    `gorm:"column:identifier;not null;uniqueIndex:idx_column_schema_identifier" json:"identifier"`
	Title              string    `gorm:"column:title;not null" json:"title"`
	DataType           DataType  `gorm:"column:data_type;type:varchar(16);not null" json:"data_type"`
	Category           string    `gorm:"column:category" json:"category"`
	IsSystem           bool      `gorm:"column:is_system;not null" json:"is_system"`
	IsEditable         bool      `gorm:"column:is_editable;not null" json:"is_editable"`
	IsDeletable        bool      `gorm:"column:is_deletable;not null" json:"is_deletable"`
	DisplayOrder       int       `gorm:"column:display_order;not null" json:"display_order"`
	TemplateIdentifier *string   `gorm:"column:template_identifier" json:"template_identifier"`
	CreatedAt          time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (SchemaColumn) TableName() string {
	return "schema_columns"
}

func (c *SchemaColumn) BeforeCreate(tx *gorm.DB) error {
	if c.ColumnID == uuid.Nil {
		c.ColumnID = uuid.New()
	}
	return nil
}

// FormulaDefinition is a named arithmetic expression over column identifiers.
// DecimalPlaces nil means "inherit from the target column".
type FormulaDefinition struct {
	FormulaID        uuid.UUID        `gorm:"column:formula_id;type:uuid;primaryKey" json:"formula_id"`
	SchemaID         *uuid.UUID       `gorm:"column:schema_id;type:uuid;index" json:"schema_id"`
	Identifier       string           `gorm:"column:identifier;not null;index" json:"identifier"`
	Expression       string           `gorm:"column:expression;type:text;not null" json:"expression"`
	Dependencies     datatypes.JSON   `gorm:"column:dependencies" json:"dependencies"`
	DecimalPlaces    *int             `gorm:"column:decimal_places" json:"decimal_places"`
	DependencyPolicy DependencyPolicy `gorm:"column:dependency_policy;type:varchar(16);not null" json:"dependency_policy"`
	IsSystem         bool             `gorm:"column:is_system;not null" json:"is_system"`
	CreatedAt        time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

func (FormulaDefinition) TableName() string {
	return "formula_definitions"
}

func (f *FormulaDefinition) BeforeCreate(tx *gorm.DB) error {
	if f.FormulaID == uuid.Nil {
		f.FormulaID = uuid.New()
	}
	if f.DependencyPolicy == "" {
		f.DependencyPolicy = DependencyStrict
	}
	return nil
}

// DependencyList decodes Dependencies. Malformed JSON yields no dependencies.
func (f *FormulaDefinition) DependencyList() []string {
	var deps []string
	if len(f.Dependencies) == 0 {
		return deps
	}
	_ = json.Unmarshal(f.Dependencies, &deps)
	return deps
}

func (f *FormulaDefinition) SetDependencies(deps []string) {
	if deps == nil {
		deps = []string{}
	}
	raw, _ := json.Marshal(deps)
	f.Dependencies = datatypes.JSON(raw)
}

// BehaviorKind tags how a column's value is produced for one asset type.
type BehaviorKind string

const (
	BehaviorHolding  BehaviorKind = "holding"
	BehaviorAsset    BehaviorKind = "asset"
	BehaviorConstant BehaviorKind = "constant"
	BehaviorFormula  BehaviorKind = "formula"
)

// ValueSource is the closed set of behavior sources.
type ValueSource interface {
	Kind() BehaviorKind
}

// HoldingField reads a named field off the holding.
type HoldingField struct{ Field string }

// AssetField reads a named field off the holding's asset.
type AssetField struct{ Field string }

// Constant is a fixed text value.
type Constant struct{ Value string }

// FormulaRef points at a FormulaDefinition, by id once persisted or by identifier in templates.
type FormulaRef struct {
	FormulaID  uuid.UUID
	Identifier string
}

func (HoldingField) Kind() BehaviorKind { return BehaviorHolding }
func (AssetField) Kind() BehaviorKind   { return BehaviorAsset }
func (Constant) Kind() BehaviorKind     { return BehaviorConstant }
func (FormulaRef) Kind() BehaviorKind   { return BehaviorFormula }

// ColumnAssetBehavior declares the value source of a column for holdings of one asset type.
type ColumnAssetBehavior struct {
	BehaviorID uuid.UUID    `gorm:"column:behavior_id;type:uuid;primaryKey" json:"behavior_id"`
	ColumnID   uuid.UUID    `gorm:"column:column_id;type:uuid;not null;uniqueIndex:idx_behavior_column_asset" json:"column_id"`
	AssetType  AssetType    `gorm:"column:asset_type;type:varchar(16);not null;uniqueIndex:idx_behavior_column_asset" json:"asset_type"`
	Kind       BehaviorKind `gorm:"column:source;type:varchar(16);not null" json:"source"`
	Field      string       `gorm:"column:field" json:"field,omitempty"`
	Constant   *string      `gorm:"column:constant" json:"constant,omitempty"`
	FormulaID  *uuid.UUID   `gorm:"column:formula_id;type:uuid;index" json:"formula_id,omitempty"`
}

func (ColumnAssetBehavior) TableName() string {
	return "column_asset_behaviors"
}

func (b *ColumnAssetBehavior) BeforeCreate(tx *gorm.DB) error {
	if b.BehaviorID == uuid.Nil {
		b.BehaviorID = uuid.New()
	}
	return nil
}

// NewBehavior builds the persisted row for src.
func NewBehavior(columnID uuid.UUID, assetType AssetType, src ValueSource) ColumnAssetBehavior {
	b := ColumnAssetBehavior{ColumnID: columnID, AssetType: assetType, Kind: src.Kind()}
	switch s := src.(type) {
	case HoldingField:
		b.Field = s.Field
	case AssetField:
		b.Field = s.Field
	case Constant:
		v := s.Value
		b.Constant = &v
	case FormulaRef:
		id := s.FormulaID
		b.FormulaID = &id
	}
	return b
}

// Source converts the row back into its ValueSource. Unknown or incomplete rows yield nil.
func (b ColumnAssetBehavior) Source() ValueSource {
	switch b.Kind {
	case BehaviorHolding:
		return HoldingField{Field: b.Field}
	case BehaviorAsset:
		return AssetField{Field: b.Field}
	case BehaviorConstant:
		if b.Constant == nil {
			return Constant{}
		}
		return Constant{Value: *b.Constant}
	case BehaviorFormula:
		if b.FormulaID == nil {
			return nil
		}
		return FormulaRef{FormulaID: *b.FormulaID}
	}
	return nil
}

// ConstraintName identifies a rule attached to a column.
type ConstraintName string

const (
	ConstraintDecimalPlaces ConstraintName = "decimal_places"
	ConstraintMin           ConstraintName = "min"
	ConstraintMax           ConstraintName = "max"
	ConstraintMinLength     ConstraintName = "min_length"
	ConstraintMaxLength     ConstraintName = "max_length"
	ConstraintEnum          ConstraintName = "enum"
)

// EnumOptions is the value of an enum constraint. ByAssetType overrides Values for listed asset types.
type EnumOptions struct {
	Values      []string               `json:"values"`
	ByAssetType map[AssetType][]string `json:"by_asset_type,omitempty"`
}

// AllowedFor returns the allowed set for holdings of assetType.
func (e EnumOptions) AllowedFor(assetType AssetType) []string {
	if vals, ok := e.ByAssetType[assetType]; ok {
		return vals
	}
	return e.Values
}

// ColumnConstraint is a per-column copy of a master constraint. MinValue and MaxValue bound the
// constraint's own value when a user edits it.
type ColumnConstraint struct {
	ConstraintID uuid.UUID        `gorm:"column:constraint_id;type:uuid;primaryKey" json:"constraint_id"`
	ColumnID     uuid.UUID        `gorm:"column:column_id;type:uuid;not null;uniqueIndex:idx_constraint_column_name" json:"column_id"`
	Name         ConstraintName   `gorm:"column:name;type:varchar(32);not null;uniqueIndex:idx_constraint_column_name" json:"name"`
	Value        ConstraintValue  `gorm:"column:value" json:"value"`
	MinValue     *decimal.Decimal `gorm:"column:min_value;type:numeric(30,10)" json:"min_value"`
	MaxValue     *decimal.Decimal `gorm:"column:max_value;type:numeric(30,10)" json:"max_value"`
	IsEditable   bool             `gorm:"column:is_editable;not null" json:"is_editable"`
	UpdatedAt    time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

func (ColumnConstraint) TableName() string {
	return "column_constraints"
}

func (c *ColumnConstraint) BeforeCreate(tx *gorm.DB) error {
	if c.ConstraintID == uuid.Nil {
		c.ConstraintID = uuid.New()
	}
	return nil
}

// IsSet reports whether the constraint carries a value; an unset min or max is unbounded.
func (c ColumnConstraint) IsSet() bool {
	s := string(c.Value)
	return len(s) > 0 && s != "null"
}

func (c ColumnConstraint) IntValue() (int, bool) {
	if !c.IsSet() {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(c.Value, &n); err != nil {
		return 0, false
	}
	return n, true
}

func (c ColumnConstraint) DecimalValue() (decimal.Decimal, bool) {
	if !c.IsSet() {
		return decimal.Zero, false
	}
	var d decimal.Decimal
	if err := json.Unmarshal(c.Value, &d); err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (c ColumnConstraint) EnumValue() (EnumOptions, bool) {
	var e EnumOptions
	if !c.IsSet() {
		return e, false
	}
	if err := json.Unmarshal(c.Value, &e); err != nil {
		return e, false
	}
	return e, true
}

// SchemaColumnValue is the materialized cell for one (column, holding) pair.
type SchemaColumnValue struct {
	ValueID   uuid.UUID  `gorm:"column:value_id;type:uuid;primaryKey" json:"value_id"`
	ColumnID  uuid.UUID  `gorm:"column:column_id;type:uuid;not null;uniqueIndex:idx_scv_column_holding" json:"column_id"`
	HoldingID uuid.UUID  `gorm:"column:holding_id;type:uuid;not null;uniqueIndex:idx_scv_column_holding;index" json:"holding_id"`
	Value     *string    `gorm:"column:value;type:text" json:"value"`
	Source    CellSource `gorm:"column:source;type:varchar(8);not null" json:"source"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (SchemaColumnValue) TableName() string {
	return "schema_column_values"
}

func (v *SchemaColumnValue) BeforeCreate(tx *gorm.DB) error {
	if v.ValueID == uuid.Nil {
		v.ValueID = uuid.New()
	}
	if v.Source == "" {
		v.Source = SourceSystem
	}
	return nil
}
