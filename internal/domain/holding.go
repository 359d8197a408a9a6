package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Asset is the instrument behind a holding. Price ingestion happens elsewhere; the engine only reads it.
type Asset struct {
	AssetID    uuid.UUID       `gorm:"column:asset_id;type:uuid;primaryKey" json:"asset_id"`
	AssetType  AssetType       `gorm:"column:asset_type;type:varchar(16);not null" json:"asset_type"`
	Symbol     string          `gorm:"column:symbol;not null" json:"symbol"`
	Name       string          `gorm:"column:name;not null" json:"name"`
	Currency   string          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(30,10);not null" json:"price"`
	Attributes datatypes.JSON  `gorm:"column:attributes" json:"attributes,omitempty"`
	CreatedAt  time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Asset) TableName() string {
	return "assets"
}

func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.AssetID == uuid.Nil {
		a.AssetID = uuid.New()
	}
	return nil
}

// Field returns the raw value of a named asset field, falling back to free-form attributes.
func (a *Asset) Field(name string) (any, bool) {
	switch name {
	case "price":
		return a.Price, true
	case "symbol":
		return a.Symbol, true
	case "name":
		return a.Name, true
	case "currency":
		return a.Currency, true
	case "asset_type":
		return string(a.AssetType), true
	}
	v, ok := attributes(a.Attributes)[name]
	return v, ok
}

// Holding is a position of one asset inside one account.
type Holding struct {
	HoldingID    uuid.UUID       `gorm:"column:holding_id;type:uuid;primaryKey" json:"holding_id"`
	AccountID    uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index" json:"account_id"`
	AssetID      uuid.UUID       `gorm:"column:asset_id;type:uuid;not null;index" json:"asset_id"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:numeric(30,10);not null" json:"quantity"`
	AverageCost  decimal.Decimal `gorm:"column:average_cost;type:numeric(30,10);not null" json:"average_cost"`
	WeightOz     decimal.Decimal `gorm:"column:weight_oz;type:numeric(30,10);not null" json:"weight_oz"`
	PurchaseDate *time.Time      `gorm:"column:purchase_date" json:"purchase_date"`
	Notes        string          `gorm:"column:notes" json:"notes"`
	Attributes   datatypes.JSON  `gorm:"column:attributes" json:"attributes,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Holding) TableName() string {
	return "holdings"
}

// BeforeCreate: never insert zero UUID for primary key; generate random when not set.
func (h *Holding) BeforeCreate(tx *gorm.DB) error {
	if h.HoldingID == uuid.Nil {
		h.HoldingID = uuid.New()
	}
	return nil
}

// Field returns the raw value of a named holding field, falling back to free-form attributes.
func (h *Holding) Field(name string) (any, bool) {
	switch name {
	case "quantity":
		return h.Quantity, true
	case "average_cost":
		return h.AverageCost, true
	case "weight_oz":
		return h.WeightOz, true
	case "purchase_date":
		if h.PurchaseDate == nil {
			return nil, true
		}
		return *h.PurchaseDate, true
	case "notes":
		return h.Notes, true
	}
	v, ok := attributes(h.Attributes)[name]
	return v, ok
}

// SetField writes a typed value into a named holding field. Unknown names land in attributes.
func (h *Holding) SetField(name string, v TypedValue) error {
	switch name {
	case "quantity", "average_cost", "weight_oz":
		if v.Null || !v.Type.Numeric() {
			return fmt.Errorf("field %s needs a number", name)
		}
		switch name {
		case "quantity":
			h.Quantity = v.Decimal
		case "average_cost":
			h.AverageCost = v.Decimal
		default:
			h.WeightOz = v.Decimal
		}
		return nil
	case "purchase_date":
		if v.Null {
			h.PurchaseDate = nil
			return nil
		}
		if v.Type != DataTypeDate {
			return fmt.Errorf("field %s needs a date", name)
		}
		d := v.Date
		h.PurchaseDate = &d
		return nil
	case "notes":
		if v.Null {
			h.Notes = ""
			return nil
		}
		h.Notes = v.String()
		return nil
	}
	attrs := attributes(h.Attributes)
	if v.Null {
		delete(attrs, name)
	} else {
		attrs[name] = v.String()
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	h.Attributes = datatypes.JSON(raw)
	return nil
}

// attributes decodes a JSON object keeping numbers as json.Number so decimals survive the round trip.
func attributes(raw datatypes.JSON) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
