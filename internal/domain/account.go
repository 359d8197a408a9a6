package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Portfolio owns accounts and carries the profile currency every holding is valued in.
type Portfolio struct {
	PortfolioID     uuid.UUID `gorm:"column:portfolio_id;type:uuid;primaryKey" json:"portfolio_id"`
	Name            string    `gorm:"column:name;not null" json:"name"`
	ProfileCurrency string    `gorm:"column:profile_currency;type:varchar(3);not null" json:"profile_currency"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}

func (p *Portfolio) BeforeCreate(tx *gorm.DB) error {
	if p.PortfolioID == uuid.Nil {
		p.PortfolioID = uuid.New()
	}
	return nil
}

// Account groups holdings; its (portfolio, account type) pair selects the schema.
type Account struct {
	AccountID   uuid.UUID   `gorm:"column:account_id;type:uuid;primaryKey" json:"account_id"`
	PortfolioID uuid.UUID   `gorm:"column:portfolio_id;type:uuid;not null;index" json:"portfolio_id"`
	AccountType AccountType `gorm:"column:account_type;type:varchar(32);not null" json:"account_type"`
	Name        string      `gorm:"column:name;not null" json:"name"`
	CreatedAt   time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.AccountID == uuid.Nil {
		a.AccountID = uuid.New()
	}
	return nil
}

// FxRate is one quoted conversion rate; 1 FromCurrency = Rate ToCurrency.
type FxRate struct {
	RateID       uuid.UUID       `gorm:"column:rate_id;type:uuid;primaryKey" json:"rate_id"`
	FromCurrency string          `gorm:"column:from_currency;type:varchar(3);not null;uniqueIndex:idx_fx_pair" json:"from_currency"`
	ToCurrency   string          `gorm:"column:to_currency;type:varchar(3);not null;uniqueIndex:idx_fx_pair" json:"to_currency"`
	Rate         decimal.Decimal `gorm:"column:rate;type:numeric(30,10);not null" json:"rate"`
	UpdatedAt    time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (FxRate) TableName() string {
	return "fx_rates"
}

func (r *FxRate) BeforeCreate(tx *gorm.DB) error {
	if r.RateID == uuid.Nil {
		r.RateID = uuid.New()
	}
	return nil
}
