package fx

import (
	"context"
	"errors"

	"folio-backend/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store keeps rates in the fx_rates table.
type Store struct {
	DB *gorm.DB
}

func (s *Store) WithTx(tx *gorm.DB) Lookup {
	return &Store{DB: tx}
}

func (s *Store) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = NormalizeCurrency(from), NormalizeCurrency(to)
	var row domain.FxRate
	err := s.DB.WithContext(ctx).
		Where("from_currency = ? AND to_currency = ?", from, to).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, &NoRateError{From: from, To: to}
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.Rate, nil
}

// SetRate inserts or replaces the rate for a pair.
func (s *Store) SetRate(ctx context.Context, from, to string, rate decimal.Decimal) (*domain.FxRate, error) {
	if !rate.IsPositive() {
		return nil, ErrInvalidRate
	}
	row := &domain.FxRate{
		FromCurrency: NormalizeCurrency(from),
		ToCurrency:   NormalizeCurrency(to),
		Rate:         rate,
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "from_currency"}, {Name: "to_currency"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ListRates returns every stored pair ordered by from/to.
func (s *Store) ListRates(ctx context.Context) ([]domain.FxRate, error) {
	var rows []domain.FxRate
	err := s.DB.WithContext(ctx).Order("from_currency, to_currency").Find(&rows).Error
	return rows, err
}
