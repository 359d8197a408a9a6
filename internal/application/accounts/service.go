package accounts

import (
	"context"
	"errors"
	"strings"

	"folio-backend/internal/application/schemas"
	"folio-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service owns portfolios and accounts. Creating an account bootstraps the
// schema of its (portfolio, account type) pair.
type Service struct {
	DB      *gorm.DB
	Schemas *schemas.Service
}

type CreatePortfolioInput struct {
	Name            string `json:"name" binding:"required,max=255"`
	ProfileCurrency string `json:"profile_currency" binding:"required,currency"`
}

type CreateAccountInput struct {
	PortfolioID uuid.UUID `json:"portfolio_id" binding:"required"`
	AccountType string    `json:"account_type" binding:"required,account_type"`
	Name        string    `json:"name" binding:"required,max=255"`
}

// CreatePortfolio stores a portfolio with an upper-cased profile currency.
func (s *Service) CreatePortfolio(ctx context.Context, in CreatePortfolioInput) (*domain.Portfolio, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.Invalid("name", "is required")
	}
	p := &domain.Portfolio{Name: name, ProfileCurrency: strings.ToUpper(strings.TrimSpace(in.ProfileCurrency))}
	if len(p.ProfileCurrency) != 3 {
		return nil, domain.Invalid("profile_currency", "must be a 3-letter code")
	}
	if err := s.DB.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetPortfolio loads a portfolio.
func (s *Service) GetPortfolio(ctx context.Context, portfolioID uuid.UUID) (*domain.Portfolio, error) {
	var p domain.Portfolio
	if err := s.DB.WithContext(ctx).Where("portfolio_id = ?", portfolioID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPortfolioNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdateProfileCurrency changes the valuation currency and recomputes every
// schema of the portfolio, since fx_rate depends on it.
func (s *Service) UpdateProfileCurrency(ctx context.Context, portfolioID uuid.UUID, currency string) (*domain.Portfolio, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return nil, domain.Invalid("profile_currency", "must be a 3-letter code")
	}
	var p domain.Portfolio
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("portfolio_id = ?", portfolioID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrPortfolioNotFound
			}
			return err
		}
		if p.ProfileCurrency == currency {
			return nil
		}
		p.ProfileCurrency = currency
		if err := tx.WithContext(ctx).Save(&p).Error; err != nil {
			return err
		}
		var ids []uuid.UUID
		if err := tx.WithContext(ctx).Model(&domain.Schema{}).Where("portfolio_id = ?", portfolioID).Order("account_type").Pluck("schema_id", &ids).Error; err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := s.Schemas.SchemaChanged(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateAccount stores the account and makes sure its schema exists.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (*domain.Account, *domain.Schema, error) {
	accountType, err := domain.ParseAccountType(in.AccountType)
	if err != nil {
		return nil, nil, domain.Invalid("account_type", "%s", err.Error())
	}
	account := &domain.Account{PortfolioID: in.PortfolioID, AccountType: accountType, Name: strings.TrimSpace(in.Name)}
	var schema *domain.Schema
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p domain.Portfolio
		if err := tx.WithContext(ctx).Where("portfolio_id = ?", in.PortfolioID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrPortfolioNotFound
			}
			return err
		}
		if err := tx.WithContext(ctx).Create(account).Error; err != nil {
			return err
		}
		var err error
		schema, err = s.Schemas.EnsureSchemaWithTx(ctx, tx, *account)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return account, schema, nil
}

// GetAccount loads an account.
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var a domain.Account
	if err := s.DB.WithContext(ctx).Where("account_id = ?", accountID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListAccounts returns the accounts of a portfolio.
func (s *Service) ListAccounts(ctx context.Context, portfolioID uuid.UUID) ([]domain.Account, error) {
	if _, err := s.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	var out []domain.Account
	if err := s.DB.WithContext(ctx).Where("portfolio_id = ?", portfolioID).Order("created_at, account_id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAccount removes the account with its holdings and their cells. The
// schema is dropped with the last account of its type.
func (s *Service) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		db := tx.WithContext(ctx)
		var account domain.Account
		if err := db.Where("account_id = ?", accountID).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrAccountNotFound
			}
			return err
		}
		holdingIDs := db.Model(&domain.Holding{}).Select("holding_id").Where("account_id = ?", accountID)
		if err := db.Where("holding_id IN (?)", holdingIDs).Delete(&domain.SchemaColumnValue{}).Error; err != nil {
			return err
		}
		if err := db.Where("account_id = ?", accountID).Delete(&domain.Holding{}).Error; err != nil {
			return err
		}
		if err := db.Delete(&account).Error; err != nil {
			return err
		}

		var remaining int64
		if err := db.Model(&domain.Account{}).
			Where("portfolio_id = ? AND account_type = ?", account.PortfolioID, account.AccountType).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		schema, err := s.Schemas.SchemaFor(ctx, tx, account)
		if errors.Is(err, domain.ErrSchemaNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.Schemas.DropSchema(ctx, tx, schema.SchemaID); err != nil {
			return err
		}
		log.Info().Str("schema_id", schema.SchemaID.String()).Str("account_type", string(account.AccountType)).Msg("schema dropped with last account")
		return nil
	})
}
