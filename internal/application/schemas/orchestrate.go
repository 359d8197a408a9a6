package schemas

import (
	"context"
	"errors"

	"folio-backend/internal/domain"
	"folio-backend/internal/fx"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecomputeReport summarizes one recompute pass.
type RecomputeReport struct {
	SchemaID          uuid.UUID `json:"schema_id"`
	Holdings          int       `json:"holdings"`
	CellsWritten      int       `json:"cells_written"`
	FailedCells       int       `json:"failed_cells"`
	RevertedOverrides int       `json:"reverted_overrides"`
	CycleDetected     bool      `json:"cycle_detected"`
	CyclicColumns     []string  `json:"cyclic_columns,omitempty"`
}

// SchemaChanged recomputes every cell of every holding the schema serves. It
// runs inside the caller's transaction and is the entry point every structural
// mutation ends with.
func (s *Service) SchemaChanged(ctx context.Context, tx *gorm.DB, schemaID uuid.UUID) (RecomputeReport, error) {
	report := RecomputeReport{SchemaID: schemaID}
	st, err := loadState(ctx, tx, schemaID)
	if err != nil {
		return report, err
	}
	var holdings []domain.Holding
	if err := holdingsQuery(ctx, tx, st.schema).Order("holdings.created_at, holdings.holding_id").Find(&holdings).Error; err != nil {
		return report, err
	}
	p, err := s.newPass(ctx, tx, st, &report)
	if err != nil {
		return report, err
	}
	for i := range holdings {
		if err := p.recomputeHolding(ctx, &holdings[i]); err != nil {
			return report, err
		}
	}
	return report, nil
}

// HoldingChanged recomputes the cells of one holding.
func (s *Service) HoldingChanged(ctx context.Context, tx *gorm.DB, holdingID uuid.UUID) (RecomputeReport, error) {
	var holding domain.Holding
	if err := tx.WithContext(ctx).First(&holding, "holding_id = ?", holdingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RecomputeReport{}, domain.ErrHoldingNotFound
		}
		return RecomputeReport{}, err
	}
	var account domain.Account
	if err := tx.WithContext(ctx).First(&account, "account_id = ?", holding.AccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RecomputeReport{}, domain.ErrAccountNotFound
		}
		return RecomputeReport{}, err
	}
	schema, err := s.SchemaFor(ctx, tx, account)
	if err != nil {
		return RecomputeReport{}, err
	}
	report := RecomputeReport{SchemaID: schema.SchemaID}
	st, err := loadState(ctx, tx, schema.SchemaID)
	if err != nil {
		return report, err
	}
	p, err := s.newPass(ctx, tx, st, &report)
	if err != nil {
		return report, err
	}
	return report, p.recomputeHolding(ctx, &holding)
}

// Recompute runs SchemaChanged in its own transaction.
func (s *Service) Recompute(ctx context.Context, schemaID uuid.UUID) (RecomputeReport, error) {
	var report RecomputeReport
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		report, err = s.SchemaChanged(ctx, tx, schemaID)
		return err
	})
	return report, err
}

// recomputeCurrency recomputes every schema of the portfolios valued in currency.
func (s *Service) recomputeCurrency(ctx context.Context, tx *gorm.DB, currency string) ([]RecomputeReport, error) {
	var ids []uuid.UUID
	if err := tx.WithContext(ctx).Model(&domain.Schema{}).
		Joins("JOIN portfolios ON portfolios.portfolio_id = schemas.portfolio_id").
		Where("portfolios.profile_currency = ?", fx.NormalizeCurrency(currency)).
		Order("schemas.created_at, schemas.schema_id").
		Pluck("schemas.schema_id", &ids).Error; err != nil {
		return nil, err
	}
	reports := make([]RecomputeReport, 0, len(ids))
	for _, id := range ids {
		report, err := s.SchemaChanged(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// ApplyFxRate stores a rate and recomputes every schema whose portfolio is
// valued in the target currency, all in one transaction. A cached copy of the
// pair is dropped before the pass reads it and again once the transaction is
// over, so a rolled-back rate never stays in the cache.
func (s *Service) ApplyFxRate(ctx context.Context, from, to string, rate decimal.Decimal) (*domain.FxRate, []RecomputeReport, error) {
	s.dropCachedRate(ctx, from, to)
	defer s.dropCachedRate(ctx, from, to)

	var row *domain.FxRate
	var reports []RecomputeReport
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if row, err = (&fx.Store{DB: tx}).SetRate(ctx, from, to, rate); err != nil {
			return err
		}
		reports, err = s.recomputeCurrency(ctx, tx, row.ToCurrency)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("pair", fx.CacheKey(from, to)).Int("schemas", len(reports)).Msg("fx rate applied")
	return row, reports, nil
}

func (s *Service) dropCachedRate(ctx context.Context, from, to string) {
	inv, ok := s.Fx.(fx.Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, from, to); err != nil {
		log.Warn().Err(err).Str("pair", fx.CacheKey(from, to)).Msg("fx cache invalidation failed")
	}
}

func (s *Service) newPass(ctx context.Context, tx *gorm.DB, st *schemaState, report *RecomputeReport) (*pass, error) {
	order, po := st.order()
	if !po.Complete {
		report.CycleDetected = true
		report.CyclicColumns = po.Cyclic
		log.Warn().
			Str("schema_id", st.schema.SchemaID.String()).
			Strs("columns", po.Cyclic).
			Msg("formula dependency cycle, evaluating remaining columns by display order")
	}
	var portfolio domain.Portfolio
	if err := tx.WithContext(ctx).First(&portfolio, "portfolio_id = ?", st.schema.PortfolioID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPortfolioNotFound
		}
		return nil, err
	}
	return &pass{
		tx:              tx,
		state:           st,
		order:           order,
		profileCurrency: portfolio.ProfileCurrency,
		rates:           fx.NewMemo(fx.Bind(s.Fx, tx)),
		assets:          map[uuid.UUID]*domain.Asset{},
		report:          report,
	}, nil
}
