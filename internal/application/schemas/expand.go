package schemas

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"folio-backend/internal/catalog"
	"folio-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// EnsureSchema returns the schema serving account, creating it from the
// default-column policy of the account type on first use.
func (s *Service) EnsureSchema(ctx context.Context, account domain.Account) (*domain.Schema, error) {
	var schema *domain.Schema
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		schema, err = s.EnsureSchemaWithTx(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return schema, nil
}

// EnsureSchemaWithTx is EnsureSchema inside the caller's transaction.
func (s *Service) EnsureSchemaWithTx(ctx context.Context, tx *gorm.DB, account domain.Account) (*domain.Schema, error) {
	existing, err := s.SchemaFor(ctx, tx, account)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrSchemaNotFound) {
		return nil, err
	}

	schema := &domain.Schema{
		PortfolioID: account.PortfolioID,
		AccountType: account.AccountType,
		Name:        string(account.AccountType),
	}
	if err := tx.WithContext(ctx).Create(schema).Error; err != nil {
		return nil, err
	}
	for _, identifier := range s.Templates.DefaultColumns(account.AccountType) {
		if _, err := s.addSystemColumnTx(ctx, tx, *schema, identifier, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	log.Info().Str("schema_id", schema.SchemaID.String()).Str("account_type", string(account.AccountType)).Msg("schema created")
	if _, err := s.SchemaChanged(ctx, tx, schema.SchemaID); err != nil {
		return nil, err
	}
	return schema, nil
}

// AddSystemColumn expands a template into the schema. It is idempotent and
// pulls in the templates of any columns the template's formulas read.
func (s *Service) AddSystemColumn(ctx context.Context, schemaID uuid.UUID, templateIdentifier string) (*domain.SchemaColumn, error) {
	var col *domain.SchemaColumn
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schema, err := loadSchema(ctx, tx, schemaID)
		if err != nil {
			return err
		}
		col, err = s.addSystemColumnTx(ctx, tx, *schema, templateIdentifier, map[string]bool{})
		if err != nil {
			return err
		}
		_, err = s.SchemaChanged(ctx, tx, schemaID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return col, nil
}

func (s *Service) addSystemColumnTx(ctx context.Context, tx *gorm.DB, schema domain.Schema, identifier string, visiting map[string]bool) (*domain.SchemaColumn, error) {
	db := tx.WithContext(ctx)

	var existing domain.SchemaColumn
	err := db.Where("schema_id = ? AND identifier = ?", schema.SchemaID, identifier).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tmpl, ok := s.Templates.Column(identifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTemplate, identifier)
	}
	if visiting[identifier] {
		return nil, fmt.Errorf("%w: templates of %s depend on each other", domain.ErrCyclicDependency, identifier)
	}
	visiting[identifier] = true
	defer delete(visiting, identifier)

	for _, dep := range s.Templates.Dependencies(tmpl) {
		if _, ok := s.Templates.Column(dep); !ok {
			var count int64
			if err := db.Model(&domain.SchemaColumn{}).Where("schema_id = ? AND identifier = ?", schema.SchemaID, dep).Count(&count).Error; err != nil {
				return nil, err
			}
			if count == 0 {
				return nil, &domain.MissingDependencyError{Column: identifier, Dependency: dep}
			}
			continue
		}
		if _, err := s.addSystemColumnTx(ctx, tx, schema, dep, visiting); err != nil {
			return nil, err
		}
	}

	formulaIDs := map[string]uuid.UUID{}
	for _, fid := range tmpl.FormulaIdentifiers() {
		def, err := s.upsertSystemFormula(ctx, tx, fid)
		if err != nil {
			return nil, err
		}
		formulaIDs[fid] = def.FormulaID
	}

	order, err := nextDisplayOrder(ctx, tx, schema.SchemaID)
	if err != nil {
		return nil, err
	}
	templateID := tmpl.Identifier
	col := &domain.SchemaColumn{
		SchemaID:           schema.SchemaID,
		Identifier:         tmpl.Identifier,
		Title:              tmpl.Title,
		DataType:           tmpl.DataType,
		Category:           tmpl.Category,
		IsSystem:           true,
		IsEditable:         tmpl.IsEditable,
		IsDeletable:        false,
		DisplayOrder:       order,
		TemplateIdentifier: &templateID,
	}
	if err := db.Create(col).Error; err != nil {
		return nil, err
	}

	if err := s.attachConstraints(ctx, tx, *col, tmpl.Constraints); err != nil {
		return nil, err
	}
	if err := attachTemplateBehaviors(ctx, tx, col.ColumnID, tmpl, formulaIDs); err != nil {
		return nil, err
	}
	if err := ensureColumnValues(ctx, tx, schema, col.ColumnID); err != nil {
		return nil, err
	}
	log.Debug().Str("schema_id", schema.SchemaID.String()).Str("column", col.Identifier).Msg("system column added")
	return col, nil
}

func (s *Service) attachConstraints(ctx context.Context, tx *gorm.DB, col domain.SchemaColumn, overrides []catalog.ConstraintOverride) error {
	rows, err := s.Constraints.Instantiate(col.ColumnID, col.DataType, overrides)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&rows).Error
}

func attachTemplateBehaviors(ctx context.Context, tx *gorm.DB, columnID uuid.UUID, tmpl catalog.ColumnTemplate, formulaIDs map[string]uuid.UUID) error {
	sources := tmpl.Sources()
	types := make([]string, 0, len(sources))
	for at := range sources {
		types = append(types, string(at))
	}
	sort.Strings(types)

	rows := make([]domain.ColumnAssetBehavior, 0, len(types))
	for _, at := range types {
		src := sources[domain.AssetType(at)]
		if ref, ok := src.(domain.FormulaRef); ok {
			src = domain.FormulaRef{FormulaID: formulaIDs[ref.Identifier], Identifier: ref.Identifier}
		}
		rows = append(rows, domain.NewBehavior(columnID, domain.AssetType(at), src))
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&rows).Error
}

// upsertSystemFormula makes the stored system formula match the catalog.
func (s *Service) upsertSystemFormula(ctx context.Context, tx *gorm.DB, identifier string) (*domain.FormulaDefinition, error) {
	tmpl, ok := s.Templates.Formula(identifier)
	if !ok {
		return nil, fmt.Errorf("%w: formula %s", domain.ErrUnknownTemplate, identifier)
	}
	db := tx.WithContext(ctx)

	var def domain.FormulaDefinition
	err := db.Where("identifier = ? AND is_system = ?", identifier, true).First(&def).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		def = domain.FormulaDefinition{
			Identifier:       identifier,
			Expression:       tmpl.Expression,
			DecimalPlaces:    tmpl.DecimalPlaces,
			DependencyPolicy: tmpl.Policy,
			IsSystem:         true,
		}
		def.SetDependencies(tmpl.Dependencies())
		if err := db.Create(&def).Error; err != nil {
			return nil, err
		}
		return &def, nil
	case err != nil:
		return nil, err
	}

	if def.Expression != tmpl.Expression || def.DependencyPolicy != tmpl.Policy || !samePlaces(def.DecimalPlaces, tmpl.DecimalPlaces) {
		def.Expression = tmpl.Expression
		def.DecimalPlaces = tmpl.DecimalPlaces
		def.DependencyPolicy = tmpl.Policy
		def.SetDependencies(tmpl.Dependencies())
		if err := db.Save(&def).Error; err != nil {
			return nil, err
		}
	}
	return &def, nil
}

func samePlaces(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
