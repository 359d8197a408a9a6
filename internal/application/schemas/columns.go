package schemas

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"folio-backend/internal/application/constraints"
	"folio-backend/internal/catalog"
	"folio-backend/internal/domain"
	"folio-backend/internal/formula"
	"folio-backend/internal/graph"
	"folio-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const fallbackSlug = "column"

// uniqueIdentifier slugs title and appends _2, _3, ... until it is free.
func uniqueIdentifier(title string, taken map[string]bool) string {
	base := validation.Slugify(title)
	if base == "" {
		base = fallbackSlug
	}
	free := func(id string) bool { return !taken[id] && !domain.IsImplicitIdentifier(id) }
	if free(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "_" + strconv.Itoa(n)
		if free(candidate) {
			return candidate
		}
	}
}

// AddCustomColumn adds a user column holding free values of dataType.
func (s *Service) AddCustomColumn(ctx context.Context, schemaID uuid.UUID, title string, dataType domain.DataType) (*domain.SchemaColumn, error) {
	var col *domain.SchemaColumn
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := loadState(ctx, tx, schemaID)
		if err != nil {
			return err
		}
		col, err = s.createUserColumn(ctx, tx, st, title, dataType)
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

func (s *Service) createUserColumn(ctx context.Context, tx *gorm.DB, st *schemaState, title string, dataType domain.DataType) (*domain.SchemaColumn, error) {
	order, err := nextDisplayOrder(ctx, tx, st.schema.SchemaID)
	if err != nil {
		return nil, err
	}
	col := &domain.SchemaColumn{
		SchemaID:     st.schema.SchemaID,
		Identifier:   uniqueIdentifier(title, st.identifiers()),
		Title:        title,
		DataType:     dataType,
		Category:     "custom",
		IsSystem:     false,
		IsEditable:   true,
		IsDeletable:  true,
		DisplayOrder: order,
	}
	if err := tx.WithContext(ctx).Create(col).Error; err != nil {
		return nil, err
	}
	if err := s.attachConstraints(ctx, tx, *col, nil); err != nil {
		return nil, err
	}
	if err := ensureColumnValues(ctx, tx, st.schema, col.ColumnID); err != nil {
		return nil, err
	}
	return col, nil
}

// CalculatedColumnInput describes a user formula column.
type CalculatedColumnInput struct {
	Title         string
	Expression    string
	DataType      domain.DataType
	DecimalPlaces *int
	Policy        domain.DependencyPolicy
}

// checkDependencies parses expression and verifies every identifier it reads
// is a column of the schema or implicit.
func checkDependencies(st *schemaState, expression string) ([]string, error) {
	expr, err := formula.Parse(expression)
	if err != nil {
		return nil, domain.Invalid("expression", "%v", err)
	}
	known := st.identifiers()
	deps := expr.Identifiers()
	for _, dep := range deps {
		if !known[dep] && !domain.IsImplicitIdentifier(dep) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDependency, dep)
		}
	}
	return deps, nil
}

func checkPlaces(dp *int) error {
	if dp != nil && (*dp < 0 || *dp > 10) {
		return domain.Invalid("decimal_places", "must be between 0 and 10")
	}
	return nil
}

// AddCalculatedColumn adds a user column computed from a formula over other
// columns of the schema.
func (s *Service) AddCalculatedColumn(ctx context.Context, schemaID uuid.UUID, in CalculatedColumnInput) (*domain.SchemaColumn, error) {
	if in.DataType == "" {
		in.DataType = domain.DataTypeDecimal
	}
	if !in.DataType.Numeric() {
		return nil, domain.Invalid("data_type", "calculated columns must be numeric")
	}
	if err := checkPlaces(in.DecimalPlaces); err != nil {
		return nil, err
	}
	if in.Policy == "" {
		in.Policy = domain.DependencyStrict
	}

	var col *domain.SchemaColumn
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := loadState(ctx, tx, schemaID)
		if err != nil {
			return err
		}
		deps, err := checkDependencies(st, in.Expression)
		if err != nil {
			return err
		}
		col, err = s.createUserColumn(ctx, tx, st, in.Title, in.DataType)
		if err != nil {
			return err
		}
		def := &domain.FormulaDefinition{
			SchemaID:         &schemaID,
			Identifier:       col.Identifier,
			Expression:       in.Expression,
			DecimalPlaces:    in.DecimalPlaces,
			DependencyPolicy: in.Policy,
			IsSystem:         false,
		}
		def.SetDependencies(deps)
		if err := tx.WithContext(ctx).Create(def).Error; err != nil {
			return err
		}
		rows := make([]domain.ColumnAssetBehavior, 0, len(domain.AllAssetTypes))
		for _, at := range domain.AllAssetTypes {
			rows = append(rows, domain.NewBehavior(col.ColumnID, at, domain.FormulaRef{FormulaID: def.FormulaID}))
		}
		if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
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

// UpdateFormula replaces the expression of a calculated column. Edits that
// would make the column depend on itself are rejected.
func (s *Service) UpdateFormula(ctx context.Context, columnID uuid.UUID, expression string, decimalPlaces *int) (*domain.FormulaDefinition, error) {
	if err := checkPlaces(decimalPlaces); err != nil {
		return nil, err
	}
	var def domain.FormulaDefinition
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		col, err := loadColumn(ctx, tx, columnID)
		if err != nil {
			return err
		}
		if col.IsSystem {
			return domain.ErrNotEditable
		}
		st, err := loadState(ctx, tx, col.SchemaID)
		if err != nil {
			return err
		}
		var formulaID *uuid.UUID
		for _, b := range st.behaviors[col.ColumnID] {
			if b.FormulaID != nil {
				formulaID = b.FormulaID
				break
			}
		}
		if formulaID == nil {
			return fmt.Errorf("%w: %s is not a calculated column", domain.ErrNotEditable, col.Identifier)
		}
		deps, err := checkDependencies(st, expression)
		if err != nil {
			return err
		}

		nodes := st.nodes()
		for i := range nodes {
			if nodes[i].Key == col.Identifier {
				nodes[i].DependsOn = deps
			}
		}
		for _, dep := range deps {
			if dep == col.Identifier || graph.Reaches(nodes, dep, col.Identifier) {
				return fmt.Errorf("%w: %s -> %s", domain.ErrCyclicDependency, col.Identifier, dep)
			}
		}

		def = st.formulas[*formulaID]
		def.Expression = expression
		def.DecimalPlaces = decimalPlaces
		def.SetDependencies(deps)
		if err := tx.WithContext(ctx).Save(&def).Error; err != nil {
			return err
		}
		_, err = s.SchemaChanged(ctx, tx, col.SchemaID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// RenameColumn changes a user column's title. The identifier stays stable so
// formulas keep resolving.
func (s *Service) RenameColumn(ctx context.Context, columnID uuid.UUID, title string) (*domain.SchemaColumn, error) {
	var col *domain.SchemaColumn
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		col, err = loadColumn(ctx, tx, columnID)
		if err != nil {
			return err
		}
		if col.IsSystem {
			return domain.ErrNotEditable
		}
		col.Title = title
		if err := tx.WithContext(ctx).Model(col).Update("title", title).Error; err != nil {
			return err
		}
		_, err = s.SchemaChanged(ctx, tx, col.SchemaID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return col, nil
}

// ReorderColumns puts the named columns first, in the given order; the rest
// keep their relative order after them.
func (s *Service) ReorderColumns(ctx context.Context, schemaID uuid.UUID, identifiers []string) ([]domain.SchemaColumn, error) {
	var columns []domain.SchemaColumn
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := loadState(ctx, tx, schemaID)
		if err != nil {
			return err
		}
		rank := make(map[string]int, len(identifiers))
		for i, id := range identifiers {
			if _, ok := st.column(id); !ok {
				return fmt.Errorf("%w: %s", domain.ErrColumnNotFound, id)
			}
			if _, dup := rank[id]; !dup {
				rank[id] = i
			}
		}
		columns = append([]domain.SchemaColumn(nil), st.columns...)
		sort.SliceStable(columns, func(i, j int) bool {
			ri, iok := rank[columns[i].Identifier]
			rj, jok := rank[columns[j].Identifier]
			switch {
			case iok && jok:
				return ri < rj
			case iok != jok:
				return iok
			}
			return false
		})
		for i := range columns {
			if columns[i].DisplayOrder == i {
				continue
			}
			columns[i].DisplayOrder = i
			if err := tx.WithContext(ctx).Model(&columns[i]).Update("display_order", i).Error; err != nil {
				return err
			}
		}
		_, err = s.SchemaChanged(ctx, tx, schemaID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return columns, nil
}

// DeleteColumn removes a deletable column that no other column's formula reads,
// together with its cells, constraints, behaviors and own formula. Dependents
// are reported before deletability so callers learn what blocks the delete.
func (s *Service) DeleteColumn(ctx context.Context, columnID uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		col, err := loadColumn(ctx, tx, columnID)
		if err != nil {
			return err
		}
		st, err := loadState(ctx, tx, col.SchemaID)
		if err != nil {
			return err
		}
		var dependents []string
		for _, key := range graph.Dependents(st.nodes(), col.Identifier) {
			if key != col.Identifier {
				dependents = append(dependents, key)
			}
		}
		if len(dependents) > 0 {
			sort.Strings(dependents)
			return &domain.DependentsExistError{Column: col.Identifier, Dependents: dependents}
		}
		if !col.IsDeletable || col.IsSystem {
			return domain.ErrNotDeletable
		}

		db := tx.WithContext(ctx)
		var ownFormulas []uuid.UUID
		for _, b := range st.behaviors[col.ColumnID] {
			if b.FormulaID != nil && !st.formulas[*b.FormulaID].IsSystem {
				ownFormulas = append(ownFormulas, *b.FormulaID)
			}
		}
		if err := db.Where("column_id = ?", col.ColumnID).Delete(&domain.SchemaColumnValue{}).Error; err != nil {
			return err
		}
		if err := db.Where("column_id = ?", col.ColumnID).Delete(&domain.ColumnConstraint{}).Error; err != nil {
			return err
		}
		if err := db.Where("column_id = ?", col.ColumnID).Delete(&domain.ColumnAssetBehavior{}).Error; err != nil {
			return err
		}
		if len(ownFormulas) > 0 {
			if err := db.Where("formula_id IN ?", ownFormulas).Delete(&domain.FormulaDefinition{}).Error; err != nil {
				return err
			}
		}
		if err := db.Delete(col).Error; err != nil {
			return err
		}
		_, err = s.SchemaChanged(ctx, tx, col.SchemaID)
		return err
	})
}

// UpdateConstraint edits one constraint of a column. Constraints the data type
// supports but the column lacks (such as enum) are attached on first edit for
// user columns.
func (s *Service) UpdateConstraint(ctx context.Context, columnID uuid.UUID, name domain.ConstraintName, patch constraints.Patch) (*domain.ColumnConstraint, error) {
	var row domain.ColumnConstraint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		col, err := loadColumn(ctx, tx, columnID)
		if err != nil {
			return err
		}
		var overrides []catalog.ConstraintOverride
		if col.IsSystem {
			if tmpl, ok := s.Templates.Column(col.Identifier); ok {
				overrides = tmpl.Constraints
			}
		}
		master, ok := s.Constraints.Effective(col.DataType, name, overrides)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownConstraint, name)
		}
		var rules []domain.ColumnConstraint
		if err := tx.WithContext(ctx).Where("column_id = ?", col.ColumnID).Find(&rules).Error; err != nil {
			return err
		}
		existing, found := constraints.Find(rules, name)
		switch {
		case found:
			row = existing
		case col.IsSystem:
			return fmt.Errorf("%w: %s", domain.ErrUnknownConstraint, name)
		default:
			if row, err = master.DefaultRow(col.ColumnID); err != nil {
				return err
			}
			row.IsEditable = true
		}

		if err := constraints.Apply(*col, &row, rules, master, patch); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Save(&row).Error; err != nil {
			return err
		}
		_, err = s.SchemaChanged(ctx, tx, col.SchemaID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}
