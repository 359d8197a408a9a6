// Package schemas is the schema computation engine: it expands column
// templates, resolves every cell of every holding, and keeps stored cells
// consistent as schemas, formulas and holdings change.
package schemas

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"folio-backend/internal/catalog"
	"folio-backend/internal/domain"
	"folio-backend/internal/formula"
	"folio-backend/internal/fx"
	"folio-backend/internal/graph"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service holds the database and the catalogs the engine copies from.
type Service struct {
	DB          *gorm.DB
	Templates   *catalog.TemplateCatalog
	Constraints *catalog.ConstraintCatalog
	Fx          fx.Lookup
}

func NewService(db *gorm.DB, templates *catalog.TemplateCatalog, constraints *catalog.ConstraintCatalog, lookup fx.Lookup) *Service {
	return &Service{DB: db, Templates: templates, Constraints: constraints, Fx: lookup}
}

// schemaState is a snapshot of one schema's structure inside a transaction.
type schemaState struct {
	schema    domain.Schema
	columns   []domain.SchemaColumn
	behaviors map[uuid.UUID]map[domain.AssetType]domain.ColumnAssetBehavior
	formulas  map[uuid.UUID]domain.FormulaDefinition
	parsed    map[uuid.UUID]*formula.Expression
	rules     map[uuid.UUID][]domain.ColumnConstraint
}

func loadSchema(ctx context.Context, tx *gorm.DB, schemaID uuid.UUID) (*domain.Schema, error) {
	var schema domain.Schema
	if err := tx.WithContext(ctx).First(&schema, "schema_id = ?", schemaID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSchemaNotFound
		}
		return nil, err
	}
	return &schema, nil
}

func loadColumn(ctx context.Context, tx *gorm.DB, columnID uuid.UUID) (*domain.SchemaColumn, error) {
	var col domain.SchemaColumn
	if err := tx.WithContext(ctx).First(&col, "column_id = ?", columnID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrColumnNotFound
		}
		return nil, err
	}
	return &col, nil
}

func loadState(ctx context.Context, tx *gorm.DB, schemaID uuid.UUID) (*schemaState, error) {
	schema, err := loadSchema(ctx, tx, schemaID)
	if err != nil {
		return nil, err
	}
	st := &schemaState{
		schema:    *schema,
		behaviors: map[uuid.UUID]map[domain.AssetType]domain.ColumnAssetBehavior{},
		formulas:  map[uuid.UUID]domain.FormulaDefinition{},
		parsed:    map[uuid.UUID]*formula.Expression{},
		rules:     map[uuid.UUID][]domain.ColumnConstraint{},
	}
	db := tx.WithContext(ctx)
	if err := db.Where("schema_id = ?", schemaID).Order("display_order, column_id").Find(&st.columns).Error; err != nil {
		return nil, err
	}
	if len(st.columns) == 0 {
		return st, nil
	}
	ids := st.columnIDs()

	var behaviors []domain.ColumnAssetBehavior
	if err := db.Where("column_id IN ?", ids).Find(&behaviors).Error; err != nil {
		return nil, err
	}
	var formulaIDs []uuid.UUID
	for _, b := range behaviors {
		if st.behaviors[b.ColumnID] == nil {
			st.behaviors[b.ColumnID] = map[domain.AssetType]domain.ColumnAssetBehavior{}
		}
		st.behaviors[b.ColumnID][b.AssetType] = b
		if b.FormulaID != nil {
			formulaIDs = append(formulaIDs, *b.FormulaID)
		}
	}
	if len(formulaIDs) > 0 {
		var defs []domain.FormulaDefinition
		if err := db.Where("formula_id IN ?", formulaIDs).Find(&defs).Error; err != nil {
			return nil, err
		}
		for _, d := range defs {
			st.formulas[d.FormulaID] = d
		}
	}

	var rules []domain.ColumnConstraint
	if err := db.Where("column_id IN ?", ids).Order("name").Find(&rules).Error; err != nil {
		return nil, err
	}
	for _, r := range rules {
		st.rules[r.ColumnID] = append(st.rules[r.ColumnID], r)
	}
	return st, nil
}

func (st *schemaState) columnIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(st.columns))
	for i, c := range st.columns {
		ids[i] = c.ColumnID
	}
	return ids
}

func (st *schemaState) column(identifier string) (domain.SchemaColumn, bool) {
	for _, c := range st.columns {
		if c.Identifier == identifier {
			return c, true
		}
	}
	return domain.SchemaColumn{}, false
}

func (st *schemaState) identifiers() map[string]bool {
	out := make(map[string]bool, len(st.columns))
	for _, c := range st.columns {
		out[c.Identifier] = true
	}
	return out
}

// expression returns the parsed formula, caching it for the pass.
func (st *schemaState) expression(id uuid.UUID) (*formula.Expression, error) {
	if e, ok := st.parsed[id]; ok {
		return e, nil
	}
	def, ok := st.formulas[id]
	if !ok {
		return nil, errors.New("formula definition missing")
	}
	e, err := formula.Parse(def.Expression)
	if err != nil {
		return nil, err
	}
	st.parsed[id] = e
	return e, nil
}

// dependencies is the union of the column's formula dependencies across asset types.
func (st *schemaState) dependencies(columnID uuid.UUID) []string {
	var out []string
	seen := map[string]bool{}
	types := make([]string, 0, len(st.behaviors[columnID]))
	for at := range st.behaviors[columnID] {
		types = append(types, string(at))
	}
	sort.Strings(types)
	for _, at := range types {
		b := st.behaviors[columnID][domain.AssetType(at)]
		if b.FormulaID == nil {
			continue
		}
		def := st.formulas[*b.FormulaID]
		for _, dep := range def.DependencyList() {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
			}
		}
	}
	return out
}

func (st *schemaState) nodes() []graph.Node {
	nodes := make([]graph.Node, len(st.columns))
	for i, c := range st.columns {
		nodes[i] = graph.Node{
			ID:           c.ColumnID,
			Key:          c.Identifier,
			DisplayOrder: c.DisplayOrder,
			DependsOn:    st.dependencies(c.ColumnID),
		}
	}
	return nodes
}

// order returns the columns in evaluation order.
func (st *schemaState) order() ([]domain.SchemaColumn, graph.PartialOrder) {
	po := graph.Sort(st.nodes())
	byKey := make(map[string]domain.SchemaColumn, len(st.columns))
	for _, c := range st.columns {
		byKey[c.Identifier] = c
	}
	out := make([]domain.SchemaColumn, 0, len(po.Order))
	for _, key := range po.Order {
		out = append(out, byKey[key])
	}
	return out, po
}

// holdingsQuery selects the holdings of every account the schema serves.
func holdingsQuery(ctx context.Context, tx *gorm.DB, schema domain.Schema) *gorm.DB {
	return tx.WithContext(ctx).Model(&domain.Holding{}).
		Joins("JOIN accounts ON accounts.account_id = holdings.account_id").
		Where("accounts.portfolio_id = ? AND accounts.account_type = ?", schema.PortfolioID, schema.AccountType)
}

// ensureColumnValues creates empty SYSTEM cells for column on every holding under the schema.
func ensureColumnValues(ctx context.Context, tx *gorm.DB, schema domain.Schema, columnID uuid.UUID) error {
	var holdingIDs []uuid.UUID
	if err := holdingsQuery(ctx, tx, schema).Pluck("holdings.holding_id", &holdingIDs).Error; err != nil {
		return err
	}
	if len(holdingIDs) == 0 {
		return nil
	}
	var existing []uuid.UUID
	if err := tx.WithContext(ctx).Model(&domain.SchemaColumnValue{}).
		Where("column_id = ?", columnID).Pluck("holding_id", &existing).Error; err != nil {
		return err
	}
	have := make(map[uuid.UUID]bool, len(existing))
	for _, id := range existing {
		have[id] = true
	}
	var missing []domain.SchemaColumnValue
	for _, hid := range holdingIDs {
		if !have[hid] {
			missing = append(missing, domain.SchemaColumnValue{ColumnID: columnID, HoldingID: hid, Source: domain.SourceSystem})
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&missing).Error
}

func nextDisplayOrder(ctx context.Context, tx *gorm.DB, schemaID uuid.UUID) (int, error) {
	var max sql.NullInt64
	err := tx.WithContext(ctx).Model(&domain.SchemaColumn{}).
		Where("schema_id = ?", schemaID).
		Select("MAX(display_order)").Row().Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

// SchemaFor finds the schema serving an account, if one exists.
func (s *Service) SchemaFor(ctx context.Context, tx *gorm.DB, account domain.Account) (*domain.Schema, error) {
	var schema domain.Schema
	err := tx.WithContext(ctx).
		Where("portfolio_id = ? AND account_type = ?", account.PortfolioID, account.AccountType).
		First(&schema).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSchemaNotFound
	}
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

// DropSchema deletes a schema with its columns, cells, behaviors, constraints
// and schema-scoped formulas. System formulas are shared and stay.
func (s *Service) DropSchema(ctx context.Context, tx *gorm.DB, schemaID uuid.UUID) error {
	db := tx.WithContext(ctx)
	columnIDs := db.Model(&domain.SchemaColumn{}).Select("column_id").Where("schema_id = ?", schemaID)
	if err := db.Where("column_id IN (?)", columnIDs).Delete(&domain.SchemaColumnValue{}).Error; err != nil {
		return err
	}
	if err := db.Where("column_id IN (?)", columnIDs).Delete(&domain.ColumnConstraint{}).Error; err != nil {
		return err
	}
	if err := db.Where("column_id IN (?)", columnIDs).Delete(&domain.ColumnAssetBehavior{}).Error; err != nil {
		return err
	}
	if err := db.Where("schema_id = ?", schemaID).Delete(&domain.SchemaColumn{}).Error; err != nil {
		return err
	}
	if err := db.Where("schema_id = ? AND is_system = ?", schemaID, false).Delete(&domain.FormulaDefinition{}).Error; err != nil {
		return err
	}
	return db.Where("schema_id = ?", schemaID).Delete(&domain.Schema{}).Error
}
