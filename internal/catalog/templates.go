package catalog

import (
	"fmt"

	"folio-backend/internal/domain"
	"folio-backend/internal/formula"
)

// BehaviorTemplate assigns a value source to a set of asset types. A nil
// AssetTypes applies to every asset type; later entries win over earlier ones.
type BehaviorTemplate struct {
	AssetTypes []domain.AssetType
	Source     domain.ValueSource
}

// ColumnTemplate is the blueprint of a system column. Formula sources name
// their formula by FormulaRef.Identifier.
type ColumnTemplate struct {
	Identifier  string
	Title       string
	DataType    domain.DataType
	Category    string
	IsEditable  bool
	Behaviors   []BehaviorTemplate
	Constraints []ConstraintOverride
}

// Sources resolves the behavior list into one source per asset type.
func (t ColumnTemplate) Sources() map[domain.AssetType]domain.ValueSource {
	out := map[domain.AssetType]domain.ValueSource{}
	for _, b := range t.Behaviors {
		types := b.AssetTypes
		if types == nil {
			types = domain.AllAssetTypes
		}
		for _, at := range types {
			out[at] = b.Source
		}
	}
	return out
}

// FormulaIdentifiers lists the formulas the template's behaviors reference.
func (t ColumnTemplate) FormulaIdentifiers() []string {
	var out []string
	seen := map[string]bool{}
	for _, b := range t.Behaviors {
		if ref, ok := b.Source.(domain.FormulaRef); ok && !seen[ref.Identifier] {
			seen[ref.Identifier] = true
			out = append(out, ref.Identifier)
		}
	}
	return out
}

// FormulaTemplate is a system formula. Its dependencies are the identifiers of
// its expression.
type FormulaTemplate struct {
	Identifier    string
	Expression    string
	DecimalPlaces *int
	Policy        domain.DependencyPolicy

	parsed *formula.Expression
}

func (f FormulaTemplate) Dependencies() []string {
	if f.parsed == nil {
		return nil
	}
	return f.parsed.Identifiers()
}

// TemplateCatalog is the read-only registry of system column templates.
type TemplateCatalog struct {
	columns  map[string]ColumnTemplate
	order    []string
	formulas map[string]FormulaTemplate
	defaults map[domain.AccountType][]string
}

// NewTemplateCatalog checks that every formula parses, that every formula a
// column references exists, and that default policies name known templates.
func NewTemplateCatalog(columns []ColumnTemplate, formulas []FormulaTemplate, defaults map[domain.AccountType][]string) (*TemplateCatalog, error) {
	c := &TemplateCatalog{
		columns:  make(map[string]ColumnTemplate, len(columns)),
		formulas: make(map[string]FormulaTemplate, len(formulas)),
		defaults: defaults,
	}
	for _, f := range formulas {
		parsed, err := formula.Parse(f.Expression)
		if err != nil {
			return nil, fmt.Errorf("system formula %s: %w", f.Identifier, err)
		}
		f.parsed = parsed
		if f.Policy == "" {
			f.Policy = domain.DependencyStrict
		}
		c.formulas[f.Identifier] = f
	}
	for _, col := range columns {
		if _, dup := c.columns[col.Identifier]; dup {
			return nil, fmt.Errorf("duplicate column template %s", col.Identifier)
		}
		for _, id := range col.FormulaIdentifiers() {
			if _, ok := c.formulas[id]; !ok {
				return nil, fmt.Errorf("column template %s references unknown formula %s", col.Identifier, id)
			}
		}
		c.columns[col.Identifier] = col
		c.order = append(c.order, col.Identifier)
	}
	for accountType, ids := range defaults {
		for _, id := range ids {
			if _, ok := c.columns[id]; !ok {
				return nil, fmt.Errorf("default columns for %s name unknown template %s", accountType, id)
			}
		}
	}
	return c, nil
}

func (c *TemplateCatalog) Column(identifier string) (ColumnTemplate, bool) {
	t, ok := c.columns[identifier]
	return t, ok
}

func (c *TemplateCatalog) Formula(identifier string) (FormulaTemplate, bool) {
	f, ok := c.formulas[identifier]
	return f, ok
}

// Columns lists every template in registration order.
func (c *TemplateCatalog) Columns() []ColumnTemplate {
	out := make([]ColumnTemplate, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.columns[id])
	}
	return out
}

// DefaultColumns is the default-column policy for an account type.
func (c *TemplateCatalog) DefaultColumns(accountType domain.AccountType) []string {
	return append([]string(nil), c.defaults[accountType]...)
}

// Dependencies lists the non-implicit identifiers the template's formulas read,
// in first-seen order.
func (c *TemplateCatalog) Dependencies(t ColumnTemplate) []string {
	var out []string
	seen := map[string]bool{}
	for _, id := range t.FormulaIdentifiers() {
		for _, dep := range c.formulas[id].Dependencies() {
			if domain.IsImplicitIdentifier(dep) || seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
		}
	}
	return out
}
