package schemas

import (
	"context"
	"errors"
	"io"
	"strings"

	"folio-backend/internal/application/constraints"
	"folio-backend/internal/domain"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Cell is one projected (title, display value) pair plus what a client needs to edit it.
type Cell struct {
	ColumnID   uuid.UUID         `json:"column_id"`
	ValueID    uuid.UUID         `json:"value_id"`
	Identifier string            `json:"identifier"`
	Title      string            `json:"title"`
	DataType   domain.DataType   `json:"data_type"`
	Value      *string           `json:"value"`
	Display    string            `json:"display"`
	Source     domain.CellSource `json:"source"`
	Editable   bool              `json:"editable"`
}

// HoldingRow is a holding's cells in display order.
type HoldingRow struct {
	HoldingID uuid.UUID        `json:"holding_id"`
	AssetType domain.AssetType `json:"asset_type"`
	Symbol    string           `json:"symbol"`
	Cells     []Cell           `json:"cells"`
}

// Table is an account's holdings under its schema.
type Table struct {
	AccountID uuid.UUID             `json:"account_id"`
	SchemaID  uuid.UUID             `json:"schema_id"`
	Columns   []domain.SchemaColumn `json:"columns"`
	Rows      []HoldingRow          `json:"rows"`
}

type csvRecord struct {
	HoldingID string `csv:"holding_id"`
	Symbol    string `csv:"symbol"`
	Column    string `csv:"column"`
	Title     string `csv:"title"`
	Value     string `csv:"value"`
	Display   string `csv:"display"`
	Source    string `csv:"source"`
}

// WriteCSV writes the table in long form, one record per cell.
func (t *Table) WriteCSV(w io.Writer) error {
	records := make([]*csvRecord, 0)
	for _, row := range t.Rows {
		for _, c := range row.Cells {
			rec := &csvRecord{
				HoldingID: row.HoldingID.String(),
				Symbol:    row.Symbol,
				Column:    c.Identifier,
				Title:     c.Title,
				Display:   c.Display,
				Source:    string(c.Source),
			}
			if c.Value != nil {
				rec.Value = *c.Value
			}
			records = append(records, rec)
		}
	}
	return gocsv.Marshal(&records, w)
}

func (s *Service) loadAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	if err := s.DB.WithContext(ctx).First(&account, "account_id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ProjectHolding reads one holding's row. It never recomputes.
func (s *Service) ProjectHolding(ctx context.Context, holdingID uuid.UUID) (*HoldingRow, error) {
	var holding domain.Holding
	if err := s.DB.WithContext(ctx).First(&holding, "holding_id = ?", holdingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrHoldingNotFound
		}
		return nil, err
	}
	account, err := s.loadAccount(ctx, holding.AccountID)
	if err != nil {
		return nil, err
	}
	schema, err := s.SchemaFor(ctx, s.DB, *account)
	if err != nil {
		return nil, err
	}
	st, err := loadState(ctx, s.DB, schema.SchemaID)
	if err != nil {
		return nil, err
	}
	rows, err := s.project(ctx, st, []domain.Holding{holding})
	if err != nil {
		return nil, err
	}
	return &rows[0], nil
}

// ProjectAccount reads every holding of an account.
func (s *Service) ProjectAccount(ctx context.Context, accountID uuid.UUID) (*Table, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	schema, err := s.SchemaFor(ctx, s.DB, *account)
	if err != nil {
		return nil, err
	}
	st, err := loadState(ctx, s.DB, schema.SchemaID)
	if err != nil {
		return nil, err
	}
	var holdings []domain.Holding
	if err := s.DB.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at, holding_id").Find(&holdings).Error; err != nil {
		return nil, err
	}
	rows, err := s.project(ctx, st, holdings)
	if err != nil {
		return nil, err
	}
	return &Table{AccountID: accountID, SchemaID: schema.SchemaID, Columns: st.columns, Rows: rows}, nil
}

func (s *Service) project(ctx context.Context, st *schemaState, holdings []domain.Holding) ([]HoldingRow, error) {
	rows := make([]HoldingRow, 0, len(holdings))
	if len(holdings) == 0 {
		return rows, nil
	}
	holdingIDs := make([]uuid.UUID, len(holdings))
	assetIDs := make([]uuid.UUID, len(holdings))
	for i, h := range holdings {
		holdingIDs[i] = h.HoldingID
		assetIDs[i] = h.AssetID
	}
	var assets []domain.Asset
	if err := s.DB.WithContext(ctx).Where("asset_id IN ?", assetIDs).Find(&assets).Error; err != nil {
		return nil, err
	}
	assetByID := make(map[uuid.UUID]domain.Asset, len(assets))
	for _, a := range assets {
		assetByID[a.AssetID] = a
	}
	var values []domain.SchemaColumnValue
	if len(st.columns) > 0 {
		if err := s.DB.WithContext(ctx).Where("holding_id IN ? AND column_id IN ?", holdingIDs, st.columnIDs()).Find(&values).Error; err != nil {
			return nil, err
		}
	}
	type key struct{ column, holding uuid.UUID }
	byKey := make(map[key]domain.SchemaColumnValue, len(values))
	for _, v := range values {
		byKey[key{v.ColumnID, v.HoldingID}] = v
	}

	for _, h := range holdings {
		asset := assetByID[h.AssetID]
		row := HoldingRow{HoldingID: h.HoldingID, AssetType: asset.AssetType, Symbol: asset.Symbol, Cells: make([]Cell, 0, len(st.columns))}
		for _, col := range st.columns {
			v := byKey[key{col.ColumnID, h.HoldingID}]
			source := v.Source
			if source == "" {
				source = domain.SourceSystem
			}
			row.Cells = append(row.Cells, Cell{
				ColumnID:   col.ColumnID,
				ValueID:    v.ValueID,
				Identifier: col.Identifier,
				Title:      col.Title,
				DataType:   col.DataType,
				Value:      v.Value,
				Display:    DisplayValue(col, st.rules[col.ColumnID], v.Value),
				Source:     source,
				Editable:   col.IsEditable,
			})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DisplayValue renders stored text for a table: percents as "12.50%",
// booleans as Yes/No, nulls as empty.
func DisplayValue(col domain.SchemaColumn, rules []domain.ColumnConstraint, stored *string) string {
	if stored == nil {
		return ""
	}
	text := strings.TrimSpace(*stored)
	switch col.DataType {
	case domain.DataTypePercent:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return text
		}
		places := int32(2)
		if dp, ok := constraints.DecimalPlaces(rules); ok {
			places = int32(dp) - 2
			if places < 0 {
				places = 0
			}
		}
		return d.Mul(decimal.NewFromInt(100)).StringFixed(places) + "%"
	case domain.DataTypeBoolean:
		switch strings.ToLower(text) {
		case "true":
			return "Yes"
		case "false":
			return "No"
		}
	}
	return text
}
