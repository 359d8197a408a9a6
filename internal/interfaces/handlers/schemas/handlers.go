package schemas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"folio-backend/internal/application/constraints"
	schemasvc "folio-backend/internal/application/schemas"
	"folio-backend/internal/domain"
	"folio-backend/internal/pkg/response"
	"folio-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Handlers exposes the schema engine. Service errors are returned to the
// global error handler, which maps them to status codes.
type Handlers struct {
	Service *schemasvc.Service
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("Invalid %s format (must be a valid UUID)", name)
	}
	return id, nil
}

func (h *Handlers) account(c *fiber.Ctx) (domain.Account, error) {
	var account domain.Account
	id, err := paramUUID(c, "account_id")
	if err != nil {
		return account, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := h.Service.DB.WithContext(c.UserContext()).Where("account_id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return account, domain.ErrAccountNotFound
		}
		return account, err
	}
	return account, nil
}

// EnsureSchema POST /api/v1/accounts/:account_id/schema
func (h *Handlers) EnsureSchema(c *fiber.Ctx) error {
	account, err := h.account(c)
	if err != nil {
		return err
	}
	schema, err := h.Service.EnsureSchema(c.UserContext(), account)
	if err != nil {
		return err
	}
	return response.Success(c, "Schema ready", schema, nil)
}

// AccountTable GET /api/v1/accounts/:account_id/table
func (h *Handlers) AccountTable(c *fiber.Ctx) error {
	id, err := paramUUID(c, "account_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	table, err := h.Service.ProjectAccount(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Account table fetched successfully", table, nil)
}

// AccountTableCSV GET /api/v1/accounts/:account_id/table.csv
func (h *Handlers) AccountTableCSV(c *fiber.Ctx) error {
	id, err := paramUUID(c, "account_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	table, err := h.Service.ProjectAccount(c.UserContext(), id)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		return err
	}
	return response.Attachment(c, "text/csv; charset=utf-8", fmt.Sprintf("account-%s.csv", id), buf.Bytes())
}

// HoldingRow GET /api/v1/holdings/:holding_id/row
func (h *Handlers) HoldingRow(c *fiber.Ctx) error {
	id, err := paramUUID(c, "holding_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	row, err := h.Service.ProjectHolding(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Holding row fetched successfully", row, nil)
}

// Templates GET /api/v1/templates
func (h *Handlers) Templates(c *fiber.Ctx) error {
	type templateView struct {
		Identifier string          `json:"identifier"`
		Title      string          `json:"title"`
		DataType   domain.DataType `json:"data_type"`
		Category   string          `json:"category"`
		Editable   bool            `json:"editable"`
		DependsOn  []string        `json:"depends_on"`
	}
	out := []templateView{}
	for _, t := range h.Service.Templates.Columns() {
		deps := h.Service.Templates.Dependencies(t)
		if deps == nil {
			deps = []string{}
		}
		out = append(out, templateView{
			Identifier: t.Identifier,
			Title:      t.Title,
			DataType:   t.DataType,
			Category:   t.Category,
			Editable:   t.IsEditable,
			DependsOn:  deps,
		})
	}
	return response.Success(c, "Templates fetched successfully", out, nil)
}

type customColumnRequest struct {
	Title    string `json:"title" binding:"required,max=255"`
	DataType string `json:"data_type" binding:"required,data_type"`
}

// AddCustomColumn POST /api/v1/schemas/:schema_id/columns/custom
func (h *Handlers) AddCustomColumn(c *fiber.Ctx) error {
	schemaID, err := paramUUID(c, "schema_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var req customColumnRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	dt, _ := domain.ParseDataType(req.DataType)
	col, err := h.Service.AddCustomColumn(c.UserContext(), schemaID, req.Title, dt)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Column created successfully", col, nil)
}

type calculatedColumnRequest struct {
	Title            string `json:"title" binding:"required,max=255"`
	Expression       string `json:"expression" binding:"required,max=2000"`
	DataType         string `json:"data_type" binding:"omitempty,data_type"`
	DecimalPlaces    *int   `json:"decimal_places" binding:"omitempty,min=0,max=10"`
	DependencyPolicy string `json:"dependency_policy" binding:"omitempty,oneof=strict auto_expand"`
}

// AddCalculatedColumn POST /api/v1/schemas/:schema_id/columns/calculated
func (h *Handlers) AddCalculatedColumn(c *fiber.Ctx) error {
	schemaID, err := paramUUID(c, "schema_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var req calculatedColumnRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	in := schemasvc.CalculatedColumnInput{
		Title:         req.Title,
		Expression:    req.Expression,
		DecimalPlaces: req.DecimalPlaces,
		Policy:        domain.DependencyPolicy(req.DependencyPolicy),
	}
	if req.DataType != "" {
		in.DataType, _ = domain.ParseDataType(req.DataType)
	}
	col, err := h.Service.AddCalculatedColumn(c.UserContext(), schemaID, in)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Calculated column created successfully", col, nil)
}

type systemColumnRequest struct {
	Template string `json:"template" binding:"required"`
}

// AddSystemColumn POST /api/v1/schemas/:schema_id/columns/system
func (h *Handlers) AddSystemColumn(c *fiber.Ctx) error {
	schemaID, err := paramUUID(c, "schema_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var req systemColumnRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	col, err := h.Service.AddSystemColumn(c.UserContext(), schemaID, strings.TrimSpace(req.Template))
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Column added from template", col, nil)
}

type reorderRequest struct {
	Identifiers []string `json:"identifiers" binding:"required,min=1"`
}

// ReorderColumns PUT /api/v1/schemas/:schema_id/columns/order
func (h *Handlers) ReorderColumns(c *fiber.Ctx) error {
	schemaID, err := paramUUID(c, "schema_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var req reorderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	cols, err := h.Service.ReorderColumns(c.UserContext(), schemaID, req.Identifiers)
	if err != nil {
		return err
	}
	return response.Success(c, "Columns reordered", cols, nil)
}

// Recompute POST /api/v1/schemas/:schema_id/recompute
func (h *Handlers) Recompute(c *fiber.Ctx) error {
	schemaID, err := paramUUID(c, "schema_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	report, err := h.Service.Recompute(c.UserContext(), schemaID)
	if err != nil {
		return err
	}
	return response.Success(c, "Schema recomputed", report, nil)
}

type renameRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

// RenameColumn PATCH /api/v1/columns/:column_id
func (h *Handlers) RenameColumn(c *fiber.Ctx) error {
	columnID, err := paramUUID(c, "column_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	col, err := h.Service.RenameColumn(c.UserContext(), columnID, req.Title)
	if err != nil {
		return err
	}
	return response.Success(c, "Column renamed", col, nil)
}

type formulaRequest struct {
	Expression    string `json:"expression" binding:"required,max=2000"`
	DecimalPlaces *int   `json:"decimal_places" binding:"omitempty,min=0,max=10"`
}

// UpdateFormula PUT /api/v1/columns/:column_id/formula
func (h *Handlers) UpdateFormula(c *fiber.Ctx) error {
	columnID, err := paramUUID(c, "column_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var req formulaRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	def, err := h.Service.UpdateFormula(c.UserContext(), columnID, req.Expression, req.DecimalPlaces)
	if err != nil {
		return err
	}
	return response.Success(c, "Formula updated", def, nil)
}

// DeleteColumn DELETE /api/v1/columns/:column_id
func (h *Handlers) DeleteColumn(c *fiber.Ctx) error {
	columnID, err := paramUUID(c, "column_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := h.Service.DeleteColumn(c.UserContext(), columnID); err != nil {
		return err
	}
	return response.Success(c, "Column deleted", fiber.Map{"column_id": columnID}, nil)
}

type constraintRequest struct {
	Value      json.RawMessage `json:"value"`
	IsEditable *bool           `json:"is_editable"`
}

// UpdateConstraint PATCH /api/v1/columns/:column_id/constraints/:name
func (h *Handlers) UpdateConstraint(c *fiber.Ctx) error {
	columnID, err := paramUUID(c, "column_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var req constraintRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if len(req.Value) == 0 && req.IsEditable == nil {
		return response.BadRequest(c, "value or is_editable is required")
	}
	name := domain.ConstraintName(strings.ToLower(c.Params("name")))
	row, err := h.Service.UpdateConstraint(c.UserContext(), columnID, name, constraints.Patch{Value: req.Value, IsEditable: req.IsEditable})
	if err != nil {
		return err
	}
	return response.Success(c, "Constraint updated", row, nil)
}

type valueRequest struct {
	Value any `json:"value"`
}

// SetValue PUT /api/v1/values/:value_id
func (h *Handlers) SetValue(c *fiber.Ctx) error {
	valueID, err := paramUUID(c, "value_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var req valueRequest
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	cell, err := h.Service.SetValue(c.UserContext(), valueID, req.Value)
	if err != nil {
		return err
	}
	return response.Success(c, "Value updated", cell, nil)
}

// RevertValue DELETE /api/v1/values/:value_id/override
func (h *Handlers) RevertValue(c *fiber.Ctx) error {
	valueID, err := paramUUID(c, "value_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	cell, err := h.Service.RevertValue(c.UserContext(), valueID)
	if err != nil {
		return err
	}
	return response.Success(c, "Value reverted", cell, nil)
}
