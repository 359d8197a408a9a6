package middleware

import (
	"errors"

	"folio-backend/internal/domain"
	"folio-backend/internal/fx"
	"folio-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// StatusFor maps service errors onto HTTP status codes. Unknown errors are 500.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrInvalidValue):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotEditable), errors.Is(err, domain.ErrNotDeletable):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrSchemaNotFound),
		errors.Is(err, domain.ErrColumnNotFound),
		errors.Is(err, domain.ErrValueNotFound),
		errors.Is(err, domain.ErrHoldingNotFound),
		errors.Is(err, domain.ErrAssetNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrPortfolioNotFound),
		errors.Is(err, fx.ErrNoFxRate):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrDependentsExist):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrUnknownDependency),
		errors.Is(err, domain.ErrCyclicDependency),
		errors.Is(err, domain.ErrMissingDependencyTemplate),
		errors.Is(err, domain.ErrUnknownTemplate),
		errors.Is(err, domain.ErrUnknownConstraint),
		errors.Is(err, domain.ErrEvaluation),
		errors.Is(err, fx.ErrInvalidRate):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler is the global error handler. Returns the standard error format.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	message := err.Error()
	details := map[string]interface{}{}

	var invalid *domain.InvalidValueError
	var dependents *domain.DependentsExistError
	var missing *domain.MissingDependencyError
	switch {
	case errors.As(err, &invalid):
		details["column"] = invalid.Column
		details["reason"] = invalid.Reason
	case errors.As(err, &dependents):
		details["column"] = dependents.Column
		details["dependents"] = dependents.Dependents
	case errors.As(err, &missing):
		details["column"] = missing.Column
		details["dependency"] = missing.Dependency
	}

	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("path", c.Path()).Msg("request failed")
		message = "Internal Server Error"
	}
	return response.Error(c, message, code, details)
}
