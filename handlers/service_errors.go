package handlers

import (
	"errors"
	"net/http"

	"github.com/amebo/notes-backend/services"
	"github.com/amebo/notes-backend/services/providers"
	"github.com/amebo/notes-backend/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain and provider errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status, message, details := classify(err)

	switch {
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway:
		logger.Error("internal server error", zap.Error(err))
	case status == http.StatusBadGateway:
		logger.Warn("provider call failed", zap.Error(err))
	default:
		logger.Debug("handled service error", zap.Int("status", status), zap.Error(err))
	}

	if err := utils.WriteError(w, status, message, details); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

func classify(err error) (int, string, map[string]interface{}) {
	// the caller named a backend that is unknown or switched off
	if providers.IsConfigError(err) {
		return http.StatusBadRequest, err.Error(), nil
	}

	if perr, ok := providers.AsProviderError(err); ok {
		details := map[string]interface{}{
			"provider": perr.Provider,
			"code":     perr.Code,
		}
		switch {
		case errors.Is(perr, providers.ErrInvalidSignature):
			return http.StatusBadRequest, "Invalid signature", details
		case perr.Code == providers.CodeInvalidPlan:
			return http.StatusBadRequest, perr.Message, details
		default:
			return http.StatusBadGateway, perr.Message, details
		}
	}

	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError, "An unexpected error occurred", nil
	}

	details := domainErr.Details
	if len(details) == 0 {
		details = nil
	}

	switch domainErr.Type {
	case services.ErrorTypeNotFound:
		return http.StatusNotFound, domainErr.Message, details
	case services.ErrorTypeValidation:
		return http.StatusBadRequest, domainErr.Message, details
	case services.ErrorTypeUnauthorized:
		return http.StatusUnauthorized, domainErr.Message, nil
	case services.ErrorTypeForbidden, services.ErrorTypeLimit:
		return http.StatusForbidden, domainErr.Message, details
	case services.ErrorTypeExternal:
		return http.StatusBadGateway, domainErr.Message, details
	default:
		return http.StatusInternalServerError, "An internal error occurred", nil
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		if err := utils.WriteBadRequest(w, "Validation failed", validationErr.Details()); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
