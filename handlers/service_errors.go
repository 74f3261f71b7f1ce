package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/nexus-gateway/services"
	"github.com/upb/nexus-gateway/services/providers"
	"github.com/upb/nexus-gateway/services/routing"
	"github.com/upb/nexus-gateway/utils"
)

// StatusForError maps a dispatch or domain error to an HTTP status.
// Missing credentials and bad input are client errors; unsupported operations
// are 501; backend failures are 502; anything else is 500.
func StatusForError(err error) int {
	switch {
	case services.IsValidationError(err):
		return http.StatusBadRequest
	case services.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	case services.IsNotFoundError(err):
		return http.StatusNotFound
	}

	switch providers.KindOf(err) {
	case providers.KindConfiguration:
		return http.StatusBadRequest
	case providers.KindUnsupported:
		return http.StatusNotImplemented
	case providers.KindTransport, providers.KindProtocol:
		return http.StatusBadGateway
	}

	if services.IsExternalError(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorDetails describes which backend failed and how
func errorDetails(err error) map[string]interface{} {
	details := make(map[string]interface{})
	for k, v := range services.GetErrorDetails(err) {
		details[k] = v
	}
	if provider := routing.ProviderOf(err); provider != "" {
		details["provider"] = provider
	}
	if kind := providers.KindOf(err); kind != "" {
		details["kind"] = string(kind)
	}
	if status := providers.StatusCodeOf(err); status != 0 {
		details["upstream_status"] = status
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// HandleServiceError maps service errors to HTTP responses.
// Dispatch errors carry the originating message; internal errors are logged
// and answered with a generic message.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	if services.IsInternalError(err) {
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
		return
	}

	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Warn("request rejected", zap.Int("status", status), zap.Error(err))
	}

	if err := utils.WriteError(w, status, err.Error(), errorDetails(err)); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
