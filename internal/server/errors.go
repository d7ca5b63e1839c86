package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/services"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// newAPIError creates a new APIError with the given parameters
func newAPIError(statusCode int, errorCode, message string) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message}
}

// errorFor maps domain and service errors to API errors
func errorFor(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, domain.ErrConfiguration):
		return newAPIError(http.StatusBadRequest, "INVALID_CONFIGURATION", err.Error())
	case errors.Is(err, domain.ErrDimensionMismatch):
		return newAPIError(http.StatusBadRequest, "DIMENSION_MISMATCH", err.Error())
	case errors.Is(err, domain.ErrNumerical):
		return newAPIError(http.StatusUnprocessableEntity, "NUMERICAL_ERROR", err.Error())
	case errors.Is(err, services.ErrNotFound):
		return newAPIError(http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, services.ErrNoSnapshot):
		return newAPIError(http.StatusServiceUnavailable, "NO_SNAPSHOT", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusGatewayTimeout, "TIMEOUT", err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", err.Error())
	}
}

// writeError renders err, logging server-side failures
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := errorFor(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	if renderErr := render.Render(w, r, apiErr); renderErr != nil {
		s.log.Error().Err(renderErr).Msg("Failed to render error response")
	}
}
