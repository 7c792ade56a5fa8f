package util

import (
	"context"
	"errors"
	"net/http"

	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Subject string `json:"subject,omitempty"`
}

const (
	kindTimeout  = "timeout"
	kindInternal = "internal_error"
)

// StatusFor maps an error to its HTTP status and kind name.
func StatusFor(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, kindTimeout
	}
	switch kind := common.Kind(err); kind {
	case common.ErrNotFound:
		return http.StatusNotFound, kind.Error()
	case common.ErrValidation, common.ErrUnsupportedOption:
		return http.StatusBadRequest, kind.Error()
	case common.ErrUpstreamUnavailable:
		return http.StatusServiceUnavailable, kind.Error()
	}
	return http.StatusInternalServerError, kindInternal
}

// NewErrorResponse builds the response body for err.
func NewErrorResponse(err error) (int, ErrorResponse) {
	status, kind := StatusFor(err)
	return status, ErrorResponse{
		Error:   kind,
		Message: err.Error(),
		Subject: common.Subject(err),
	}
}

// WriteError renders err as JSON. Server side failures are logged.
func WriteError(c echo.Context, err error) error {
	status, body := NewErrorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "method", c.Request().Method, "path", c.Path(), "status", status, "err", err)
	}
	return c.JSON(status, body)
}

// BindError turns an echo binding failure into a validation error.
func BindError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return common.NewValidationError("bind", "", msg)
		}
	}
	return common.NewValidationError("bind", "", err.Error())
}
