package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ndltd-tw/papergraph/pkg/common"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"NotFound", common.NewNotFoundError("fetch_document", "x"), http.StatusNotFound, "not_found"},
		{"Validation", common.NewValidationError("build", "layer", "must be >= 0"), http.StatusBadRequest, "validation_error"},
		{"Unsupported", common.NewUnsupportedOptionError("llm_service", "mistral"), http.StatusBadRequest, "unsupported_option"},
		{"Upstream", common.NewUpstreamError("ping", "", errors.New("refused")), http.StatusServiceUnavailable, "upstream_unavailable"},
		{"Wrapped", fmt.Errorf("failed to query neighbours: %w", common.NewNotFoundError("fetch_embedding", "y")), http.StatusNotFound, "not_found"},
		{"Deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
		{"DeadlineInsideUpstream", common.NewUpstreamError("knn", "", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, kind := StatusFor(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.kind, kind)
		})
	}
}

func TestNewErrorResponse(t *testing.T) {
	status, body := NewErrorResponse(common.NewNotFoundError("fetch_document", "109THU00099005"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, ErrorResponse{
		Error:   "not_found",
		Message: "fetch_document: not_found (109THU00099005)",
		Subject: "109THU00099005",
	}, body)
}

func TestBindError(t *testing.T) {
	err := BindError(echo.NewHTTPError(http.StatusBadRequest, "failed to bind layer"))
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Contains(t, err.Error(), "failed to bind layer")
}
