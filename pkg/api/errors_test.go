package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/brandbrain/compiler/pkg/compile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapServiceError_Validation(t *testing.T) {
	he := mapServiceError(compile.NewValidation("brand name is required"))
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestMapServiceError_NotFound(t *testing.T) {
	he := mapServiceError(compile.NewNotFound("compile run not found"))
	assert.Equal(t, http.StatusNotFound, he.Code)
}

func TestMapServiceError_Conflict(t *testing.T) {
	he := mapServiceError(compile.NewConflict("compile already in progress"))
	assert.Equal(t, http.StatusConflict, he.Code)
}

func TestMapServiceError_GatingFailedReturnsStructuredErrors(t *testing.T) {
	gating := []compile.GatingError{
		{Code: "NO_ENABLED_SOURCES", Message: "tenant has no enabled source connections"},
	}
	he := mapServiceError(compile.NewGatingFailed(gating))
	require.Equal(t, http.StatusUnprocessableEntity, he.Code)

	resp, ok := he.Message.(*ErrorsResponse)
	require.True(t, ok, "gating failures should carry a structured ErrorsResponse")
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "NO_ENABLED_SOURCES", resp.Errors[0].Code)
}

func TestMapServiceError_UnknownCompileErrorMapsTo500(t *testing.T) {
	he := mapServiceError(compile.NewUnknown(errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, he.Code)
}

func TestMapServiceError_NonCompileErrorMapsTo500(t *testing.T) {
	he := mapServiceError(errors.New("some unrelated infra error"))
	assert.Equal(t, http.StatusInternalServerError, he.Code)
}
