package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewBackendUnavailableError("qdrant unreachable").WithCause(cause)

	assert.Equal(t, "qdrant unreachable: connection refused", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestIsCode_SeesThroughWrapping(t *testing.T) {
	inner := NewNotFoundError("chunk")
	wrapped := fmt.Errorf("while deleting: %w", inner)

	assert.True(t, IsCode(wrapped, ErrCodeNotFound))
	assert.False(t, IsCode(wrapped, ErrCodeExtraction))
	assert.False(t, IsCode(nil, ErrCodeNotFound))
	assert.False(t, IsCode(fmt.Errorf("plain"), ErrCodeNotFound))
}

// 只有后端不可达可以重试；请求非法重试也不会成功
func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewBackendUnavailableError("timeout")))
	assert.False(t, IsRetryable(NewBackendRejectedError("bad vector size")))
	assert.False(t, IsRetryable(NewDataIntegrityError("missing text")))
	assert.False(t, IsRetryable(NewExtractionError("a.pdf", "corrupt")))
	assert.False(t, IsRetryable(nil))
}

func TestHTTPCodes(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, NewBackendUnavailableError("x").HTTPCode)
	assert.Equal(t, http.StatusBadGateway, NewBackendRejectedError("x").HTTPCode)
	assert.Equal(t, http.StatusNotFound, NewNotFoundError("x").HTTPCode)
	assert.Equal(t, http.StatusBadRequest, NewInvalidInputError("f", "r").HTTPCode)
	assert.Equal(t, http.StatusUnprocessableEntity, NewExtractionError("a.pdf", "r").HTTPCode)
	assert.Equal(t, http.StatusInternalServerError, NewConfigurationError("x").HTTPCode)
}

func TestGetAppError_WrapsUnknown(t *testing.T) {
	appErr := GetAppError(fmt.Errorf("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrCodeInternalServer, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPCode)

	original := NewNotFoundError("doc")
	assert.Same(t, original, GetAppError(original))
}
