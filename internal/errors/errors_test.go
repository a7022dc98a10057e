package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStoreError_Wrapping(t *testing.T) {
	cause := errors.New("connection refused")

	err := NewStoreError("select", cause)
	require.Error(t, err)
	assert.True(t, IsStoreError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "select")

	t.Run("nil cause", func(t *testing.T) {
		assert.NoError(t, NewStoreError("select", nil))
	})

	t.Run("already a store error", func(t *testing.T) {
		again := NewStoreError("commit", err)
		assert.Same(t, err, again)
	})
}

func TestRollbackError_ExposesBothErrors(t *testing.T) {
	cause := errors.New("operation failed")
	rbErr := errors.New("rollback refused")

	err := error(&RollbackError{Cause: cause, RollbackErr: rbErr})

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, rbErr)
	assert.Contains(t, err.Error(), "rollback refused")
	assert.Contains(t, err.Error(), "operation failed")
}

func TestCachePopulationError_UnwrapsSourceError(t *testing.T) {
	sourceErr := &StoreError{Op: "select", Cause: errors.New("timeout")}
	err := fmt.Errorf("lookup: %w", &CachePopulationError{Key: "classes", Cause: sourceErr})

	var populate *CachePopulationError
	require.True(t, errors.As(err, &populate))
	assert.Equal(t, "classes", populate.Key)
	assert.True(t, IsStoreError(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   ErrorCode
		wantStatus int
	}{
		{
			name:       "invalid uri set",
			err:        &InvalidURISetError{Label: "unknown", URIs: []string{"ex:b"}},
			wantCode:   CodeInvalidURISet,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed uri",
			err:        &MalformedURIError{Value: "a b", Reason: "contains whitespace"},
			wantCode:   CodeMalformedURI,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store error",
			err:        &StoreError{Op: "ask", Cause: errors.New("boom")},
			wantCode:   CodeTripleStoreError,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "document transaction",
			err:        &DocumentStoreTransactionError{Cause: errors.New("conflict")},
			wantCode:   CodeDocumentTransactionFailed,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "rollback failure wins over store error",
			err:        &RollbackError{Cause: &StoreError{Op: "x", Cause: errors.New("a")}, RollbackErr: errors.New("b")},
			wantCode:   CodeRollbackFailed,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "deadline",
			err:        fmt.Errorf("wrapped: %w", context.DeadlineExceeded),
			wantCode:   CodeTimeout,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "plain error",
			err:        errors.New("unexpected"),
			wantCode:   CodeInternalError,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unified := Classify(tt.err)
			require.NotNil(t, unified)
			assert.Equal(t, tt.wantCode, unified.Code)
			assert.Equal(t, tt.wantStatus, HTTPStatus(tt.err))
			assert.ErrorIs(t, unified, tt.err)
		})
	}

	assert.Nil(t, Classify(nil))
}

func TestWriteHTTPError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resources/resolve", nil)

	WriteHTTPError(rec, req, &InvalidURISetError{Label: "unknown", URIs: []string{"http://ex.org/b"}}, zap.NewNop())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"code":"INVALID_URI_SET"`)
	assert.Contains(t, rec.Body.String(), "http://ex.org/b")
}
