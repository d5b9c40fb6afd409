package ragerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	err := New(ErrCodeFileTooLarge, "file exceeds max size", nil)

	assert.Equal(t, CategoryInput, err.Category)
	assert.Equal(t, SeverityError, err.Severity)
	assert.False(t, err.Retryable)
	assert.Equal(t, "[ERR_202_FILE_TOO_LARGE] file exceeds max size", err.Error())
}

func TestNew_ConflictIsRetryable(t *testing.T) {
	err := New(ErrCodeConflict, "version number race", nil)

	assert.True(t, err.Retryable)
	assert.Equal(t, CategoryStorage, err.Category)
	assert.Equal(t, SeverityWarning, err.Severity)
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrCodeStorage, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, err.Unwrap())
	assert.Equal(t, "disk full", err.Message)
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeNotFound, "document missing", nil)
	b := &Error{Code: ErrCodeNotFound}

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, &Error{Code: ErrCodeConflict}))
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodeStorage, "write failed", nil).
		WithDetail("path", "/a.txt").
		WithSuggestion("retry the operation")

	assert.Equal(t, "/a.txt", err.Details["path"])
	assert.Equal(t, "retry the operation", err.Suggestion)
}

func TestStorageError_SubkindMarksRetryable(t *testing.T) {
	timeoutErr := StorageError(SubkindTimeout, "commit timed out", nil)
	assert.True(t, timeoutErr.Retryable)
	assert.Equal(t, SubkindTimeout, timeoutErr.Details["subkind"])

	constraintErr := StorageError(SubkindConstraint, "unique violation", nil)
	assert.False(t, constraintErr.Retryable)
}

func TestIsRetryable_NonAmanError(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestGetCode_NonAmanError(t *testing.T) {
	assert.Equal(t, "", GetCode(errors.New("plain")))
}
