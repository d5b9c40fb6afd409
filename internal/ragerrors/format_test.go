package ragerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForLog_IncludesDetails(t *testing.T) {
	err := New(ErrCodeStorage, "write failed", nil).WithDetail("path", "/a.txt")

	fields := FormatForLog(err)

	assert.Equal(t, ErrCodeStorage, fields["error_code"])
	assert.Equal(t, "/a.txt", fields["detail_path"])
}

func TestFormatForLog_NonAmanError(t *testing.T) {
	fields := FormatForLog(errors.New("plain"))
	assert.Equal(t, "plain", fields["error"])
}

func TestFormatJSON_RoundTrips(t *testing.T) {
	err := New(ErrCodeConflict, "version race", errors.New("unique violation"))

	data, marshalErr := FormatJSON(err)
	require.NoError(t, marshalErr)
	assert.Contains(t, string(data), "ERR_302_CONFLICT")
	assert.Contains(t, string(data), "unique violation")
}
