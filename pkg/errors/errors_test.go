package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/configma/configma/pkg/errors"
)

func TestNewAndCode(t *testing.T) {
	err := errors.Newf(errors.ErrNotManaged, "path %q is not managed", "/tmp/x")

	assert.True(t, errors.IsErrorCode(err, errors.ErrNotManaged))
	assert.False(t, errors.IsErrorCode(err, errors.ErrConflict))
	assert.Equal(t, errors.ErrNotManaged, errors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "/tmp/x")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := errors.Wrapf(cause, errors.ErrFileAccess, "failed to read %s", "/etc/hosts")

	assert.True(t, errors.IsErrorCode(err, errors.ErrFileAccess))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Contains(t, err.Error(), "/etc/hosts")
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.ErrInternal, "ignored"))
}

func TestIsErrorCodeThroughWrapping(t *testing.T) {
	inner := errors.New(errors.ErrConflict, "src exists")
	outer := fmt.Errorf("sync failed: %w", inner)

	assert.True(t, errors.IsErrorCode(outer, errors.ErrConflict))
	assert.Equal(t, errors.ErrConflict, errors.GetErrorCode(outer))
}

func TestGetErrorCode_Plain(t *testing.T) {
	assert.Equal(t, errors.ErrUnknown, errors.GetErrorCode(fmt.Errorf("plain")))
	assert.Equal(t, errors.ErrUnknown, errors.GetErrorCode(nil))
}

func TestWithDetail(t *testing.T) {
	err := errors.New(errors.ErrOverlap, "modules overlap").
		WithDetail("module", "editor").
		WithDetail("key", "home/.config/nvim")

	require.NotNil(t, err.Details)
	assert.Equal(t, "editor", err.Details["module"])
	assert.Equal(t, "home/.config/nvim", err.Details["key"])
}
