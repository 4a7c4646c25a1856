package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	err := Clone(ErrSlotUnavailable, "")
	got := FromError(err)

	assert.Same(t, err, got)
	assert.Equal(t, http.StatusBadRequest, got.Status)
}

func TestFromErrorWrapsUnknownAsInternal(t *testing.T) {
	cause := stdErrors.New("boom")
	got := FromError(cause)

	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.ErrorIs(t, got, cause)
	assert.Nil(t, FromError(nil))
}

func TestCloneMatchesSentinelByCode(t *testing.T) {
	clone := Clone(ErrNotFound, "Slot not found")

	assert.Equal(t, "Slot not found", clone.Message)
	assert.True(t, stdErrors.Is(clone, ErrNotFound))
	assert.False(t, stdErrors.Is(clone, ErrForbidden))
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestInternalKeepsCause(t *testing.T) {
	cause := stdErrors.New("db down")
	err := Internal(cause, "failed to book slot")

	assert.Equal(t, "failed to book slot: db down", err.Error())
	assert.Equal(t, cause, stdErrors.Unwrap(err))
}
