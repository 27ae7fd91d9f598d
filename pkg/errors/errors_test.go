package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("approve: %w", Clone(ErrInvalidState, "promotion request already approved"))

	appErr := FromError(wrapped)

	assert.Equal(t, ErrInvalidState.Code, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "promotion request already approved", appErr.Message)
}

func TestFromErrorHidesInternalFaults(t *testing.T) {
	appErr := FromError(errors.New("pq: relation \"users\" does not exist"))

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, ErrInternal.Message, appErr.Message)
	assert.Error(t, appErr.Unwrap())
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrNotFound, "user not found")

	assert.Equal(t, "user not found", clone.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
	assert.Nil(t, FromError(nil))
}
