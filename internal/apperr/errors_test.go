package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFound_WrapsSentinel(t *testing.T) {
	err := fmt.Errorf("resolve chat: %w", NotFound("Chat"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidArgument))

	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, "Chat not found", nf.Error())
}

func TestValidation_Message(t *testing.T) {
	err := Validation("Name can't be blank")

	assert.True(t, errors.Is(err, ErrValidationFailed))
	assert.Equal(t, []string{"Name can't be blank"}, err.Errors)
	assert.Contains(t, err.Error(), "Name can't be blank")
}

func TestInvalidArgument_Is(t *testing.T) {
	err := InvalidArgument("Body parameter is required")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "Body parameter is required", err.Error())
}
