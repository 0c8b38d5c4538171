package validation_test

import (
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/bookworm/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupPayload struct {
	Username string `json:"username" validate:"required,max=30,username"`
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"first_name" validate:"notblank"`
}

func TestValidateAcceptsValidPayload(t *testing.T) {
	v := validation.New()
	err := v.Validate(signupPayload{Username: "reader", Email: "reader@example.com", Name: "Ada"})
	assert.NoError(t, err)
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	v := validation.New()
	err := v.Validate(signupPayload{Username: "bad name", Email: "nope", Name: "  "})
	require.Error(t, err)

	var fieldErrors validation.FieldErrors
	require.True(t, errors.As(err, &fieldErrors))
	assert.Equal(t, "must not contain spaces or dashes", fieldErrors["username"])
	assert.Equal(t, "must be a valid email address", fieldErrors["email"])
	assert.Equal(t, "is required", fieldErrors["first_name"])
}

func TestValidateRejectsDashedUsername(t *testing.T) {
	v := validation.New()
	err := v.Validate(signupPayload{Username: "book-worm", Email: "a@b.co", Name: "A"})

	var fieldErrors validation.FieldErrors
	require.True(t, errors.As(err, &fieldErrors))
	assert.Contains(t, fieldErrors, "username")
	assert.Contains(t, err.Error(), "username must not contain spaces or dashes")
}
