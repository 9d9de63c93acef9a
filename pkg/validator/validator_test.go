package validator

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type forgotPayload struct {
	Email string `json:"email" validate:"required,contains=@"`
}

type resetPayload struct {
	CustomerID string `json:"customerId" validate:"required"`
	Token      string `json:"resetToken" validate:"required"`
	Password   string `json:"password" validate:"required,min=8"`
}

func TestValidateStructSuccess(t *testing.T) {
	require.NoError(t, ValidateStruct(forgotPayload{Email: "rider@example.com"}))
	require.NoError(t, ValidateStruct(resetPayload{
		CustomerID: "gid://shopify/Customer/123",
		Token:      "abc",
		Password:   "newpassword1",
	}))
}

func TestValidateStructFailures(t *testing.T) {
	err := ValidateStruct(resetPayload{Password: "short"})
	require.Error(t, err)

	var vErrs ValidationErrors
	require.True(t, errors.As(err, &vErrs))
	require.Len(t, vErrs, 3)
	require.True(t, vErrs.Has("customerId"))
	require.True(t, vErrs.Has("resetToken"))
	require.True(t, vErrs.Has("password"))
	require.False(t, vErrs.Has("email"))
}

func TestValidateStructContains(t *testing.T) {
	err := ValidateStruct(forgotPayload{Email: "not-an-email"})
	require.Error(t, err)
	require.Equal(t, `email must contain "@"`, FirstMessage(err))
}

func TestValidationErrorMessages(t *testing.T) {
	require.Equal(t, "password must be at least 8 characters", ValidationError{Field: "password", Tag: "min", Param: "8"}.Message())
	require.Equal(t, "email is required", ValidationError{Field: "email", Tag: "required"}.Message())
	require.Equal(t, "id is invalid", ValidationError{Field: "id", Tag: "uuid4"}.Message())
	require.Empty(t, FirstMessage(errors.New("boom")))
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("scooter", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "scooter"
	})
	require.NoError(t, err)

	type custom struct {
		Value string `validate:"scooter"`
	}

	require.NoError(t, ValidateStruct(custom{Value: "scooter"}))
	require.Error(t, ValidateStruct(custom{Value: "bicycle"}))
}
