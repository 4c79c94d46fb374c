package validator

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name     string   `json:"name" validate:"required"`
	Color    string   `json:"color" validate:"required,color"`
	Timezone string   `json:"timezone" validate:"omitempty,timezone"`
	Items    []string `json:"items" validate:"min=1"`
}

func newValidate(t *testing.T) *validator.Validate {
	v := validator.New()
	require.NoError(t, configure(v, map[string]validator.Func{
		"color": func(fl validator.FieldLevel) bool {
			return fl.Field().String() == "red" || fl.Field().String() == "blue"
		},
	}))
	return v
}

func TestDescribeValidationErrors(t *testing.T) {
	v := newValidate(t)

	err := v.Struct(sample{Color: "green", Timezone: "Mars/Olympus"})
	require.Error(t, err)

	msg := Describe(err)
	assert.Contains(t, msg, "name is required")
	assert.Contains(t, msg, "color is invalid")
	assert.Contains(t, msg, "timezone must be a valid IANA timezone")
	assert.Contains(t, msg, "items must contain at least 1 item(s)")
}

func TestCustomTagPasses(t *testing.T) {
	v := newValidate(t)
	assert.NoError(t, v.Struct(sample{Name: "a", Color: "red", Timezone: "Europe/Berlin", Items: []string{"x"}}))
}

func TestDescribeDecodeErrors(t *testing.T) {
	var out struct {
		Limit int `json:"limit"`
	}

	err := json.Unmarshal([]byte(`{"limit":`), &out)
	assert.Equal(t, "request body is not valid JSON", Describe(err))

	err = json.Unmarshal([]byte(`{"limit":"ten"}`), &out)
	assert.Equal(t, "limit has the wrong type", Describe(err))
}
