// Package validator configures gin's request validation and turns binding
// failures into readable messages.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterGinValidations installs the custom tags on gin's default validator
// and makes error fields report their JSON names. Calling it again replaces
// the tag functions.
func RegisterGinValidations(tags map[string]validator.Func) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return configure(v, tags)
}

func configure(v *validator.Validate, tags map[string]validator.Func) error {
	v.RegisterTagNameFunc(jsonName)
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %q validation: %w", tag, err)
		}
	}
	return nil
}

func jsonName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return field.Name
	}
	return name
}

// Describe renders a bind error for API clients.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describeField(fe))
		}
		return strings.Join(msgs, "; ")
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return "request body is not valid JSON"
	case errors.As(err, &typeErr):
		return fmt.Sprintf("%s has the wrong type", typeErr.Field)
	}
	return "invalid request body: " + err.Error()
}

func describeField(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "timezone":
		return fmt.Sprintf("%s must be a valid IANA timezone", field)
	case "platform":
		return fmt.Sprintf("%s is not a supported platform", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}
