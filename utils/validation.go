package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// notblank rejects strings made only of whitespace
	if err := validate.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}

	// Report fields by their JSON name so errors match the request body
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with structured details
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	for _, err := range errs {
		field := err.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		name := err.Field()

		switch err.Tag() {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", name)
		case "min":
			if err.Kind() == reflect.Slice || err.Kind() == reflect.String {
				fields[field] = fmt.Sprintf("%s must contain at least %s item(s)", name, err.Param())
			} else {
				fields[field] = fmt.Sprintf("%s must be at least %s", name, err.Param())
			}
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s", name, err.Param())
		case "gte":
			fields[field] = fmt.Sprintf("%s must be greater than or equal to %s", name, err.Param())
		case "lte":
			fields[field] = fmt.Sprintf("%s must be less than or equal to %s", name, err.Param())
		case "notblank":
			fields[field] = fmt.Sprintf("%s must not be blank", name)
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", name, err.Param())
		default:
			fields[field] = fmt.Sprintf("%s validation failed on '%s' tag", name, err.Tag())
		}
	}

	return &ValidationError{
		Message: "Validation failed",
		Fields:  fields,
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}
