package utils

import (
	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator for request structs.
type Validator struct {
	validate *validator.Validate
}

// Validate checks struct tags and returns the first violation.
func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

var defaultValidator = &Validator{validate: validator.New()}

// GetValidator returns the shared request validator.
func GetValidator() *Validator {
	return defaultValidator
}
