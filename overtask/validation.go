// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtask

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks struct tags on entities and request models.
// The first failing field is reported as a *ValidationError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Namespace(), Rule: fe.Tag()}
	}
	return &ValidationError{Field: "", Rule: err.Error()}
}

// RequireText rejects empty or whitespace-only input
func RequireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Rule: "required"}
	}
	return nil
}
