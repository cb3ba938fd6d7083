package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validatorInstance is a package-level validator instance.
// Using a single instance is more efficient as it caches struct information.
var validatorInstance = validator.New()

func init() {
	_ = validatorInstance.RegisterValidation("messagetype", func(fl validator.FieldLevel) bool {
		return MessageType(fl.Field().String()).Valid()
	})
}

// Validate runs the struct tag checks on v. Failures are returned wrapped in
// ErrInvalidPayload with one readable clause per offending field.
func Validate(v any) error {
	err := validatorInstance.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(parts, ", "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_without":
		return fmt.Sprintf("%s is required when %s is empty", field, fe.Param())
	case "messagetype":
		return fmt.Sprintf("%s %q is not a recognized message type", field, fe.Value())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
