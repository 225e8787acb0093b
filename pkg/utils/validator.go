package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/turtacn/aegis/pkg/errors"
)

var (
	defaultValidator *validator.Validate
	matchFirstCap    = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap      = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// claims_namespace calls IsValidNamespace, which reads defaultValidator;
// assigning it in a var initializer would be an initialization cycle.
func init() {
	defaultValidator = newValidator()
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("claims_namespace", func(fl validator.FieldLevel) bool {
		return IsValidNamespace(fl.Field().String())
	})
	return v
}

// ValidateStruct validates a struct using the default validator.
// It returns a validation AppError describing every failing field.
func ValidateStruct(s interface{}) error {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.ErrValidation(err.Error(), nil)
	}
	details := make(map[string]interface{}, len(validationErrors))
	for _, fe := range validationErrors {
		details[toSnakeCase(fe.Field())] = formatValidationError(fe)
	}
	return errors.ErrValidation("request validation failed", details)
}

// IsValidNamespace reports whether ns is an absolute https URL with a host that ends in "/".
func IsValidNamespace(ns string) bool {
	if !strings.HasSuffix(ns, "/") {
		return false
	}
	if err := defaultValidator.Var(ns, "required,url"); err != nil {
		return false
	}
	u, err := url.Parse(ns)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != "" && u.RawQuery == "" && u.Fragment == ""
}

// formatValidationError creates a user-friendly error message for a validation error.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "ip":
		return "must be a valid IP address"
	case "iso3166_1_alpha2":
		return "must be an ISO 3166-1 alpha-2 country code"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}

// toSnakeCase converts a string from CamelCase to snake_case.
func toSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}
