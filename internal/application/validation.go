package application

import (
	"errors"
	"reflect"
	"strings"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Only fails on a duplicate tag name.
	_ = v.RegisterValidation("price", validatePrice)
	return v
}

// validatePrice accepts non-negative decimals.
func validatePrice(fl validator.FieldLevel) bool {
	price, err := decimal.NewFromString(fl.Field().String())
	return err == nil && !price.IsNegative()
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		fields = append(fields, fieldErr.Field())
	}
	return &domain.ValidationError{Fields: fields}
}
