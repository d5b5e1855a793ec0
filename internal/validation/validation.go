// Package validation configures the field validator shared by the order and
// withdrawal forms.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// TagPositiveDecimal accepts strings that parse to a number greater than zero.
const TagPositiveDecimal = "posdecimal"

// New returns a validator with the workbench's custom tags registered.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation(TagPositiveDecimal, positiveDecimal)
	return v
}

func positiveDecimal(fl validator.FieldLevel) bool {
	_, ok := ParsePositive(fl.Field().String())
	return ok
}

// ParsePositive parses s as a decimal and reports whether it is greater than zero.
func ParsePositive(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// FieldError names the first failing field of a validation error, or "".
func FieldError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("%s failed %s", strings.ToLower(verrs[0].Field()), verrs[0].Tag())
	}
	return ""
}
