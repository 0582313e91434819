// Package validation wraps go-playground/validator with the custom types and
// tags used by the request payloads.
package validation

import (
	"errors"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"storefront/internal/apperrors"
	"storefront/internal/models"
)

// New returns a validator that understands decimal.Decimal values and the
// order_status tag, and reports fields by their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// validate decimals as float64 so numeric tags (gte, gt, ...) apply
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("order_status", func(fl validatorv10.FieldLevel) bool {
		return models.OrderStatus(fl.Field().String()).Valid()
	})

	return v
}

// Struct validates s and converts failures into an *apperrors.ValidationError.
func Struct(v *validatorv10.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return &apperrors.ValidationError{Fields: map[string]string{"request": err.Error()}}
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fieldPath(fe.Namespace())] = message(fe)
	}
	return &apperrors.ValidationError{Fields: fields}
}

// fieldPath drops the root struct name: "CreateOrderRequest.items[0].quantity" -> "items[0].quantity".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " element(s) or characters"
	case "max":
		return "must have at most " + fe.Param() + " characters"
	case "order_status":
		return "must be one of pending, processing, shipped, delivered, cancelled"
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email address"
	default:
		return "failed on the '" + fe.Tag() + "' rule"
	}
}
