package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// formatPattern restricts the metadata format discriminator to a lowercase
// token such as "json", "markdown" or "plain_text".
var formatPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

var validate = newSchemaValidator()

func newSchemaValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report field paths using their persisted (json) names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("format", func(fl validator.FieldLevel) bool {
		return formatPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("domain: register format validator: %v", err))
	}

	return v
}

// ValidFormat reports whether s is an acceptable format discriminator.
func ValidFormat(s string) bool { return formatPattern.MatchString(s) }

// checkStruct runs tag validation on s and folds any failures into verr.
func checkStruct(verr *ValidationError, s any) {
	err := validate.Struct(s)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.AddError(err.Error())
		return
	}

	for _, fe := range fieldErrs {
		verr.AddCause(causeFor(fe), describeFieldError(fe))
	}
}

// causeFor maps a failing validator tag onto the schema sentinel.
func causeFor(fe validator.FieldError) error {
	if fe.Field() == MetadataKeyFormat {
		return ErrInvalidFormat
	}
	switch fe.Tag() {
	case "min", "max":
		return ErrScoreOutOfRange
	case "format":
		return ErrInvalidFormat
	case "gte":
		return ErrNegativeTokenCount
	default:
		return ErrMissingField
	}
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be >= %s, got %v", field, fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be <= %s, got %v", field, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", field, fe.Param(), fe.Value())
	case "format":
		return fmt.Sprintf("%s must be a lowercase token, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// checkFinite rejects NaN and infinities, which range tags let through.
func checkFinite(verr *ValidationError, field string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		verr.AddCause(ErrScoreOutOfRange, fmt.Sprintf("%s must be a finite number, got %v", field, v))
	}
}
