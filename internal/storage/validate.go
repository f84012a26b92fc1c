package storage

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidVideoID reports whether id is an 11-character video token.
func ValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report json field names so errors match the portable format.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("videoid", func(fl validator.FieldLevel) bool {
		return ValidVideoID(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return v
}

// Validate checks that e has every field the repository requires.
// The returned error wraps ErrInvalidInput.
func (e *WatchEvent) Validate() error {
	if e.WatchedAt.IsZero() {
		return fmt.Errorf("%w: watchedAt is required", ErrInvalidInput)
	}
	return ValidateStruct(e)
}

// ValidateStruct checks the validate tags on s, including the videoid rule.
// Field names in the message come from json tags. The error wraps
// ErrInvalidInput.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fe.Field()+" "+friendlyMessage(fe))
	}
	return strings.Join(parts, "; ")
}

func friendlyMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "videoid":
		return "must be an 11-character video id"
	default:
		return "is invalid"
	}
}
