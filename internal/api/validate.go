package api

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"lectern/internal/library"
	"lectern/internal/matcher"
	"lectern/internal/services"
)

var requestValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("paperid", func(fl validator.FieldLevel) bool {
		return library.ValidID(fl.Field().String())
	})
	_ = v.RegisterValidation("pdfpath", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return filepath.IsAbs(value) && strings.EqualFold(filepath.Ext(value), ".pdf")
	})
	return v
})

// Validate checks a decoded request body against its struct tags. Failures
// are tagged with services.ErrValidation and name every offending field.
func Validate(req any) error {
	err := requestValidator().Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return services.Wrap(services.ErrValidation, "api", "validate request", "request rejected", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return services.Wrap(services.ErrValidation, "api", "validate request", strings.Join(problems, "; "), nil)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "paperid":
		return fmt.Sprintf("%s is not a valid paper id", fe.Field())
	case "pdfpath":
		return fmt.Sprintf("%s must be an absolute path to a .pdf file", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// Target validates req and resolves its kind and fragment language. Blank
// values default to text and zh.
func (req MatchRequest) Target() (matcher.Kind, matcher.Language, error) {
	if err := Validate(req); err != nil {
		return "", "", err
	}
	kind, err := matcher.ParseKind(req.Kind)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, "api", "validate request", "kind is not a match kind", err)
	}
	lang, err := matcher.ParseLanguage(req.Lang)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, "api", "validate request", "lang is not a supported language", err)
	}
	return kind, lang, nil
}
