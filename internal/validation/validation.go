// Package validation wraps go-playground/validator with English messages and
// converts failures into per-field apperr ValidationErrors.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"exam-system/internal/apperr"
	"exam-system/internal/models"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	gradeTag        = "grade"
	gradeText       = "{0} is not a known grade level"
	questionTypeTag = "question_type"
	questionTypeTxt = "{0} must be one of MultipleChoice, Descriptive, TrueFalse"
	requiredTag     = "required"
	requiredText    = "this field is required"
	eqfieldTag      = "eqfield"
	eqfieldText     = "password and its confirmation do not match"
)

func init() {
	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")

	validate = validator.New()
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(gradeTag, func(fl validator.FieldLevel) bool {
		return models.Grade(fl.Field().String()).Valid()
	})
	registerTranslation(gradeTag, gradeText, false)

	_ = validate.RegisterValidation(questionTypeTag, func(fl validator.FieldLevel) bool {
		return models.QuestionType(fl.Field().String()).Valid()
	})
	registerTranslation(questionTypeTag, questionTypeTxt, false)

	registerTranslation(requiredTag, requiredText, true)
	registerTranslation(eqfieldTag, eqfieldText, true)
}

func registerTranslation(tag, text string, override bool) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Struct validates s and returns an *apperr.Error listing every failing field.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal(err)
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Error: fe.Translate(translator)})
	}
	return apperr.Validation("invalid input", fields...)
}

// CleanString trims surrounding whitespace and optionally lowercases.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		s = strings.ToLower(s)
	}
	return s
}
