package validator

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stemsi/exstem-proctor/internal/model"
)

var (
	// trans is the singleton English translator for validation errors.
	trans ut.Translator

	// standalone validates structs outside of a request, using `validate` tags.
	standalone *govalidator.Validate
	initOnce   sync.Once
)

func setupEngine(v *govalidator.Validate) {
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	en_translations.RegisterDefaultTranslations(v, trans)

	v.RegisterStructValidation(questionStructLevel, model.Question{})
	v.RegisterTranslation("option", trans,
		func(ut ut.Translator) error {
			return ut.Add("option", "{0} must be one of the question's option labels", true)
		},
		func(ut ut.Translator, fe govalidator.FieldError) string {
			t, _ := ut.T("option", fe.Field())
			return t
		},
	)
}

// questionStructLevel rejects an answer key that names no option.
func questionStructLevel(sl govalidator.StructLevel) {
	q := sl.Current().Interface().(model.Question)
	if q.CorrectOption == "" || len(q.Options) == 0 {
		return // reported by the field tags
	}
	if !q.HasOption(q.CorrectOption) {
		sl.ReportError(q.CorrectOption, "correctOption", "CorrectOption", "option", "")
	}
}

func initTranslator() {
	initOnce.Do(func() {
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")

		standalone = govalidator.New(govalidator.WithRequiredStructEnabled())
		setupEngine(standalone)
	})
}

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	initTranslator()
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		setupEngine(v)
	}
}

// FieldErrors maps a JSON field path to a human-readable message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	initTranslator()
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fieldPath(fe)] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// fieldPath drops the root struct name so nested fields read "questions[0].id".
func fieldPath(fe govalidator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// Struct validates v against its `validate` tags. The returned error is a
// FieldErrors when validation fails.
func Struct(v interface{}) error {
	initTranslator()
	if err := standalone.Struct(v); err != nil {
		var ve govalidator.ValidationErrors
		if errors.As(err, &ve) {
			return FieldErrors(TranslateErrors(err))
		}
		return err
	}
	return nil
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
