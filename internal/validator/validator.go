package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stemsi/exstem-session/internal/model"
)

var (
	// trans is the singleton English translator for validation errors.
	trans ut.Translator

	// structs validates `validate` tagged payloads outside of request binding.
	structs      *govalidator.Validate
	structsTrans ut.Translator
	structsOnce  sync.Once
)

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		trans = configure(v)
	}
}

func configure(v *govalidator.Validate) ut.Translator {
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Register English translations.
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	t, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, t)
	return t
}

func structValidator() *govalidator.Validate {
	structsOnce.Do(func() {
		structs = govalidator.New(govalidator.WithRequiredStructEnabled())
		structsTrans = configure(structs)
	})
	return structs
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// BindQuery binds and validates query parameters into dst.
func BindQuery(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindQuery(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// BindURI binds and validates path parameters into dst.
func BindURI(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindUri(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// Struct validates a struct by its `validate` tags.
func Struct(v interface{}) error {
	return structValidator().Struct(v)
}

// Describe renders a Struct error as one line of translated messages.
func Describe(err error) string {
	var ve govalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	structValidator()
	details := make([]string, 0, len(ve))
	for _, fe := range ve {
		details = append(details, fe.Namespace()+": "+fe.Translate(structsTrans))
	}
	return strings.Join(details, "; ")
}

// QuestionSet checks a fetched paper: field tags first, then the branch
// structure. Failures wrap model.ErrInvalidQuestionSet.
func QuestionSet(set *model.QuestionSet) error {
	if set == nil {
		return fmt.Errorf("%w: empty response", model.ErrInvalidQuestionSet)
	}
	if err := Struct(set); err != nil {
		return fmt.Errorf("%w: %s", model.ErrInvalidQuestionSet, Describe(err))
	}
	return set.CheckBranches()
}
