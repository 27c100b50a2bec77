// Package validation checks API and CLI input with go-playground/validator.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/foxzi/sendry-campaign/internal/models"
)

// ErrTranslatorNotFound indicates the English translator is unavailable
var ErrTranslatorNotFound = errors.New("translator not found")

// Errors maps field names to messages. Field names follow the json tags.
type Errors map[string]string

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation error"
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("validation error (failed to marshal: %v)", err)
	}
	return string(b)
}

// Validator validates structs tagged with `validate`
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New creates a validator with English messages and the custom rules
func New() (*Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	enLang := en.New()
	uni := ut.New(enLang, enLang)
	trans, ok := uni.GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}
	if err := registerCustom(validate, trans); err != nil {
		return nil, err
	}

	return &Validator{validate: validate, translator: trans}, nil
}

// MustNew is New for wiring code that cannot recover
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Struct validates data and returns Errors on failure
func (v *Validator) Struct(data any) error {
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(Errors, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = fe.Translate(v.translator)
	}
	return out
}

func registerCustom(validate *validator.Validate, trans ut.Translator) error {
	if err := validate.RegisterValidation("encryption", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "", models.EncryptionNone, models.EncryptionSSL, models.EncryptionTLS:
			return true
		}
		return false
	}); err != nil {
		return err
	}

	return validate.RegisterTranslation("encryption", trans,
		func(ut ut.Translator) error {
			return ut.Add("encryption", "{0} must be one of none, ssl or tls", false)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, err := ut.T(fe.Tag(), fe.Field())
			if err != nil {
				return fe.Error()
			}
			return t
		},
	)
}
