// Package validator wraps go-playground/validator with the docqa rules and
// English/Russian error messages.
package validator

import (
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/ru"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	ru_translations "github.com/go-playground/validator/v10/translations/ru"
)

// Language constants for translated messages.
const (
	LangEN = "en"
	LangRU = "ru"
)

// Custom validation tags.
const (
	// TagNotBlank rejects strings made only of whitespace.
	TagNotBlank = "notblank"
	// TagUserID accepts a conversation key: no whitespace, at most MaxUserIDLen runes.
	TagUserID = "userid"
)

// MaxUserIDLen bounds the length of a conversation key.
const MaxUserIDLen = 128

// Validator is a go-playground validator with translators registered.
type Validator struct {
	validate *validator.Validate
	trans    map[string]ut.Translator
}

var (
	global *Validator
	once   sync.Once
)

// Global returns the shared validator, created on first use.
func Global() *Validator {
	once.Do(func() {
		global = New()
	})
	return global
}

// New creates a Validator that reports JSON field names.
func New() *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		trans:    make(map[string]ut.Translator),
	}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale, ru.New())

	enTrans, _ := uni.GetTranslator(LangEN)
	_ = en_translations.RegisterDefaultTranslations(v.validate, enTrans)
	v.trans[LangEN] = enTrans

	ruTrans, _ := uni.GetTranslator(LangRU)
	_ = ru_translations.RegisterDefaultTranslations(v.validate, ruTrans)
	v.trans[LangRU] = ruTrans

	_ = v.validate.RegisterValidation(TagNotBlank, notBlank)
	_ = v.validate.RegisterValidation(TagUserID, userID)

	v.registerTranslations(LangEN, map[string]string{
		TagNotBlank: "{0} must not be blank",
		TagUserID:   "{0} must not contain whitespace and must be at most 128 characters",
	})
	v.registerTranslations(LangRU, map[string]string{
		TagNotBlank: "{0} не может быть пустым",
		TagUserID:   "{0} не должен содержать пробелов и быть длиннее 128 символов",
	})
	return v
}

// Struct validates s and returns translated errors, or nil when s is valid.
func (v *Validator) Struct(s any, lang string) *ValidationErrors {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationErrors{Errors: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	trans := v.translator(lang)
	out := &ValidationErrors{Errors: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Errors = append(out.Errors, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: fe.Translate(trans),
		})
	}
	return out
}

func (v *Validator) translator(lang string) ut.Translator {
	if t, ok := v.trans[lang]; ok {
		return t
	}
	return v.trans[LangEN]
}

func (v *Validator) registerTranslations(lang string, messages map[string]string) {
	trans := v.trans[lang]
	for tag, message := range messages {
		_ = v.validate.RegisterTranslation(tag, trans,
			func(ut ut.Translator) error {
				return ut.Add(tag, message, true)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				t, _ := ut.T(fe.Tag(), fe.Field())
				return t
			},
		)
	}
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func userID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // left to required
	}
	if utf8.RuneCountInString(value) > MaxUserIDLen {
		return false
	}
	return strings.IndexFunc(value, unicode.IsSpace) < 0
}
