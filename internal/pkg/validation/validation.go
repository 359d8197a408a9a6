package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"folio-backend/internal/domain"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("data_type", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseDataType(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("account_type", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseAccountType(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("asset_type", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseAssetType(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if len(s) != 3 {
				return false
			}
			for _, r := range s {
				if !unicode.IsLetter(r) {
					return false
				}
			}
			return true
		})
	})
	return validate
}

// Struct validates a request body against its `binding` tags and returns the
// first failure as a readable message.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "min", "max":
		return fmt.Errorf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, fe.Param())
	}
	return fmt.Errorf("%s is not a valid %s", field, strings.ReplaceAll(fe.Tag(), "_", " "))
}

// Slugify turns a column title into an identifier: lower case ASCII letters,
// digits and single underscores. Accents are folded ("Café" -> "cafe").
func Slugify(title string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range norm.NFKD.String(title) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingSep = true
		}
	}
	slug := b.String()
	if slug != "" && unicode.IsDigit(rune(slug[0])) {
		slug = "c_" + slug
	}
	return slug
}
