package dto

import (
	"reflect"
	"regexp"
	"strings"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Chain names are registry keys such as "ethereum" or "bitcoin-testnet".
var chainNameRe = regexp.MustCompile(`(?i)^[a-z0-9][a-z0-9_-]{0,31}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("chain_name", validateChainName)
		_ = v.RegisterValidation("risk_level", validateRiskLevel)
		_ = v.RegisterValidation("rule_type", validateRuleType)
	}
}

func validateChainName(fl validator.FieldLevel) bool {
	return chainNameRe.MatchString(fl.Field().String())
}

func validateRiskLevel(fl validator.FieldLevel) bool {
	return domain.RiskLevel(fl.Field().String()).Valid()
}

func validateRuleType(fl validator.FieldLevel) bool {
	return domain.RuleType(fl.Field().String()).Valid()
}

// SanitizeStruct trims every exported string field (including *string) of
// a struct pointer and lowercases the ones tagged `sanitize:"lower"`.
// Embedded structs are walked too.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		lower := rt.Field(i).Tag.Get("sanitize") == "lower"
		switch f.Kind() {
		case reflect.String:
			f.SetString(clean(f.String(), lower))
		case reflect.Struct:
			sanitizeFields(f)
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			if elem := f.Elem(); elem.Kind() == reflect.String {
				elem.SetString(clean(elem.String(), lower))
			}
		}
	}
}

func clean(s string, lower bool) string {
	s = strings.TrimSpace(s)
	if lower {
		s = strings.ToLower(s)
	}
	return s
}
