package user

import (
	"fmt"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/auth"
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	capabilitiesTag  = "capabilities"
	capabilitiesText = "invalid capabilities"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim     = .7
	pwdAttrSimErr = "password cannot be similar to user attributes"
)

// InitValidators registers this package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	_ = validate.RegisterValidation(capabilitiesTag, capabilitiesValidation)
	core.RegisterCustomTranslation(validate, translator, capabilitiesTag, capabilitiesText)

	_ = validate.RegisterValidation(pwdMinLenTag, pwdMinLenValidation)
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)

	_ = validate.RegisterValidation(pwdNoSpaceTag, pwdNoSpaceValidation)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)

	_ = validate.RegisterValidation(pwdNotAllNumTag, pwdNotAllNumValidation)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
}

func roleValidation(fl validator.FieldLevel) bool {
	return auth.Role(fl.Field().String()).IsValid()
}

func capabilitiesValidation(fl validator.FieldLevel) bool {
	caps, ok := fl.Field().Interface().([]auth.Capability)
	if !ok {
		return false
	}
	for _, c := range caps {
		if !c.IsValid() {
			return false
		}
	}
	return true
}

func pwdMinLenValidation(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) >= pwdMinLen
}

func pwdNoSpaceValidation(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func pwdNotAllNumValidation(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// validatePasswordSimilarity rejects passwords too close to the user's
// name, username or email (ratio per difflib.SequenceMatcher).
func validatePasswordSimilarity(pwd string, attrs ...string) error {
	lpwd := strings.ToLower(pwd)
	getRatio := func(attr string) float64 {
		return difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(strings.ToLower(attr), "")).QuickRatio()
	}
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		if getRatio(attr) >= pwdMaxSim {
			return core.NewValidationError(nil, core.FieldError{Field: "password", Error: pwdAttrSimErr})
		}
	}
	return nil
}
