package certificate

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-edu/meridian/core"
)

var (
	categoryTag  = "certcategory"
	categoryText = "invalid certificate category"

	levelTag  = "certlevel"
	levelText = "invalid certificate level"

	evidenceKindTag  = "evidencekind"
	evidenceKindText = "invalid evidence kind"
)

// InitValidators registers this package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(categoryTag, categoryValidation)
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)

	_ = validate.RegisterValidation(levelTag, levelValidation)
	core.RegisterCustomTranslation(validate, translator, levelTag, levelText)

	_ = validate.RegisterValidation(evidenceKindTag, evidenceKindValidation)
	core.RegisterCustomTranslation(validate, translator, evidenceKindTag, evidenceKindText)
}

func categoryValidation(fl validator.FieldLevel) bool {
	switch Category(fl.Field().String()) {
	case CategoryInternal, CategoryExternal, CategoryEvent:
		return true
	}
	return false
}

func levelValidation(fl validator.FieldLevel) bool {
	switch Level(fl.Field().String()) {
	case LevelBeginner, LevelIntermediate, LevelAdvanced, LevelDepartment:
		return true
	}
	return false
}

func evidenceKindValidation(fl validator.FieldLevel) bool {
	switch EvidenceKind(fl.Field().String()) {
	case EvidenceURL, EvidenceFile, EvidencePrint:
		return true
	}
	return false
}
