package models

import (
	"strconv"

	"github.com/go-playground/validator/v10"
)

// payloadValidate is shared by every payload check; validator caches struct
// metadata so one instance is enough.
var payloadValidate *validator.Validate

func init() {
	payloadValidate = validator.New(validator.WithRequiredStructEnabled())

	// Stored fields are sized in bytes, "max" would count runes.
	_ = payloadValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// ValidateFields checks the bounded string fields of a payload.
func ValidateFields(f *CrateFields) error {
	return payloadValidate.Struct(f)
}

// ValidateKey checks a single record key.
func ValidateKey(key string) error {
	return payloadValidate.Var(key, "required,maxbytes=64,printascii")
}

// ValidateKeys checks every key of a caller supplied key list. Bounds on the
// list length are enforced by the ledger since they carry their own errors.
func ValidateKeys(keys []string) error {
	return payloadValidate.Var(keys, "dive,required,maxbytes=64,printascii")
}
