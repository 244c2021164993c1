package httpx

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/groupledger/groupledger/internal/shared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs validator tags over an inbound DTO and folds failures
// into the shared validation sentinel so handlers map them to 400.
func ValidateStruct(target any) error {
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}
