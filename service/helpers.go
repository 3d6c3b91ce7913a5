package service

import (
	"errors"
	"strings"

	"brokeradmin/core"
	"brokeradmin/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ParseUserID parses a user id supplied as a string.
func ParseUserID(raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, core.NewInvalidParameterError("Parameter 'userId' can't be empty!")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, core.NewInvalidParameterError("Incorrect userId %s", raw)
	}
	return id, nil
}

func isSettingsNotFound(err error) bool {
	return errors.Is(err, storage.ErrSettingsNotFound) || core.IsNotFound(err)
}

// validationError turns struct validation failures into an InvalidArguments error naming
// the offending fields.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return core.NewInvalidParameterError("Invalid request: %v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed on '"+fe.Tag()+"'")
	}
	return core.NewInvalidParameterError("Validation failed: %s", strings.Join(parts, ", "))
}
