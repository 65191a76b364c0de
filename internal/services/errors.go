package services

import (
	"errors"
	"fmt"

	"couple-todo-backend/internal/repository"
)

// Error kinds returned by the services. Match them with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyPaired = errors.New("couple already has a partner")
	ErrSelfPairing   = errors.New("cannot join a couple you created")
	ErrForbidden     = errors.New("not a member of this couple")
	ErrStorage       = errors.New("storage failure")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeError classifies an error coming from a store or blob collaborator
func storeError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStorage, err)
}
