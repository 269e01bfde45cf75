package models

import "errors"

// Error kinds shared by the service and storage layers. Callers wrap them with
// fmt.Errorf("%w: ...") and classify with KindOf.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
)

// KindOf maps any error onto one of the four kinds. Unclassified errors are internal.
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrConflict):
		return ErrConflict
	default:
		return ErrInternal
	}
}
