package apperrors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrNoConnection = errors.New("no connection to gaiandb")
	ErrInvalidNode  = errors.New("invalid node configuration")
)
