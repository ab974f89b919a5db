package bench

import "codeberg.org/tyrven/vitalsd/internal/errors"

const (
	// Import errors
	ErrMalformedImport = errors.ErrMalformedImport
	ErrEmptyImport     = errors.ErrEmptyImport
)
