package monitor

import "codeberg.org/tyrven/vitalsd/internal/errors"

const (
	// Attach and spec validation errors
	ErrInvalidSpec   = errors.ErrorCode("monitor_invalid_spec")
	ErrUnknownMetric = errors.ErrUnknownMetric

	// Teardown errors
	ErrReaderRelease = errors.ErrorCode("monitor_reader_release_failed")
)
