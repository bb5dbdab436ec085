package georaster

import (
	"errors"
	"fmt"
)

var (
	ErrDisposed           = errors.New("raster disposed")
	ErrImmutableDimension = errors.New("dimension already set")
	ErrIncompatibleRaster = errors.New("incompatible raster")
	ErrIncompleteMetadata = errors.New("incomplete metadata")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOutOfMemory        = errors.New("out of memory")
	ErrUnsupportedFormat  = errors.New("unsupported format")

	errShortRead = errors.New("short read")
)

// A ConfigError is returned when a pyramid, raster, or reader is constructed
// with missing or inconsistent parameters. It is never worth retrying.
type ConfigError struct {
	Field  string
	Reason string
}

func newConfigError(field, reason string) *ConfigError {
	return &ConfigError{
		Field:  field,
		Reason: reason,
	}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// A SourceError is an unrecoverable failure associated with a data source.
type SourceError struct {
	Source string
	Op     string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
