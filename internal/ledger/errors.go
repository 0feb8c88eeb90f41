package ledger

import "fmt"

// DeviceQueryError is returned when the device could not report its identity.
type DeviceQueryError struct {
	Cause error
}

func (e *DeviceQueryError) Error() string {
	return fmt.Sprintf("failed to query device: %v", e.Cause)
}

func (e *DeviceQueryError) Unwrap() error { return e.Cause }

type AppEnumerationError struct {
	Cause error
}

func (e *AppEnumerationError) Error() string {
	return fmt.Sprintf("failed to list installed apps: %v", e.Cause)
}

func (e *AppEnumerationError) Unwrap() error { return e.Cause }

// VersionParseError covers both a malformed firmware path and a catalog that
// has no usable entry for the requested application.
type VersionParseError struct {
	Path  string
	Cause error
}

func (e *VersionParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot resolve app version: %v", e.Cause)
	}
	return fmt.Sprintf("malformed firmware path %q", e.Path)
}

func (e *VersionParseError) Unwrap() error { return e.Cause }
