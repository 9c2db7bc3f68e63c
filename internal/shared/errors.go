package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Preflight and environment errors
	ErrPreflightFailed = fmt.Errorf("preflight checks failed")
	ErrMissingBinary   = fmt.Errorf("required executable not found")
	ErrLocked          = fmt.Errorf("another run holds the cache lock")

	// Output errors
	ErrOutputUnavailable = fmt.Errorf("output directory unusable")

	// Store errors
	ErrStoreUnavailable = fmt.Errorf("completion store unavailable")
	ErrUnknownSegment   = fmt.Errorf("segment not planned")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
