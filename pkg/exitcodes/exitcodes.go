// Package exitcodes provides centralized exit code definitions for the respimg tool.
// Exit codes are organized in ranges that mirror the build error taxonomy:
//
//	0:     Success
//	1-9:   Input/Configuration Errors (e.g., missing include pattern, bad config file)
//	10-19: Image Processing Errors (e.g., decode failure, hook failure, unknown image)
//	20-29: Runtime Errors (e.g., I/O errors)
//	30-39: Internal Errors
package exitcodes

import (
	"errors"
	"fmt"
)

// Exit code constants organized by category
const (
	ExitSuccess = 0

	// Input/Configuration Errors (1-9)
	ExitMissingRequiredFlag     = 1 // Required command flag not provided
	ExitInputConfigurationError = 2 // Malformed or incomplete configuration group
	ExitSourceTreeNotFound      = 3 // Input tree root missing or unreadable

	// Image Processing Errors (10-19)
	ExitImageInputError      = 10 // Source image unreadable or corrupt
	ExitImageProcessingError = 11 // Encode failure or hook failure
	ExitImageLookupError     = 12 // Unknown logical image name or type

	// Runtime Errors (20-29)
	ExitGeneralRuntimeError = 20
	ExitIOError             = 21

	// Internal Errors (30-39)
	ExitInternalError = 30
)

// ExitCodeError wraps an error with an exit code so the CLI can report both.
type ExitCodeError struct {
	Code int   // Exit code to return
	Err  error // Underlying error
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d: %v", e.Code, e.Err)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// Wrap returns err annotated with code, or nil when err is nil.
func Wrap(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitCodeError{Code: code, Err: err}
}

// IsExitCodeError checks if an error is an ExitCodeError and returns its code.
// Returns 0 and false if the error is not an ExitCodeError.
func IsExitCodeError(err error) (int, bool) {
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// CodeDescriptions maps exit codes to their human-readable descriptions
var CodeDescriptions = map[int]string{
	ExitSuccess:                 "Success",
	ExitMissingRequiredFlag:     "Required command flag not provided",
	ExitInputConfigurationError: "Configuration error",
	ExitSourceTreeNotFound:      "Source tree not found",
	ExitImageInputError:         "Source image could not be read or decoded",
	ExitImageProcessingError:    "Failed to process image variant",
	ExitImageLookupError:        "Image or image type not found",
	ExitGeneralRuntimeError:     "General runtime/system error",
	ExitIOError:                 "IO operation error",
	ExitInternalError:           "Internal error in command execution",
}
