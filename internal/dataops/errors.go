package dataops

import "fmt"

// Error codes for bulk-data failures.
const (
	CodeResultDownloadFailed = "E_RESULT_DOWNLOAD_FAILED"
	CodeMalformedValue       = "E_MALFORMED_VALUE"
	CodeUnsupportedOperation = "E_UNSUPPORTED_OPERATION"
	CodeMissingField         = "E_MISSING_FIELD"
)

// Error wraps bulk-data failures with a structured code.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error     { return e.Err }
func (e *Error) CodeValue() string { return e.Code }

func wrapError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

func errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}
