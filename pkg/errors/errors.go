package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types that can be used throughout the application
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
	ErrTimeout      = errors.New("operation timed out")

	// Scoring pipeline failure classes
	ErrCollectorUnavailable = errors.New("collector unavailable")
	ErrMalformedRecord      = errors.New("malformed record")
	ErrUnsupportedAnalysis  = errors.New("unsupported analysis type")
	ErrFatal                = errors.New("fatal analysis failure")
)

// Error codes attached by the domain constructors.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeCollectorUnavailable = "COLLECTOR_UNAVAILABLE"
	CodeMalformedRecord      = "MALFORMED_RECORD"
	CodeUnsupportedAnalysis  = "UNSUPPORTED_ANALYSIS"
	CodeFatal                = "FATAL"
)

// Error represents a structured error with caller location and additional context
type Error struct {
	// original is the sentinel or wrapped error
	original error

	// cause is an optional lower-level error kept next to the sentinel
	cause error

	message string
	fields  map[string]interface{}

	stackPC uintptr
	file    string
	line    int

	// Code is an optional error code for categorization
	Code string
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	e := newCoded(2, errors.New(message), message, "", fields)
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	return newCoded(2, err, message, "", fields)
}

func (e *Error) clone(extra int) *Error {
	result := *e
	result.fields = make(map[string]interface{}, len(e.fields)+extra)
	for k, v := range e.fields {
		result.fields[k] = v
	}
	return &result
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(1)
	result.fields[key] = value
	return result
}

// WithFields adds multiple fields to the error context
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(len(fields))
	for k, v := range fields {
		result.fields[k] = v
	}
	return result
}

// WithCode adds an error code to the error
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(0)
	result.Code = code
	return result
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}

	msg := e.original.Error()
	if e.message != "" && e.message != msg {
		msg = fmt.Sprintf("%s: %v", e.message, e.original)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Cause returns the lower-level error recorded by the domain constructors, if any.
func (e *Error) Cause() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}
	parts := strings.Split(e.file, "/")
	return fmt.Sprintf("%s:%d", parts[len(parts)-1], e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// Is reports whether the sentinel, the cause, or the error itself matches target.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if errors.Is(e.original, target) {
		return true
	}
	if e.cause != nil && errors.Is(e.cause, target) {
		return true
	}
	return e == target
}

// AsJSON returns the error in JSON-friendly map format
func (e *Error) AsJSON() map[string]interface{} {
	if e == nil {
		return nil
	}

	result := map[string]interface{}{
		"message":  e.Error(),
		"location": e.Location(),
	}

	if e.Code != "" {
		result["code"] = e.Code
	}

	if len(e.fields) > 0 {
		result["context"] = e.fields
	}

	return result
}

func newCoded(skip int, sentinel error, message, code string, fields []map[string]interface{}) *Error {
	pc, file, line, _ := runtime.Caller(skip)

	fieldMap := make(map[string]interface{})
	if len(fields) > 0 && fields[0] != nil {
		for k, v := range fields[0] {
			fieldMap[k] = v
		}
	}

	return &Error{
		original: sentinel,
		message:  message,
		fields:   fieldMap,
		stackPC:  pc,
		file:     file,
		line:     line,
		Code:     code,
	}
}

// NewNotFound creates a new ErrNotFound error with additional context
func NewNotFound(message string, fields ...map[string]interface{}) *Error {
	return newCoded(2, ErrNotFound, message, CodeNotFound, fields)
}

// NewInvalidInput creates a new ErrInvalidInput error with additional context
func NewInvalidInput(message string, fields ...map[string]interface{}) *Error {
	return newCoded(2, ErrInvalidInput, message, CodeInvalidInput, fields)
}

// NewCollectorUnavailable reports that the collaborator for a modality could
// not deliver records. cause may be nil.
func NewCollectorUnavailable(modality string, cause error, fields ...map[string]interface{}) *Error {
	e := newCoded(2, ErrCollectorUnavailable, fmt.Sprintf("%s collector unavailable", modality), CodeCollectorUnavailable, fields)
	e.fields["modality"] = modality
	if cause != nil {
		e.fields["cause"] = cause.Error()
		e.cause = cause
	}
	return e
}

// NewMalformedRecord reports a single raw record that cannot be turned into a data point.
func NewMalformedRecord(modality, details string, fields ...map[string]interface{}) *Error {
	e := newCoded(2, ErrMalformedRecord, fmt.Sprintf("malformed %s record: %s", modality, details), CodeMalformedRecord, fields)
	e.fields["modality"] = modality
	return e
}

// NewUnsupportedAnalysis reports an analysis type the orchestrator does not dispatch.
func NewUnsupportedAnalysis(analysisType string) *Error {
	e := newCoded(2, ErrUnsupportedAnalysis, fmt.Sprintf("unsupported analysis type: %s", analysisType), CodeUnsupportedAnalysis, nil)
	e.fields["analysis_type"] = analysisType
	return e
}

// NewFatal marks an internal failure while fusing or scoring one customer.
func NewFatal(customerID string, cause error) *Error {
	msg := fmt.Sprintf("analysis of customer %s failed", customerID)
	e := newCoded(2, ErrFatal, msg, CodeFatal, nil)
	e.fields["customer_id"] = customerID
	if cause != nil {
		e.fields["cause"] = cause.Error()
		e.cause = cause
	}
	return e
}

// IsErrorType checks if an error is of a specific error type
func IsErrorType(err, target error) bool {
	return errors.Is(err, target)
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetCode()
	}
	return ""
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}
