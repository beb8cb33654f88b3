package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeExtraction represents a candidate that could not be parsed
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeNavigation represents page load failures
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeBlocked represents a challenge/interstitial page or an active block backoff
	ErrorTypeBlocked ErrorType = "blocked"
	// ErrorTypePersistence represents ledger read/write errors
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeTransport represents notification delivery errors
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeInternal represents a recovered panic inside a source scan
	ErrorTypeInternal ErrorType = "internal"
)

// ScanError represents a typed error raised somewhere in the scan pipeline
type ScanError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *ScanError) Unwrap() error {
	return e.Err
}

// SkipsSource reports whether the error aborts the current source pass.
// Other kinds are recovered closer to where they happen.
func (e *ScanError) SkipsSource() bool {
	switch e.Type {
	case ErrorTypeNavigation, ErrorTypeBlocked, ErrorTypeInternal:
		return true
	default:
		return false
	}
}

// New creates a new ScanError
func New(errType ErrorType, source, message string, err error) *ScanError {
	return &ScanError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewExtraction creates a new extraction error
func NewExtraction(source, message string) *ScanError {
	return New(ErrorTypeExtraction, source, message, nil)
}

// NewNavigation creates a new navigation error
func NewNavigation(source, message string, err error) *ScanError {
	return New(ErrorTypeNavigation, source, message, err)
}

// NewBlocked creates a new block-condition error
func NewBlocked(source, message string) *ScanError {
	return New(ErrorTypeBlocked, source, message, nil)
}

// NewPersistence creates a new persistence error
func NewPersistence(source, message string, err error) *ScanError {
	return New(ErrorTypePersistence, source, message, err)
}

// NewTransport creates a new transport error
func NewTransport(source, message string, err error) *ScanError {
	return New(ErrorTypeTransport, source, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScanError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// NewInternal creates a new internal error from a recovered panic value
func NewInternal(source string, recovered interface{}) *ScanError {
	return New(ErrorTypeInternal, source, fmt.Sprintf("panic: %v", recovered), nil)
}

// TypeOf returns the ErrorType carried by err, or "" when err is not a ScanError
func TypeOf(err error) ErrorType {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type
	}
	return ""
}

// IsBlocked reports whether err is a block-condition error
func IsBlocked(err error) bool {
	return TypeOf(err) == ErrorTypeBlocked
}

// SkipsSource reports whether err is a ScanError that aborts the current source pass
func SkipsSource(err error) bool {
	var scanErr *ScanError
	return errors.As(err, &scanErr) && scanErr.SkipsSource()
}
