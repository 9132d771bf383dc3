package uhttp

import (
	"errors"
	"fmt"
	"time"
)

// Error types carried by ClientError.Type.
const (
	ErrorTypeNetwork    = "Network"
	ErrorTypeTimeout    = "Timeout"
	ErrorTypeHTTP       = "HTTP"
	ErrorTypeParse      = "Parse"
	ErrorTypeConfig     = "Config"
	ErrorTypeValidation = "Validation"
	ErrorTypeJSONP      = "JSONP"
)

// Sentinel errors for common failure scenarios
var (
	// ErrTimeout matches any pipeline-triggered timeout.
	ErrTimeout = &ClientError{Type: ErrorTypeTimeout}

	// ErrConfig matches any configuration error raised while merging options.
	ErrConfig = &ClientError{Type: ErrorTypeConfig}

	// ErrHTTP matches any non-success status.
	ErrHTTP = &ClientError{Type: ErrorTypeHTTP}

	// ErrNetwork matches transport failures.
	ErrNetwork = &ClientError{Type: ErrorTypeNetwork}

	// ErrInvalidCache is the cause of a ConfigError for an unrecognised cache option.
	ErrInvalidCache = errors.New("uhttp: cache option is neither a bool, a cache nor a cache reference")

	// ErrJSONPCallback is returned when a JSONP payload does not invoke a registered callback.
	ErrJSONPCallback = errors.New("uhttp: jsonp payload did not invoke a registered callback")
)

// ClientError is the error delivered to Catch/Error handlers.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	StatusCode int
	Body       any
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsTimeout reports whether err is a pipeline timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsHTTPError reports whether err was caused by a non-success status.
func IsHTTPError(err error) bool {
	return errors.Is(err, ErrHTTP)
}

// IsConfigError reports whether err was raised while building the request configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, &ClientError{Type: ErrorTypeValidation})
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}

func newClientError(errorType, message string, cause error, cfg *Config, requestID string, start time.Time) *ClientError {
	e := &ClientError{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		RequestID: requestID,
		Timestamp: time.Now(),
	}
	if cfg != nil {
		e.Method = cfg.Method
		e.URL = cfg.URL
	}
	if !start.IsZero() {
		e.Duration = time.Since(start)
	}
	return e
}
