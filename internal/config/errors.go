package config

import "fmt"

// Error codes for LoadError.
const (
	ErrCodeReadFailed        = "E101" // Config file unreadable
	ErrCodeUnsupportedFormat = "E102" // Unknown file extension
	ErrCodeParseFailed       = "E103" // Syntax or decode error
	ErrCodeInvalidNodeID     = "E104" // Node key is not a UUID
	ErrCodeInvalidRelation   = "E105" // Relation key is not a non-negative integer
	ErrCodeInvalidDirective  = "E106" // Directive is not exactly one of input, source, sink
	ErrCodeInvalidAddress    = "E107" // Address is not host:port
	ErrCodeInvalidRule       = "E108" // Rule references a negative relation
)

// LoadError reports why a configuration file was rejected.
type LoadError struct {
	Code    string
	File    string
	Line    int // 0 when unknown
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %s", e.File, e.Line, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
