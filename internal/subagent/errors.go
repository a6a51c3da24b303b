package subagent

import (
	"errors"
	"fmt"
)

// ErrMissingFrontMatter is returned when a definition document does not
// begin with a front matter block delimited by `---` lines.
var ErrMissingFrontMatter = errors.New("no YAML front matter block found")

// ValidationError describes why a spec failed validation.
type ValidationError struct {
	// Field is the spec field that failed ("name", "instructions", "tools",
	// "keywords").
	Field string
	// Value is the offending value, when one exists.
	Value string
	// Reason explains the rule that was violated.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s `%s`: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func missingField(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "missing required field"}
}

// ParseError wraps a failure to parse a definition document, carrying the
// origin path when one is known.
type ParseError struct {
	// Path is the definition file the error came from; empty for inline
	// documents.
	Path string
	// Err is the underlying failure.
	Err error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
