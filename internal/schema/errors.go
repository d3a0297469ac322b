package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Error reports a document or value that violates the schema.
//
// Message is the human readable explanation shown to operators. Path lists
// the property names and array positions leading to the offending value,
// outermost first; it is informational and not part of Error().
type Error struct {
	Message string
	Path    []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Location joins the path with dots, e.g. "applications[2].installType".
func (e *Error) Location() string {
	var b strings.Builder
	for _, seg := range e.Path {
		if b.Len() > 0 && !strings.HasPrefix(seg, "[") {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

// Errorf creates an *Error with a formatted message.
func Errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// IsError returns true if err is or wraps a schema *Error.
func IsError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// within prefixes the path of a schema error with seg.
// Other errors are returned unchanged.
func within(err error, seg string) error {
	var se *Error
	if !errors.As(err, &se) {
		return err
	}
	return &Error{Message: se.Message, Path: append([]string{seg}, se.Path...)}
}

func index(i int) string {
	return fmt.Sprintf("[%d]", i)
}

// message renders err for display, dropping wrapping for schema errors.
func message(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
