package reconcile

import (
	"errors"
	"fmt"

	"github.com/roach88/emmsync/internal/schema"
)

// RemoteError is a failure of the directory, the policy store or the
// fragment source.
type RemoteError struct {
	// Op names the failed call, e.g. "delete" or "resolve principal".
	Op string

	// Name is the record or principal the call was about.
	Name string

	Err error
}

func (e *RemoteError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemoteError reports whether err wraps a *RemoteError.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// failure renders err for a label annotation. Schema errors keep their
// plain message; remote errors show the underlying cause.
func failure(err error) string {
	var se *schema.Error
	if errors.As(err, &se) {
		return se.Message
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Err.Error()
	}
	return err.Error()
}
