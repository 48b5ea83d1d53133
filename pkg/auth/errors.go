package auth

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrUnsupportedAuth   = errors.New("unsupported auth type")
)

// AuthenticationError reports that credentials could not be obtained or
// were rejected. Requests are never sent after one of these.
type AuthenticationError struct {
	Scheme string
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s authentication failed: %s: %v", e.Scheme, e.Reason, e.Err)
	}

	return fmt.Sprintf("%s authentication failed: %s", e.Scheme, e.Reason)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// IsAuthenticationError reports whether err carries an AuthenticationError.
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError

	return errors.As(err, &authErr)
}
