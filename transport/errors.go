package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a client-side API failure
type Kind string

const (
	// KindUnauthenticated means no credential is present locally
	KindUnauthenticated Kind = "unauthenticated"
	// KindInvalidCredentials means the backend rejected a login attempt
	KindInvalidCredentials Kind = "invalid_credentials"
	// KindAccountExists means signup hit an already-registered email
	KindAccountExists Kind = "account_exists"
	// KindAuthorizationRevoked means the backend rejected an attached credential
	KindAuthorizationRevoked Kind = "authorization_revoked"
	// KindTransport means a network-level failure (timeout, DNS, refused)
	KindTransport Kind = "transport"
	// KindValidation means the backend rejected the request content
	KindValidation Kind = "validation"
	// KindServer means a 5xx-class backend failure
	KindServer Kind = "server"
)

// Error is the failure type surfaced by the client layer. Message is safe
// to show to the user.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a transport Error of the given kind
func IsKind(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// ErrKind returns the kind of err, or empty string if err is not an Error
func ErrKind(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
