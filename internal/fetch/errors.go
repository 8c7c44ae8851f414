package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure.
type Kind int

const (
	// KindTransport is a network-level failure: dial, TLS, timeout or reset.
	KindTransport Kind = iota
	// KindTransient is a retryable status that outlived the transport's own retries.
	KindTransient
	// KindNotFound is a 404 for an address that does not exist.
	KindNotFound
	// KindStatus is any other non-2xx status.
	KindStatus
	// KindDecode is a 2xx response whose body is not JSON.
	KindDecode
	// KindInvalid is a request that could not be built.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not found"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error represents an error during URL fetching.
type Error struct {
	URL        string
	Kind       Kind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the backoff loop should try the request again.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport || e.Kind == KindTransient
}

// IsNotFound reports whether err is a 404 from the remote.
func IsNotFound(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindNotFound
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Retryable()
}
