package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Local admission errors. None of these ever reach the remote service.
var (
	ErrInvalidContact      = errors.New("invalid contact")
	ErrMissingCredential   = errors.New("missing credential")
	ErrMissingField        = errors.New("missing field")
	ErrInvalidIntent       = errors.New("invalid purchase intent")
	ErrMissingConfirmation = fmt.Errorf("%w: missing token confirmation", ErrInvalidIntent)
)

// ErrNotSubmitted marks a purchase failure raised before the submission
// call was sent. The wrapped error keeps its own kind.
var ErrNotSubmitted = errors.New("purchase not submitted")

// NotSubmitted tags err as raised before any submission was sent.
func NotSubmitted(err error) error {
	if err == nil || errors.Is(err, ErrNotSubmitted) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNotSubmitted, err)
}

// Transport-level failures: the remote call did not complete.
var (
	ErrRemoteTimeout = errors.New("remote timeout")
	ErrTransport     = errors.New("transport error")
)

// RemoteError is a business-level rejection reported by the remote service.
// Message and Body are kept verbatim.
type RemoteError struct {
	Op         string          `json:"op"`
	HTTPStatus int             `json:"http_status,omitempty"`
	Status     string          `json:"status,omitempty"`
	Code       string          `json:"code,omitempty"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Status
	}
	if msg == "" && len(e.Body) > 0 {
		msg = string(e.Body)
	}
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("remote %s: status=%d: %s", e.Op, e.HTTPStatus, msg)
	}
	return fmt.Sprintf("remote %s: %s", e.Op, msg)
}

// Reason returns the remote's own explanation for the rejection.
func (e *RemoteError) Reason() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Code != "":
		return e.Code
	case e.Status != "":
		return e.Status
	default:
		return string(e.Body)
	}
}

// Missing reports an absent required input.
func Missing(kind error, field string) error {
	return fmt.Errorf("%w: %s", kind, field)
}

// Kind names the error class of err. Unknown errors are "InternalError".
func Kind(err error) string {
	var re *RemoteError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidContact):
		return "InvalidContact"
	case errors.Is(err, ErrMissingCredential):
		return "MissingCredential"
	case errors.Is(err, ErrMissingField):
		return "MissingField"
	case errors.Is(err, ErrMissingConfirmation):
		return "MissingConfirmation"
	case errors.Is(err, ErrInvalidIntent):
		return "InvalidIntent"
	case errors.Is(err, ErrRemoteTimeout):
		return "RemoteTimeout"
	case errors.Is(err, ErrTransport):
		return "TransportError"
	case errors.As(err, &re):
		return "RemoteError"
	default:
		return "InternalError"
	}
}

// Retryable reports whether a failed read-only or refresh call may be
// reissued as-is. Submissions must never be retried on this basis alone.
func Retryable(err error) bool {
	return errors.Is(err, ErrRemoteTimeout) || errors.Is(err, ErrTransport)
}
