package messaging

import (
	"errors"
	"fmt"
)

// Error kinds carried on the wire in a failed Response.
const (
	KindNotReady         = "not_ready"
	KindUnknownOperation = "unknown_operation"
	KindInvalidPayload   = "invalid_payload"
	KindPersistence      = "persistence"
	KindProvider         = "provider"
	KindTransport        = "transport"
	KindInternal         = "internal"
)

var (
	ErrPersistence         = errors.New("persistence failure")
	ErrNotReady            = errors.New("target context is not ready")
	ErrTransport           = errors.New("message transport failure")
	ErrInternalConsistency = errors.New("internal consistency fault")
	ErrRemote              = errors.New("remote handler failed")

	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrBusClosed        = errors.New("bus is closed")
)

// Kinder is implemented by errors that know their wire kind.
type Kinder interface {
	Kind() string
}

// TransportError reports that a message could not be delivered or answered.
type TransportError struct {
	Target    string
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s/%s: %v", e.Target, e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Kind() string {
	return KindTransport
}

// NotReadyError is returned locally when the target was never confirmed ready.
type NotReadyError struct {
	Target    string
	Operation string
	Err       error
}

func (e *NotReadyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s is not ready for %s", e.Target, e.Operation)
	}
	return fmt.Sprintf("%s is not ready for %s: %v", e.Target, e.Operation, e.Err)
}

func (e *NotReadyError) Unwrap() error {
	return e.Err
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

func (e *NotReadyError) Kind() string {
	return KindNotReady
}

// RemoteError is a failure reported by the handler in another context.
type RemoteError struct {
	Operation string
	ErrKind   string
	Message   string
	Detail    string
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s failed remotely (%s): %s", e.Operation, e.ErrKind, e.Detail)
	}
	return fmt.Sprintf("%s failed remotely (%s): %s", e.Operation, e.ErrKind, e.Message)
}

func (e *RemoteError) Kind() string {
	return e.ErrKind
}

// Is matches ErrRemote and the sentinel that corresponds to the remote kind.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemote:
		return true
	case ErrNotReady:
		return e.ErrKind == KindNotReady
	case ErrUnknownOperation:
		return e.ErrKind == KindUnknownOperation
	case ErrInvalidPayload:
		return e.ErrKind == KindInvalidPayload
	case ErrPersistence:
		return e.ErrKind == KindPersistence
	}
	return false
}

// ErrorKind maps err to the kind reported on the wire.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var kinder Kinder
	if errors.As(err, &kinder) {
		return kinder.Kind()
	}

	switch {
	case errors.Is(err, ErrNotReady):
		return KindNotReady
	case errors.Is(err, ErrUnknownOperation):
		return KindUnknownOperation
	case errors.Is(err, ErrInvalidPayload):
		return KindInvalidPayload
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindInternal
	}
}
