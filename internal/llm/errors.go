package llm

import (
	"context"
	"errors"
	"fmt"
)

var ErrMalformedResponse = errors.New("malformed llm response")

type ErrorKind int

const (
	// KindTransient covers network failures, timeouts, rate limits and 5xx.
	KindTransient ErrorKind = iota
	// KindPermanent covers rejected requests and cancellation; never retried.
	KindPermanent
	// KindMalformed means the reply could not be parsed; retried.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindMalformed:
		return "malformed"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies err. Cancellation is permanent, an *Error reports its
// own kind and anything else is assumed transient.
func KindOf(err error) ErrorKind {
	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrMalformedResponse) {
		return KindMalformed
	}
	return KindTransient
}

// kindForStatus maps an HTTP status from a provider to an error kind.
func kindForStatus(code int) ErrorKind {
	switch {
	case code == 0, code == 408, code == 429, code >= 500:
		return KindTransient
	case code >= 400:
		return KindPermanent
	}
	return KindTransient
}
