package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies review failures for the view layer. Every kind
// except KindValidation reaches the network first.
type ErrorKind string

const (
	// KindValidation is a client-side precondition failure (empty
	// remark, unknown status). Never issued over the network and never
	// advances the session state machine.
	KindValidation ErrorKind = "validation"

	// KindNetwork is a transport or connectivity failure.
	KindNetwork ErrorKind = "network"

	// KindRejected means the backend answered with a non-success
	// status and an application message.
	KindRejected ErrorKind = "rejected"

	// KindDecode means the response body did not match the expected
	// shape. Decoding fails closed instead of propagating zero values.
	KindDecode ErrorKind = "decode"

	// KindNotFound means the backend has no data for the nomen.
	KindNotFound ErrorKind = "not_found"
)

// ReviewError is the error type surfaced by sources and sessions.
type ReviewError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ReviewError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *ReviewError) Unwrap() error { return e.Err }

// NewReviewError builds a ReviewError with a display message.
func NewReviewError(kind ErrorKind, message string, err error) *ReviewError {
	return &ReviewError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the error kind, or "" for non-review errors.
func KindOf(err error) ErrorKind {
	var re *ReviewError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsKind reports whether err is a ReviewError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
