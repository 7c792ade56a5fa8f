package common

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to test an error against a kind.
var (
	ErrNotFound            = errors.New("not_found")
	ErrValidation          = errors.New("validation_error")
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")
	ErrUnsupportedOption   = errors.New("unsupported_option")
)

// Error carries an error kind together with the operation that failed and
// the uid or parameter that triggered the failure.
type Error struct {
	Kind    error
	Op      string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Subject != "" {
		msg += fmt.Sprintf(" (%s)", e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewNotFoundError(op, subject string) error {
	return &Error{Kind: ErrNotFound, Op: op, Subject: subject}
}

func NewValidationError(op, subject, reason string) error {
	return &Error{Kind: ErrValidation, Op: op, Subject: subject, Err: errors.New(reason)}
}

func NewUpstreamError(op, subject string, err error) error {
	return &Error{Kind: ErrUpstreamUnavailable, Op: op, Subject: subject, Err: err}
}

func NewUnsupportedOptionError(op, subject string) error {
	return &Error{Kind: ErrUnsupportedOption, Op: op, Subject: subject}
}

// Kind returns the kind of err, or nil if err does not carry one.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrValidation, ErrUpstreamUnavailable, ErrUnsupportedOption} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Subject returns the uid or parameter recorded on err, if any.
func Subject(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Subject
	}
	return ""
}
