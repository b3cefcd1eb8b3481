// Package sizererrors contains the generic errors shared by the discovery, encoding and dispatch layers.
//
// Errors are wrapped with github.com/pkg/errors as they travel up the stack; callers inspect them with errors.As
// rather than comparing values. If multiple errors occur in some function (e.g., several ambiguous sample ids or
// several failed jobs), that function should return an error of type multierror.Error from package
// github.com/hashicorp/go-multierror that encapsulates those individual errors.
package sizererrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "chunkSize"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", fmt.Sprint(err.Value), err.Name)
	} else {
		return fmt.Sprintf("value %q is invalid for field %q; %s", fmt.Sprint(err.Value), err.Name, err.Message)
	}
}

// ErrNotFound is returned whenever some storage location doesn't exist, e.g. a bucket or a local directory.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "bucket" or "directory"
	Value   string // Resource name, e.g., "s3://bucket/delivery/siz/"
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrListing is returned when a storage location could not be listed.
// It is never retried by the discovery layer.
type ErrListing struct {
	Prefix string
	Err    error
}

func (err *ErrListing) Error() string {
	return fmt.Sprintf("error listing %s: %s", err.Prefix, err.Err)
}

func (err *ErrListing) Unwrap() error {
	return err.Err
}

// ErrTransient marks a failure that may succeed if the operation is repeated,
// e.g. backend throttling or a dropped connection.
type ErrTransient struct {
	Op  string
	Err error
}

func (err *ErrTransient) Error() string {
	if err.Op == "" {
		return fmt.Sprintf("transient error: %s", err.Err)
	}
	return fmt.Sprintf("transient error during %s: %s", err.Op, err.Err)
}

func (err *ErrTransient) Unwrap() error {
	return err.Err
}

// ErrPermanentFailure is returned for a sample whose job could not be submitted or completed,
// either because the failure was not retryable or because all attempts were used up.
type ErrPermanentFailure struct {
	SampleID string
	Attempts int
	Reason   string
	Err      error
}

func (err *ErrPermanentFailure) Error() string {
	s := fmt.Sprintf("sample %s failed permanently after %d attempt(s)", err.SampleID, err.Attempts)
	if err.Reason != "" {
		s += fmt.Sprintf(" - reason: %s", err.Reason)
	}
	if err.Err != nil {
		s += fmt.Sprintf(": %s", err.Err)
	}
	return s
}

func (err *ErrPermanentFailure) Unwrap() error {
	return err.Err
}

// Transient wraps err in an ErrTransient. A nil err returns nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&ErrTransient{Op: op, Err: err})
}

// IsTransient reports whether any error in the chain is an ErrTransient.
func IsTransient(err error) bool {
	var e *ErrTransient
	return errors.As(err, &e)
}

// IsNotFound reports whether any error in the chain is an ErrNotFound.
func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}
