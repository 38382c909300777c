// Package services defines the business logic for conversation intake and
// registration lookup. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrEmptyMessage is returned when a conversation turn arrives with an
	// empty message body.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a message exceeds the maximum configured
	// length limit.
	ErrTooLong = errors.New("message too long")

	// ErrRegistrationNotFound indicates that the requested registration does
	// not exist.
	ErrRegistrationNotFound = errors.New("registration not found")
)
