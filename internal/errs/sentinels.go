// Package errs contains sentinel errors shared by storage, services and transport.
package errs

import "github.com/pkg/errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a webhook request with a missing or wrong shared secret.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnverifiedEvent indicates a payment event whose signature was not verified.
	ErrUnverifiedEvent = errors.New("unverified payment event")

	// ErrPackageNotRegistrable indicates a package without a tracking number.
	ErrPackageNotRegistrable = errors.New("package has no tracking number")

	// ErrUnknownTrackingNumber indicates a webhook item that resolves to no package.
	ErrUnknownTrackingNumber = errors.New("unknown tracking number")

	// ErrGatewayUnavailable indicates a transport failure or timeout talking to the carrier gateway.
	ErrGatewayUnavailable = errors.New("carrier gateway unavailable")

	// ErrInvalidStatus indicates a status value outside the canonical vocabulary.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrTransitionRejected indicates the state machine refused a requested transition.
	ErrTransitionRejected = errors.New("status transition rejected")
)
