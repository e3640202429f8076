package logout

import (
	"errors"

	"github.com/platinummonkey/ssohub/pkg/tickets"
)

var (
	// ErrSessionNotFound means the session to log out does not exist. Execute
	// treats it as a no-op.
	ErrSessionNotFound = tickets.ErrSessionNotFound

	// ErrUnauthorizedService means the access strategy denies the relying
	// party. The service is skipped.
	ErrUnauthorizedService = errors.New("service is not authorized for single logout")

	// ErrInvalidLogoutURL means a logout URL failed validation. The URL is
	// skipped; other URLs and services proceed.
	ErrInvalidLogoutURL = errors.New("invalid logout url")

	// ErrDeliveryFailure means a back-channel send failed, timed out or got a
	// non-success response. It is recorded as FAILURE on the context.
	ErrDeliveryFailure = errors.New("logout delivery failed")

	// ErrUnexpectedDispatch wraps any other failure, including panics, while
	// processing one service.
	ErrUnexpectedDispatch = errors.New("unexpected error dispatching logout")

	// ErrRegistryUnavailable is the only error Execute returns: the session
	// registry could not be consulted.
	ErrRegistryUnavailable = errors.New("session registry unavailable")
)
