package domain

import "errors"

var (
	// ErrNoCandidate is returned when neither scraping nor search produced a
	// usable product record. Modeled as a valid outcome, not a fault.
	ErrNoCandidate = errors.New("could not extract product details")

	// ErrItemNotFound is returned when a shopping list item does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrPermissionDenied is returned when a user tries to mutate an item
	// added by someone else. Raised distinctly from ErrItemNotFound so
	// callers can present a specific message.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidRequest is returned when request parameters are invalid.
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrSessionMiss is returned when session data is not found in the store.
	ErrSessionMiss = errors.New("session data not found")

	// ErrAutomationFailed is returned when the downstream ordering automation
	// could not be triggered; the ordered transition must not commit.
	ErrAutomationFailed = errors.New("ordering automation failed")
)
