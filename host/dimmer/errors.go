package dimmer

import "errors"

var (
	// ErrNotReady is returned by state writes before Setup completed
	ErrNotReady = errors.New("dimmer not initialized")

	// ErrFailed is returned once initialization failed for good
	ErrFailed = errors.New("dimmer marked failed")

	// ErrUpgradeFailed wraps every firmware upgrade failure
	ErrUpgradeFailed = errors.New("firmware upgrade failed")

	// ErrUnexpectedCommand is a dispatch failure for replies with an unknown command id
	ErrUnexpectedCommand = errors.New("unexpected command in reply")
)
