// Package common provides shared constants, types, and utilities
// used across the WhatsApp Desktop application.
package common

import "errors"

// Sentinel errors for session and bridge operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Session errors.
	ErrNotConnected      = errors.New("not connected")
	ErrTransportFailure  = errors.New("transport failure")
	ErrPairingRequest    = errors.New("pairing code request failed")
	ErrQRRender          = errors.New("qr render failed")
	ErrTerminalSession   = errors.New("session terminated: credentials invalid")
	ErrInvalidRecipient  = errors.New("recipient cannot be empty")
	ErrInvalidCredential = errors.New("invalid credential state")

	// Bridge errors.
	ErrUnauthorized   = errors.New("bridge token rejected")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrBridgeClosed   = errors.New("bridge connection closed")

	// Configuration errors.
	ErrConfigLoad = errors.New("failed to load configuration")
	ErrConfigSave = errors.New("failed to save configuration")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
