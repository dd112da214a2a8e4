// Package common provides shared constants, types, and utilities
// used across the WhatsApp Desktop application.
package common

import "context"

// ProtocolClient represents one socket session with the messaging network.
// This abstraction keeps the supervisor independent of the protocol library.
type ProtocolClient interface {
	// Subscribe registers a handler for client events. Events are delivered
	// in emission order. The returned function removes the handler.
	Subscribe(handler func(Event)) (unsubscribe func())
	// Connect opens the socket.
	Connect(ctx context.Context) error
	// Disconnect closes the socket.
	Disconnect()
	// RequestPairingCode asks for a phone-number pairing code.
	RequestPairingCode(ctx context.Context, phoneNumber string) (string, error)
	// SendText sends a text message to a fully-qualified address.
	SendText(ctx context.Context, address, text string) error
	// Contacts returns the address book known to the client.
	Contacts(ctx context.Context) ([]Contact, error)
}

// ClientOptions are passed to a ClientFactory when a session is created.
type ClientOptions struct {
	Version         Version
	Credentials     Credentials
	SyncFullHistory bool
}

// ClientFactory constructs protocol clients.
type ClientFactory interface {
	New(ctx context.Context, opts ClientOptions) (ProtocolClient, error)
}

// Credentials is the opaque authentication state loaded from a CredentialStore.
type Credentials interface {
	// Registered reports whether the credentials belong to a paired account.
	Registered() bool
}

// SaveFunc persists updated credentials.
type SaveFunc func(ctx context.Context) error

// CredentialStore defines the interface for credential storage.
// Implementations keep one credential set per namespace.
type CredentialStore interface {
	// Load reads the credentials of a namespace, creating empty ones if needed.
	Load(ctx context.Context, namespace string) (Credentials, SaveFunc, error)
	// Location returns where the namespace is persisted.
	Location(namespace string) string
	// Reset removes all credential material of a namespace.
	Reset(namespace string) error
}

// VersionResolver looks up the protocol version to announce.
type VersionResolver interface {
	Resolve(ctx context.Context) (Version, error)
}

// Sink receives events published on a named channel. Delivery is
// fire-and-forget: a sink never blocks the publisher and never replays.
type Sink interface {
	Publish(channel string, payload any)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(channel string, payload any)

// Publish calls f(channel, payload).
func (f SinkFunc) Publish(channel string, payload any) {
	f(channel, payload)
}

// Notifier defines the interface for sending notifications.
type Notifier interface {
	// Notify sends a notification with the given title and message.
	Notify(title, message string) error
	// NotifyWithIcon sends a notification with a custom icon.
	NotifyWithIcon(title, message, icon string) error
}

// Logger defines the interface for structured logging.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...interface{})
	// Info logs an informational message.
	Info(msg string, args ...interface{})
	// Warn logs a warning message.
	Warn(msg string, args ...interface{})
	// Error logs an error message.
	Error(msg string, args ...interface{})
}
