// Package common provides shared constants, types, and utilities
// used across the WhatsApp Desktop application.
package common

import "time"

// Application metadata.
const (
	// AppID is the unique identifier for the application.
	AppID = "com.wadesktop.app"
	// AppName is the display name of the application.
	AppName = "WhatsApp Desktop"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "wa-desktop"
)

// File names used by the application.
const (
	ConfigFileName      = "config.yaml"
	CredentialsFileName = ".credentials"
	LogFileName         = "wa-desktop.log"
	SocketFileName      = "wa-desktop.sock"
	AuthDirName         = "auth"
)

// Bridge channel names. The presentation side depends on these staying stable.
const (
	ChannelQRCode           = "qr-code"
	ChannelConnectionUpdate = "connection-update"
	ChannelNewMessage       = "new-message"
	ChannelSendMessage      = "send-message"
	ChannelGetContacts      = "get-contacts"
)

// Messaging network defaults.
const (
	// DefaultNamespace is the credential namespace used when none is configured.
	DefaultNamespace = "default"
	// DefaultUserDomain is appended to recipients that carry no domain qualifier.
	DefaultUserDomain = "@s.whatsapp.net"
	// MediaPlaceholder is shown for messages without any text content.
	MediaPlaceholder = "[Media Message]"
	// BridgeTokenAccount is the keyring entry holding the bridge capability token.
	BridgeTokenAccount = "bridge-token"
)

// Default timeouts and intervals.
const (
	// ReconnectDelay is the delay before a replacement session is started.
	ReconnectDelay = 2 * time.Second
	// RequestTimeout bounds a single bridge request/response exchange.
	RequestTimeout = 30 * time.Second
	// HandshakeTimeout bounds the bridge hello exchange.
	HandshakeTimeout = 5 * time.Second
	// NotificationTimeout is how long desktop notifications stay visible.
	NotificationTimeout = 5 * time.Second
)

// QR rendering defaults.
const (
	DefaultQRSize = 256
)
