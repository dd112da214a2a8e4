// Package common provides shared constants, types, and utilities
// used across the WhatsApp Desktop application.
// This file contains the protocol-neutral event records that flow from the
// protocol client through the supervisor to the bridge.
package common

import (
	"fmt"
	"time"
)

// ConnectionState is the connection field of a lifecycle update.
type ConnectionState string

const (
	ConnectionConnecting ConnectionState = "connecting"
	ConnectionOpen       ConnectionState = "open"
	ConnectionClose      ConnectionState = "close"
)

// DisconnectReason is the classified status code of a closed connection.
type DisconnectReason int

const (
	ReasonLoggedOut           DisconnectReason = 401
	ReasonForbidden           DisconnectReason = 403
	ReasonConnectionLost      DisconnectReason = 408
	ReasonTimedOut            DisconnectReason = 408
	ReasonMultideviceMismatch DisconnectReason = 411
	ReasonConnectionClosed    DisconnectReason = 428
	ReasonConnectionReplaced  DisconnectReason = 440
	ReasonBadSession          DisconnectReason = 500
	ReasonUnavailableService  DisconnectReason = 503
	ReasonRestartRequired     DisconnectReason = 515
)

// String returns a human-readable name for the reason.
func (r DisconnectReason) String() string {
	switch r {
	case ReasonLoggedOut:
		return "logged out"
	case ReasonForbidden:
		return "forbidden"
	case ReasonConnectionLost:
		return "connection lost"
	case ReasonMultideviceMismatch:
		return "multi-device mismatch"
	case ReasonConnectionClosed:
		return "connection closed"
	case ReasonConnectionReplaced:
		return "connection replaced"
	case ReasonBadSession:
		return "bad session"
	case ReasonUnavailableService:
		return "service unavailable"
	case ReasonRestartRequired:
		return "restart required"
	default:
		return fmt.Sprintf("status %d", int(r))
	}
}

// Terminal reports whether the reason invalidates the stored credentials.
// Terminal closures must not be retried until the credentials are reset.
func (r DisconnectReason) Terminal() bool {
	return r == ReasonLoggedOut || r == ReasonBadSession
}

// Disconnect describes why a connection closed.
type Disconnect struct {
	Reason  DisconnectReason `json:"statusCode"`
	Message string           `json:"message,omitempty"`
	Date    time.Time        `json:"date"`
}

// ConnectionUpdate is a lifecycle event. A single update may carry several
// artifacts at once, e.g. a connection state together with a QR payload.
type ConnectionUpdate struct {
	Connection      ConnectionState `json:"connection,omitempty"`
	QR              string          `json:"qr,omitempty"`
	PairingCode     string          `json:"pairingCode,omitempty"`
	IsNewLogin      bool            `json:"isNewLogin,omitempty"`
	LastDisconnect  *Disconnect     `json:"lastDisconnect,omitempty"`
	ShouldReconnect *bool           `json:"shouldReconnect,omitempty"`
}

// MessageContent holds the text candidates of a received message.
type MessageContent struct {
	Conversation string `json:"conversation,omitempty"`
	ExtendedText string `json:"extendedText,omitempty"`
	// Media is the media kind ("image", "video", ...) or empty.
	Media string `json:"media,omitempty"`
}

// InboundMessage is a normalized received message.
type InboundMessage struct {
	ID        string         `json:"id"`
	Chat      string         `json:"chat"`
	Sender    string         `json:"sender"`
	PushName  string         `json:"pushName,omitempty"`
	FromMe    bool           `json:"fromMe"`
	Timestamp time.Time      `json:"timestamp"`
	Content   MessageContent `json:"content"`
	Text      string         `json:"text"`
}

// UpsertType tells live deliveries apart from history sync batches.
type UpsertType string

const (
	UpsertNotify UpsertType = "notify"
	UpsertAppend UpsertType = "append"
)

// MessagesUpsert is a batch of received messages.
type MessagesUpsert struct {
	Type     UpsertType
	Messages []InboundMessage
}

// EventKind discriminates protocol client events.
type EventKind int

const (
	EventCredentialsUpdated EventKind = iota
	EventLifecycle
	EventMessages
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventCredentialsUpdated:
		return "creds.update"
	case EventLifecycle:
		return "connection.update"
	case EventMessages:
		return "messages.upsert"
	default:
		return "unknown"
	}
}

// Event is emitted by a ProtocolClient to its subscribers.
type Event struct {
	Kind     EventKind
	Update   *ConnectionUpdate
	Messages *MessagesUpsert
}

// Contact is an address book entry.
type Contact struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	PushName     string `json:"pushName,omitempty"`
	BusinessName string `json:"businessName,omitempty"`
}

// Version is a protocol client version triple.
type Version [3]uint32

// IsZero reports whether the version is unset.
func (v Version) IsZero() bool {
	return v == Version{}
}

// String returns the dotted representation.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}
