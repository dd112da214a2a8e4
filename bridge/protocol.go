// Package bridge carries events and requests between the shell process and
// the UI process over a Unix domain socket.
//
// Every message is a CBOR encoded Frame. A connection starts with a hello
// frame carrying the capability token; the server answers with hello on
// success or error before closing. Afterwards the server pushes event
// frames on the subscription channels and answers invoke frames on the
// request channels with result or error frames carrying the same ID.
//
// Subscriptions are broadcast without buffering for late subscribers. A
// peer that cannot keep up loses events rather than stalling the shell.
package bridge

import (
	"github.com/yllada/wa-desktop/common"
)

// FrameType discriminates frames.
type FrameType string

const (
	FrameHello  FrameType = "hello"
	FrameInvoke FrameType = "invoke"
	FrameResult FrameType = "result"
	FrameEvent  FrameType = "event"
	FrameError  FrameType = "error"
)

// Frame is the unit of communication on the bridge socket.
type Frame struct {
	Type    FrameType  `cbor:"type"`
	ID      string     `cbor:"id,omitempty"`
	Channel string     `cbor:"channel,omitempty"`
	Token   string     `cbor:"token,omitempty"`
	Payload RawMessage `cbor:"payload,omitempty"`
	Error   string     `cbor:"error,omitempty"`
}

// SendMessageArgs is the request payload of the send-message channel.
type SendMessageArgs struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

// SendResult is the response payload of the send-message channel.
type SendResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// subscriptionChannels are pushed from the shell to the UI.
var subscriptionChannels = map[string]bool{
	common.ChannelQRCode:           true,
	common.ChannelConnectionUpdate: true,
	common.ChannelNewMessage:       true,
}

// IsSubscriptionChannel reports whether channel is an event channel.
func IsSubscriptionChannel(channel string) bool {
	return subscriptionChannels[channel]
}
