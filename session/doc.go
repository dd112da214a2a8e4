// Package session supervises the connection to the messaging network.
//
// The package owns the single live protocol client of the application and
// turns its raw events into the normalized stream published to the bridge:
//
//   - Lifecycle: QR issuance, pairing codes, connecting, open and close
//   - Messages: live messages from other accounts, with their text extracted
//   - Send passthrough: recipient normalization and error classification
//
// # Architecture
//
// The package is organized around two types:
//
//   - Supervisor: Owns the current Session, applies the reconnect policy and
//     exposes Send and Contacts to the bridge
//   - Session: One protocol client instance with its event queue and phase
//
// # Reconnect Flow
//
// When a Session reports a close, the Supervisor:
//
//  1. Forwards the close to the sink with its reconnect decision
//  2. Retires the Session: late events are dropped, the handler is removed
//     and the client is disconnected
//  3. Waits for the reconnect delay
//  4. Builds a new Session with the same configuration
//
// Closures caused by a logged-out account or a corrupted session are
// terminal. The Supervisor then halts until the credentials are reset.
//
// # Thread Safety
//
// Events of a Session are handled on one goroutine in arrival order.
// Supervisor methods are safe for concurrent use.
package session
