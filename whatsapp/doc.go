// Package whatsapp adapts the whatsmeow library to the protocol client
// contracts of the application.
//
//   - Store: SQLite credential databases, one per namespace
//   - Client: one whatsmeow connection translated into common.Event values
//   - Factory: builds Clients for the session supervisor
//   - VersionResolver: looks up the current web client version
//
// whatsmeow's own reconnect logic is disabled; reconnecting is the job of
// the session supervisor.
package whatsapp
