// Package common provides shared constants, types, utilities, and interfaces
// used throughout the WhatsApp Desktop application.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: Application-wide constants like channel names, file names, and timeouts
//   - Errors: Sentinel errors for consistent error handling across packages
//   - Interfaces: Contracts for the protocol client, credential storage, sinks, and logging
//   - Events: Protocol-neutral lifecycle and message records
//   - Logger: Structured logging with multiple output destinations
//   - Utils: Common utility functions for directories and recipient addresses
//
// # Usage
//
// Import the package to access shared functionality:
//
//	import "github.com/yllada/wa-desktop/common"
//
//	// Use constants
//	sink.Publish(common.ChannelQRCode, payload)
//
//	// Use logger
//	common.LogInfo("Starting session for %s", namespace)
//
//	// Check errors
//	if errors.Is(err, common.ErrNotConnected) {
//	    // Tell the UI to wait for the connection
//	}
package common
