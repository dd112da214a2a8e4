// Package common provides shared constants, types, and utilities
// used across the WhatsApp Desktop application.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetConfigDir returns the path to the application configuration directory.
// It creates the directory if it doesn't exist.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", WrapError(err, "failed to get home directory")
	}

	configDir := filepath.Join(homeDir, ".config", ConfigDirName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", WrapError(err, "failed to create config directory")
	}

	return configDir, nil
}

// GetDataDir returns the path to the application data directory.
func GetDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", WrapError(err, "failed to get home directory")
	}

	dataDir := filepath.Join(homeDir, ".local", "share", ConfigDirName)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", WrapError(err, "failed to create data directory")
	}

	return dataDir, nil
}

// GetRuntimeDir returns the directory holding the bridge socket.
// XDG_RUNTIME_DIR is preferred; the data directory is used otherwise.
func GetRuntimeDir() (string, error) {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		runtimeDir := filepath.Join(dir, ConfigDirName)
		if err := os.MkdirAll(runtimeDir, 0700); err != nil {
			return "", WrapError(err, "failed to create runtime directory")
		}
		return runtimeDir, nil
	}
	return GetDataDir()
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NormalizeRecipient turns a phone-number-like recipient into a full address.
// Recipients that already carry a domain qualifier are returned unchanged.
func NormalizeRecipient(recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", ErrInvalidRecipient
	}
	if strings.Contains(recipient, "@") {
		return recipient, nil
	}
	return recipient + DefaultUserDomain, nil
}

// FormatPhoneNumber formats an address for display, e.g.
// "15551234567@s.whatsapp.net" becomes "1 (555) 123-4567".
func FormatPhoneNumber(address string) string {
	if address == "" {
		return "Unknown"
	}
	number := strings.TrimSuffix(address, DefaultUserDomain)
	if len(number) < 11 || !isDigits(number[:11]) {
		return number
	}
	return fmt.Sprintf("%s (%s) %s-%s%s", number[:1], number[1:4], number[4:7], number[7:11], number[11:])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
