// Package config provides configuration management for WhatsApp Desktop.
// It handles loading, saving, and managing application settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/yllada/wa-desktop/common"
)

// Config represents the application configuration.
// All settings are persisted to a YAML file in the user's config directory.
type Config struct {
	// PairingPhoneNumber enables phone-number pairing in addition to QR login.
	// Digits only, including the country code.
	PairingPhoneNumber string `yaml:"pairing_phone_number"`
	// Namespace selects the credential set to use.
	Namespace string `yaml:"namespace"`
	// AuthDir overrides where credential databases are kept.
	AuthDir string `yaml:"auth_dir"`
	// SocketPath overrides the bridge socket location.
	SocketPath string `yaml:"socket_path"`
	// ReconnectDelay is the pause before a replacement session is started.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	// ShowNotifications enables desktop notifications for messages and logouts.
	ShowNotifications bool `yaml:"show_notifications"`
	// QRSize is the edge length in pixels of rendered QR images.
	QRSize int `yaml:"qr_size"`
	// LaunchUI starts the terminal UI process when the shell runs on a terminal.
	LaunchUI bool `yaml:"launch_ui"`
	// LogLevel sets the minimum log level: "debug", "info", "warn" or "error".
	LogLevel string `yaml:"log_level"`

	path string
}

// DefaultConfig returns the default configuration.
// These are sensible defaults for most users.
func DefaultConfig() *Config {
	return &Config{
		Namespace:         common.DefaultNamespace,
		ReconnectDelay:    common.ReconnectDelay,
		ShowNotifications: true,
		QRSize:            common.DefaultQRSize,
		LaunchUI:          true,
		LogLevel:          "info",
	}
}

// Load loads the configuration from the default config file.
// If the file doesn't exist, it creates one with default values.
func Load() (*Config, error) {
	configPath, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom loads the configuration from path, creating it with default values
// when it doesn't exist.
func LoadFrom(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.path = configPath
		if err := cfg.Save(); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", common.ErrConfigLoad, configPath, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true) // Strict validation: reject unknown fields

	config := DefaultConfig()
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", common.ErrConfigLoad, configPath, err)
	}
	config.path = configPath

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrConfigLoad, err)
	}

	return config, nil
}

// validate verifies that configuration values are valid.
// Out of range values fall back to their defaults.
func (c *Config) validate() error {
	defaults := DefaultConfig()

	c.PairingPhoneNumber = strings.TrimPrefix(strings.TrimSpace(c.PairingPhoneNumber), "+")
	for _, r := range c.PairingPhoneNumber {
		if r < '0' || r > '9' {
			return fmt.Errorf("pairing_phone_number must contain digits only, got %q", c.PairingPhoneNumber)
		}
	}

	if c.Namespace == "" {
		c.Namespace = defaults.Namespace
	}
	if strings.ContainsAny(c.Namespace, `/\`) || c.Namespace == "." || c.Namespace == ".." {
		return fmt.Errorf("namespace %q must be a plain name", c.Namespace)
	}
	if c.ReconnectDelay < 0 {
		c.ReconnectDelay = defaults.ReconnectDelay
	}
	if c.QRSize < 64 || c.QRSize > 1024 {
		c.QRSize = defaults.QRSize
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		c.LogLevel = defaults.LogLevel
	}
	return nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Save saves the configuration to the file.
// The file is replaced atomically.
func (c *Config) Save() error {
	configPath := c.path
	if configPath == "" {
		var err error
		if configPath, err = DefaultPath(); err != nil {
			return err
		}
		c.path = configPath
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("%w: creating config directory: %w", common.ErrConfigSave, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: serializing: %w", common.ErrConfigSave, err)
	}

	pendingFile, err := renameio.NewPendingFile(configPath, renameio.WithPermissions(0600))
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrConfigSave, err)
	}
	defer pendingFile.Cleanup()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("%w: writing: %w", common.ErrConfigSave, err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("%w: replacing %s: %w", common.ErrConfigSave, configPath, err)
	}

	return nil
}

// AuthLocation returns the directory holding credential databases.
func (c *Config) AuthLocation() (string, error) {
	if c.AuthDir != "" {
		return c.AuthDir, nil
	}
	dataDir, err := common.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, common.AuthDirName), nil
}

// BridgeSocket returns the Unix socket path of the bridge.
func (c *Config) BridgeSocket() (string, error) {
	if c.SocketPath != "" {
		return c.SocketPath, nil
	}
	runtimeDir, err := common.GetRuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, common.SocketFileName), nil
}

// DefaultPath returns the default configuration file location.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", common.ConfigDirName, common.ConfigFileName), nil
}
