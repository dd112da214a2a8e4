// Package cli provides command-line interface functionality for WhatsApp
// Desktop. Commands talk to a running shell over the bridge socket, so
// messages can be sent and events followed from scripts without the UI.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/yllada/wa-desktop/bridge"
	"github.com/yllada/wa-desktop/common"
)

// CLI represents the command-line interface.
type CLI struct {
	client *bridge.Client
	out    io.Writer
}

// New connects to the shell listening on socketPath.
func New(ctx context.Context, socketPath, token string, log common.Logger) (*CLI, error) {
	client, err := bridge.Dial(ctx, socketPath, token, log)
	if err != nil {
		return nil, fmt.Errorf("failed to reach WhatsApp Desktop (is it running?): %w", err)
	}
	return NewWithClient(client, os.Stdout), nil
}

// NewWithClient wraps an existing bridge connection.
func NewWithClient(client *bridge.Client, out io.Writer) *CLI {
	return &CLI{client: client, out: out}
}

// Close disconnects from the shell.
func (c *CLI) Close() error {
	return c.client.Close()
}

// Send sends a text message and reports the outcome.
func (c *CLI) Send(ctx context.Context, recipient, message string) error {
	if message == "" {
		return fmt.Errorf("message cannot be empty")
	}

	result, err := c.client.SendMessage(ctx, recipient, message)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("send failed: %s", result.Error)
	}

	fmt.Fprintf(c.out, "✓ Message sent to %s\n", common.FormatPhoneNumber(recipient))
	return nil
}

// Contacts lists the address book.
func (c *CLI) Contacts(ctx context.Context) error {
	contacts, err := c.client.GetContacts(ctx)
	if err != nil {
		return err
	}

	if len(contacts) == 0 {
		fmt.Fprintln(c.out, "No contacts available.")
		fmt.Fprintln(c.out, "Contacts appear once the device is linked and connected.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPHONE\tPUSH NAME\tBUSINESS")
	fmt.Fprintln(w, "----\t-----\t---------\t--------")

	for _, contact := range contacts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			orDash(contact.Name),
			common.FormatPhoneNumber(contact.ID),
			orDash(contact.PushName),
			orDash(contact.BusinessName))
	}

	return w.Flush()
}

// Watch prints bridge events until ctx is cancelled or the shell exits.
func (c *CLI) Watch(ctx context.Context) error {
	c.client.OnQRCode(func(qr string) {
		fmt.Fprintf(c.out, "[qr] new QR code (%d bytes), scan it in the UI\n", len(qr))
	})
	c.client.OnConnectionUpdate(func(u common.ConnectionUpdate) {
		fmt.Fprintln(c.out, describeUpdate(u))
	})
	c.client.OnMessage(func(m common.InboundMessage) {
		fmt.Fprintf(c.out, "[message] %s: %s\n", sender(m), m.Text)
	})
	defer func() {
		c.client.RemoveAllListeners(common.ChannelQRCode)
		c.client.RemoveAllListeners(common.ChannelConnectionUpdate)
		c.client.RemoveAllListeners(common.ChannelNewMessage)
	}()

	fmt.Fprintln(c.out, "Watching events, press Ctrl+C to stop.")
	select {
	case <-ctx.Done():
		return nil
	case <-c.client.Done():
		return common.ErrBridgeClosed
	}
}

// Reset deletes the stored credentials of namespace so the next start
// pairs a new device.
func Reset(store common.CredentialStore, namespace string, out io.Writer) error {
	location := store.Location(namespace)
	if err := store.Reset(namespace); err != nil {
		return fmt.Errorf("failed to reset credentials: %w", err)
	}
	fmt.Fprintf(out, "✓ Removed credentials at %s\n", location)
	return nil
}

func describeUpdate(u common.ConnectionUpdate) string {
	switch {
	case u.PairingCode != "":
		return "[pairing] code " + u.PairingCode
	case u.IsNewLogin:
		return "[connection] device linked"
	case u.Connection == common.ConnectionClose:
		line := "[connection] close"
		if d := u.LastDisconnect; d != nil {
			line += fmt.Sprintf(": %s (%d)", d.Reason, int(d.Reason))
		}
		if u.ShouldReconnect != nil {
			if *u.ShouldReconnect {
				line += ", reconnecting"
			} else {
				line += ", not reconnecting"
			}
		}
		return line
	case u.Connection != "":
		return "[connection] " + string(u.Connection)
	case u.QR != "":
		return "[connection] waiting for scan"
	default:
		return "[connection] update"
	}
}

func sender(m common.InboundMessage) string {
	name := common.FormatPhoneNumber(m.Sender)
	if m.PushName != "" {
		name += " (" + m.PushName + ")"
	}
	return name
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// PrintHelp prints CLI usage help.
func PrintHelp() {
	fmt.Println(`WhatsApp Desktop - Command Line Interface

Usage:
  wa-desktop [OPTIONS]

Options:
  --version             Show version and exit
  --verbose             Enable verbose logging
  --config PATH         Use an alternative configuration file
  --headless            Run the shell without launching the UI
  --tui                 Run the terminal UI against a running shell
  --pair NUMBER         Request a pairing code for NUMBER instead of scanning only
  --send NUMBER         Send a message (requires --message)
  --message TEXT        Message text for --send
  --contacts            List contacts
  --watch               Print events from a running shell
  --reset               Delete stored credentials
  --help                Show this help message

Examples:
  wa-desktop
  wa-desktop --headless --pair 15551234567
  wa-desktop --send 15551234567 --message "Hello"
  wa-desktop --contacts
  wa-desktop --watch

Notes:
  - --send, --contacts and --watch need a running shell
  - After a logout run --reset and link the device again`)
}
