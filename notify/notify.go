// Package notify shows desktop notifications for session events.
package notify

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/wa-desktop/common"
)

// D-Bus coordinates of the freedesktop notification service.
const (
	busName    = "org.freedesktop.Notifications"
	objectPath = "/org/freedesktop/Notifications"
	notifyCall = busName + ".Notify"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotificationInfo NotificationType = iota
	NotificationSuccess
	NotificationWarning
	NotificationError
)

// urgency returns the freedesktop urgency level (0 low, 1 normal, 2 critical).
func (t NotificationType) urgency() byte {
	switch t {
	case NotificationError:
		return 2
	case NotificationWarning:
		return 1
	default:
		return 0
	}
}

func (t NotificationType) icon() string {
	switch t {
	case NotificationWarning:
		return "dialog-warning"
	case NotificationError:
		return "dialog-error"
	default:
		return "mail-message-new"
	}
}

// Notification represents a system notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	Icon    string
}

// Desktop sends notifications over the session bus, falling back to
// notify-send when the bus is unavailable.
type Desktop struct {
	log common.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewDesktop creates a notifier. The bus is connected on first use.
func NewDesktop(log common.Logger) *Desktop {
	return &Desktop{log: log}
}

func (d *Desktop) bus() (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && d.conn.Connected() {
		return d.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	d.conn = conn
	return conn, nil
}

// Show displays n.
func (d *Desktop) Show(n Notification) error {
	icon := n.Icon
	if icon == "" {
		icon = n.Type.icon()
	}

	conn, err := d.bus()
	if err != nil {
		d.log.Debug("Session bus unavailable, using notify-send: %v", err)
		return showWithCommand(n, icon)
	}

	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(n.Type.urgency())}
	call := conn.Object(busName, objectPath).Call(notifyCall, 0,
		common.AppName, uint32(0), icon, n.Title, n.Message,
		[]string{}, hints, int32(common.NotificationTimeout.Milliseconds()))
	if call.Err != nil {
		return fmt.Errorf("sending notification: %w", call.Err)
	}
	return nil
}

func showWithCommand(n Notification, icon string) error {
	urgency := [...]string{"low", "normal", "critical"}[n.Type.urgency()]
	cmd := exec.Command("notify-send",
		"--app-name="+common.AppName,
		"--icon="+icon,
		"--urgency="+urgency,
		n.Title,
		n.Message,
	)
	return cmd.Run()
}

// Notify implements common.Notifier.
func (d *Desktop) Notify(title, message string) error {
	return d.Show(Notification{Title: title, Message: message})
}

// NotifyWithIcon implements common.Notifier.
func (d *Desktop) NotifyWithIcon(title, message, icon string) error {
	return d.Show(Notification{Title: title, Message: message, Icon: icon})
}

// Close releases the bus connection.
func (d *Desktop) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
