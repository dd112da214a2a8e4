package notify

import (
	"context"
	"unicode/utf8"

	"github.com/yllada/wa-desktop/common"
)

const (
	queueSize = 16
	// maxBody is the longest message preview shown in a notification.
	maxBody = 120
)

// Sink forwards every event to the next sink and raises desktop
// notifications for received messages and terminal disconnects.
// Notifications are shown from Run; Publish never blocks on them.
type Sink struct {
	next     common.Sink
	notifier common.Notifier
	log      common.Logger
	queue    chan Notification
}

// NewSink decorates next. A nil notifier disables notifications.
func NewSink(next common.Sink, notifier common.Notifier, log common.Logger) *Sink {
	return &Sink{
		next:     next,
		notifier: notifier,
		log:      log,
		queue:    make(chan Notification, queueSize),
	}
}

// Publish implements common.Sink.
func (s *Sink) Publish(channel string, payload any) {
	s.next.Publish(channel, payload)
	if s.notifier == nil {
		return
	}

	n, ok := notificationFor(channel, payload)
	if !ok {
		return
	}
	select {
	case s.queue <- n:
	default:
		s.log.Debug("Notification queue full, dropping %q", n.Title)
	}
}

// Run shows queued notifications until ctx is done.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case n := <-s.queue:
			if err := s.show(n); err != nil {
				s.log.Warn("Failed to show notification: %v", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Sink) show(n Notification) error {
	if d, ok := s.notifier.(interface{ Show(Notification) error }); ok {
		return d.Show(n)
	}
	if n.Icon != "" {
		return s.notifier.NotifyWithIcon(n.Title, n.Message, n.Icon)
	}
	return s.notifier.Notify(n.Title, n.Message)
}

// notificationFor decides whether an event deserves a notification.
func notificationFor(channel string, payload any) (Notification, bool) {
	switch channel {
	case common.ChannelNewMessage:
		msg, ok := payload.(common.InboundMessage)
		if !ok {
			return Notification{}, false
		}
		title := msg.PushName
		if title == "" {
			title = common.FormatPhoneNumber(msg.Sender)
		}
		return Notification{Title: title, Message: truncate(msg.Text, maxBody), Type: NotificationInfo}, true

	case common.ChannelConnectionUpdate:
		u, ok := payload.(common.ConnectionUpdate)
		if !ok {
			return Notification{}, false
		}
		switch {
		case u.IsNewLogin:
			return Notification{
				Title:   "Device linked",
				Message: common.AppName + " is now linked to your phone.",
				Type:    NotificationSuccess,
			}, true
		case u.Connection == common.ConnectionClose && u.ShouldReconnect != nil && !*u.ShouldReconnect:
			reason := "credentials rejected"
			if u.LastDisconnect != nil {
				reason = u.LastDisconnect.Reason.String()
			}
			return Notification{
				Title:   "Session ended",
				Message: "Disconnected (" + reason + "). Reset the session and link the device again.",
				Type:    NotificationError,
			}, true
		}
	}
	return Notification{}, false
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
