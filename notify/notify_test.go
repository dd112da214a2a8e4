package notify

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yllada/wa-desktop/common"
)

type shown struct {
	title, message, icon string
}

type fakeNotifier struct {
	mu    sync.Mutex
	shown []shown
	seen  chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{seen: make(chan struct{}, 16)}
}

func (f *fakeNotifier) Notify(title, message string) error {
	return f.NotifyWithIcon(title, message, "")
}

func (f *fakeNotifier) NotifyWithIcon(title, message, icon string) error {
	f.mu.Lock()
	f.shown = append(f.shown, shown{title, message, icon})
	f.mu.Unlock()
	f.seen <- struct{}{}
	return nil
}

func testLogger() common.Logger {
	return common.NewLogger(io.Discard, common.LevelDebug)
}

func boolPtr(b bool) *bool { return &b }

func TestNotificationFor(t *testing.T) {
	tests := []struct {
		name      string
		channel   string
		payload   any
		wantOK    bool
		wantTitle string
		wantType  NotificationType
	}{
		{
			name:      "message with push name",
			channel:   common.ChannelNewMessage,
			payload:   common.InboundMessage{PushName: "Alice", Sender: "15551234567@s.whatsapp.net", Text: "hi"},
			wantOK:    true,
			wantTitle: "Alice",
		},
		{
			name:      "message without push name",
			channel:   common.ChannelNewMessage,
			payload:   common.InboundMessage{Sender: "15551234567@s.whatsapp.net", Text: "hi"},
			wantOK:    true,
			wantTitle: "1 (555) 123-4567",
		},
		{
			name:    "qr code",
			channel: common.ChannelQRCode,
			payload: "data:image/png;base64,AAAA",
		},
		{
			name:    "reconnectable close",
			channel: common.ChannelConnectionUpdate,
			payload: common.ConnectionUpdate{Connection: common.ConnectionClose, ShouldReconnect: boolPtr(true)},
		},
		{
			name:    "terminal close",
			channel: common.ChannelConnectionUpdate,
			payload: common.ConnectionUpdate{
				Connection:      common.ConnectionClose,
				LastDisconnect:  &common.Disconnect{Reason: common.ReasonLoggedOut},
				ShouldReconnect: boolPtr(false),
			},
			wantOK:    true,
			wantTitle: "Session ended",
			wantType:  NotificationError,
		},
		{
			name:      "new login",
			channel:   common.ChannelConnectionUpdate,
			payload:   common.ConnectionUpdate{IsNewLogin: true},
			wantOK:    true,
			wantTitle: "Device linked",
			wantType:  NotificationSuccess,
		},
		{
			name:    "open",
			channel: common.ChannelConnectionUpdate,
			payload: common.ConnectionUpdate{Connection: common.ConnectionOpen},
		},
		{
			name:    "wrong payload type",
			channel: common.ChannelNewMessage,
			payload: "not a message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := notificationFor(tt.channel, tt.payload)
			if ok != tt.wantOK {
				t.Fatalf("notificationFor() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if n.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", n.Title, tt.wantTitle)
			}
			if n.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", n.Type, tt.wantType)
			}
		})
	}
}

func TestTerminalNotificationNamesReason(t *testing.T) {
	n, _ := notificationFor(common.ChannelConnectionUpdate, common.ConnectionUpdate{
		Connection:      common.ConnectionClose,
		LastDisconnect:  &common.Disconnect{Reason: common.ReasonBadSession},
		ShouldReconnect: boolPtr(false),
	})
	if !strings.Contains(n.Message, "bad session") {
		t.Errorf("Message = %q, want the disconnect reason", n.Message)
	}
}

func TestSink_ForwardsAndNotifies(t *testing.T) {
	var mu sync.Mutex
	var forwarded []string
	next := common.SinkFunc(func(channel string, _ any) {
		mu.Lock()
		forwarded = append(forwarded, channel)
		mu.Unlock()
	})

	notifier := newFakeNotifier()
	s := NewSink(next, notifier, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	s.Publish(common.ChannelQRCode, "qr")
	s.Publish(common.ChannelNewMessage, common.InboundMessage{PushName: "Bob", Text: "ping"})

	select {
	case <-notifier.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("no notification shown")
	}

	mu.Lock()
	if len(forwarded) != 2 {
		t.Errorf("forwarded %v, want both events", forwarded)
	}
	mu.Unlock()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.shown) != 1 || notifier.shown[0].title != "Bob" || notifier.shown[0].message != "ping" {
		t.Errorf("shown = %+v", notifier.shown)
	}
}

func TestSink_DropsWhenQueueFull(t *testing.T) {
	s := NewSink(common.SinkFunc(func(string, any) {}), newFakeNotifier(), testLogger())

	// Nothing drains the queue; Publish must still return.
	for i := 0; i < queueSize*2; i++ {
		s.Publish(common.ChannelNewMessage, common.InboundMessage{PushName: "x", Text: "y"})
	}
	if got := len(s.queue); got != queueSize {
		t.Errorf("queued %d notifications, want %d", got, queueSize)
	}
}

func TestSink_NilNotifier(t *testing.T) {
	var count int
	s := NewSink(common.SinkFunc(func(string, any) { count++ }), nil, testLogger())

	s.Publish(common.ChannelNewMessage, common.InboundMessage{PushName: "x"})

	if count != 1 {
		t.Errorf("forwarded %d events, want 1", count)
	}
	if len(s.queue) != 0 {
		t.Error("nil notifier should not queue notifications")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 8, "this is…"},
		{"héllo wörld", 6, "héllo…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestNotificationType_Urgency(t *testing.T) {
	tests := map[NotificationType]byte{
		NotificationInfo:    0,
		NotificationSuccess: 0,
		NotificationWarning: 1,
		NotificationError:   2,
	}
	for typ, want := range tests {
		if got := typ.urgency(); got != want {
			t.Errorf("urgency(%d) = %d, want %d", typ, got, want)
		}
	}
}
