package whatsapp

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/yllada/wa-desktop/common"
)

func testClient() *Client {
	return &Client{
		log:         common.NewLogger(io.Discard, common.LevelDebug),
		subscribers: make(map[int]func(common.Event)),
	}
}

func TestTranslate_Lifecycle(t *testing.T) {
	tests := []struct {
		name       string
		event      interface{}
		connection common.ConnectionState
		reason     common.DisconnectReason
	}{
		{"connected", &events.Connected{}, common.ConnectionOpen, 0},
		{"disconnected", &events.Disconnected{}, common.ConnectionClose, common.ReasonConnectionClosed},
		{"logged out", &events.LoggedOut{Reason: events.ConnectFailureLoggedOut}, common.ConnectionClose, common.ReasonLoggedOut},
		{"stream replaced", &events.StreamReplaced{}, common.ConnectionClose, common.ReasonConnectionReplaced},
		{"temporary ban", &events.TemporaryBan{Expire: time.Hour}, common.ConnectionClose, common.ReasonForbidden},
		{"client outdated", &events.ClientOutdated{}, common.ConnectionClose, common.ReasonConnectionClosed},
		{"pair error", &events.PairError{Error: errors.New("bad")}, common.ConnectionClose, common.ReasonBadSession},
		{"failure logged out", &events.ConnectFailure{Reason: events.ConnectFailureLoggedOut}, common.ConnectionClose, common.ReasonLoggedOut},
		{"failure main device gone", &events.ConnectFailure{Reason: events.ConnectFailureMainDeviceGone}, common.ConnectionClose, common.ReasonLoggedOut},
		{"failure temp banned", &events.ConnectFailure{Reason: events.ConnectFailureTempBanned}, common.ConnectionClose, common.ReasonForbidden},
		{"failure unavailable", &events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable}, common.ConnectionClose, common.ReasonUnavailableService},
		{"failure generic", &events.ConnectFailure{Reason: events.ConnectFailureGeneric}, common.ConnectionClose, common.ReasonConnectionClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := testClient().translate(tt.event)
			if len(out) != 1 {
				t.Fatalf("translate() returned %d events, want 1", len(out))
			}
			ev := out[0]
			if ev.Kind != common.EventLifecycle || ev.Update == nil {
				t.Fatalf("translate() = %+v, want a lifecycle event", ev)
			}
			if ev.Update.Connection != tt.connection {
				t.Errorf("Connection = %q, want %q", ev.Update.Connection, tt.connection)
			}
			if tt.connection != common.ConnectionClose {
				return
			}
			if ev.Update.LastDisconnect == nil || ev.Update.LastDisconnect.Reason != tt.reason {
				t.Errorf("LastDisconnect = %+v, want reason %d", ev.Update.LastDisconnect, tt.reason)
			}
		})
	}
}

func TestTranslate_PairSuccess(t *testing.T) {
	out := testClient().translate(&events.PairSuccess{ID: types.NewJID("15551234567", types.DefaultUserServer)})

	if len(out) != 2 {
		t.Fatalf("translate() returned %d events, want 2", len(out))
	}
	if out[0].Kind != common.EventCredentialsUpdated {
		t.Errorf("first event = %v, want credentials update", out[0].Kind)
	}
	if out[1].Update == nil || !out[1].Update.IsNewLogin {
		t.Errorf("second event = %+v, want new login", out[1].Update)
	}
}

func TestTranslate_Ignored(t *testing.T) {
	for _, evt := range []interface{}{
		&events.KeepAliveTimeout{ErrorCount: 1},
		&events.AppStateSyncComplete{},
		"not an event",
	} {
		if out := testClient().translate(evt); len(out) != 0 {
			t.Errorf("translate(%T) = %+v, want nothing", evt, out)
		}
	}
}

func TestTranslate_Message(t *testing.T) {
	sender := types.NewJID("15551234567", types.DefaultUserServer)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: sender, Sender: sender},
			ID:            "3EB0ABC",
			PushName:      "Alice",
			Timestamp:     ts,
		},
		Message: &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("hello there")},
		},
	}

	out := testClient().translate(evt)
	if len(out) != 1 || out[0].Kind != common.EventMessages || out[0].Messages == nil {
		t.Fatalf("translate() = %+v, want one message batch", out)
	}
	if out[0].Messages.Type != common.UpsertNotify {
		t.Errorf("batch type = %q, want notify", out[0].Messages.Type)
	}

	want := []common.InboundMessage{{
		ID:        "3EB0ABC",
		Chat:      "15551234567@s.whatsapp.net",
		Sender:    "15551234567@s.whatsapp.net",
		PushName:  "Alice",
		Timestamp: ts,
		Content:   common.MessageContent{ExtendedText: "hello there"},
	}}
	if diff := cmp.Diff(want, out[0].Messages.Messages); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestMediaKind(t *testing.T) {
	tests := []struct {
		msg  *waE2E.Message
		want string
	}{
		{&waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "image"},
		{&waE2E.Message{VideoMessage: &waE2E.VideoMessage{}}, "video"},
		{&waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, "audio"},
		{&waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, "document"},
		{&waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "sticker"},
		{&waE2E.Message{Conversation: proto.String("hi")}, ""},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := mediaKind(tt.msg); got != tt.want {
			t.Errorf("mediaKind(%v) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestConvertContact(t *testing.T) {
	jid := types.NewJID("15551234567", types.DefaultUserServer)

	got := convertContact(jid, types.ContactInfo{Found: true, FirstName: "Al", PushName: "alice"})
	want := common.Contact{ID: "15551234567@s.whatsapp.net", Name: "Al", PushName: "alice"}
	if got != want {
		t.Errorf("convertContact() = %+v, want %+v", got, want)
	}

	got = convertContact(jid, types.ContactInfo{FullName: "Alice Smith", FirstName: "Al"})
	if got.Name != "Alice Smith" {
		t.Errorf("convertContact() name = %q, want full name", got.Name)
	}
}

func TestClientSubscribe(t *testing.T) {
	c := testClient()

	var got []common.ConnectionState
	unsubscribe := c.Subscribe(func(ev common.Event) {
		got = append(got, ev.Update.Connection)
	})

	c.emit(lifecycle(common.ConnectionUpdate{Connection: common.ConnectionConnecting}))
	unsubscribe()
	c.emit(lifecycle(common.ConnectionUpdate{Connection: common.ConnectionOpen}))

	if len(got) != 1 || got[0] != common.ConnectionConnecting {
		t.Errorf("delivered = %v, want only connecting", got)
	}
}

func TestLibraryLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLibraryLogger(common.NewLogger(&buf, common.LevelDebug), "Client").Sub("Socket")

	log.Warnf("frame %d dropped", 7)

	if !strings.Contains(buf.String(), "[WARN]") || !strings.Contains(buf.String(), "[Client/Socket] frame 7 dropped") {
		t.Errorf("log output = %q", buf.String())
	}
}
