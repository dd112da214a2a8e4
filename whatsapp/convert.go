package whatsapp

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/yllada/wa-desktop/common"
)

func lifecycle(u common.ConnectionUpdate) common.Event {
	return common.Event{Kind: common.EventLifecycle, Update: &u}
}

func closed(reason common.DisconnectReason, message string) common.Event {
	return lifecycle(common.ConnectionUpdate{
		Connection: common.ConnectionClose,
		LastDisconnect: &common.Disconnect{
			Reason:  reason,
			Message: message,
			Date:    time.Now(),
		},
	})
}

// translate maps a whatsmeow event to zero or more application events.
func (c *Client) translate(evt interface{}) []common.Event {
	switch e := evt.(type) {
	case *events.Connected:
		return []common.Event{lifecycle(common.ConnectionUpdate{Connection: common.ConnectionOpen})}

	case *events.PairSuccess:
		c.log.Info("Paired as %s (%s)", e.ID, e.Platform)
		return []common.Event{
			{Kind: common.EventCredentialsUpdated},
			lifecycle(common.ConnectionUpdate{IsNewLogin: true}),
		}

	case *events.PairError:
		message := "pairing failed"
		if e.Error != nil {
			message = e.Error.Error()
		}
		return []common.Event{closed(common.ReasonBadSession, message)}

	case *events.Disconnected:
		return []common.Event{closed(common.ReasonConnectionClosed, "websocket disconnected")}

	case *events.LoggedOut:
		return []common.Event{closed(common.ReasonLoggedOut, e.Reason.String())}

	case *events.StreamReplaced:
		return []common.Event{closed(common.ReasonConnectionReplaced, "another client connected with this session")}

	case *events.ConnectFailure:
		return []common.Event{closed(connectFailureReason(e.Reason), e.Reason.String())}

	case *events.TemporaryBan:
		return []common.Event{closed(common.ReasonForbidden, e.String())}

	case *events.ClientOutdated:
		return []common.Event{closed(common.ReasonConnectionClosed, "client version outdated")}

	case *events.KeepAliveTimeout:
		c.log.Debug("Keepalive timeout (%d errors)", e.ErrorCount)

	case *events.Message:
		return []common.Event{{
			Kind: common.EventMessages,
			Messages: &common.MessagesUpsert{
				Type:     common.UpsertNotify,
				Messages: []common.InboundMessage{convertMessage(e)},
			},
		}}

	case *events.HistorySync:
		if batch := c.historyBatch(e); len(batch.Messages) > 0 {
			return []common.Event{{Kind: common.EventMessages, Messages: batch}}
		}
	}
	return nil
}

// connectFailureReason classifies a login failure reported by the server.
func connectFailureReason(r events.ConnectFailureReason) common.DisconnectReason {
	switch {
	case r.IsLoggedOut():
		return common.ReasonLoggedOut
	case r == events.ConnectFailureTempBanned:
		return common.ReasonForbidden
	case r == events.ConnectFailureServiceUnavailable:
		return common.ReasonUnavailableService
	default:
		return common.ReasonConnectionClosed
	}
}

// historyBatch collects the messages of a history sync blob.
func (c *Client) historyBatch(e *events.HistorySync) *common.MessagesUpsert {
	batch := &common.MessagesUpsert{Type: common.UpsertAppend}
	for _, conv := range e.Data.GetConversations() {
		chat, err := types.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		for _, hm := range conv.GetMessages() {
			msg, err := c.wa.ParseWebMessage(chat, hm.GetMessage())
			if err != nil {
				c.log.Debug("Skipping history message in %s: %v", chat, err)
				continue
			}
			batch.Messages = append(batch.Messages, convertMessage(msg))
		}
	}
	return batch
}

func convertMessage(e *events.Message) common.InboundMessage {
	return common.InboundMessage{
		ID:        e.Info.ID,
		Chat:      e.Info.Chat.String(),
		Sender:    e.Info.Sender.ToNonAD().String(),
		PushName:  e.Info.PushName,
		FromMe:    e.Info.IsFromMe,
		Timestamp: e.Info.Timestamp,
		Content: common.MessageContent{
			Conversation: e.Message.GetConversation(),
			ExtendedText: e.Message.GetExtendedTextMessage().GetText(),
			Media:        mediaKind(e.Message),
		},
	}
}

func mediaKind(m *waE2E.Message) string {
	switch {
	case m.GetImageMessage() != nil:
		return "image"
	case m.GetVideoMessage() != nil:
		return "video"
	case m.GetAudioMessage() != nil:
		return "audio"
	case m.GetDocumentMessage() != nil:
		return "document"
	case m.GetStickerMessage() != nil:
		return "sticker"
	case m.GetLocationMessage() != nil:
		return "location"
	case m.GetContactMessage() != nil:
		return "contact"
	default:
		return ""
	}
}

func convertContact(jid types.JID, info types.ContactInfo) common.Contact {
	name := info.FullName
	if name == "" {
		name = info.FirstName
	}
	return common.Contact{
		ID:           jid.String(),
		Name:         name,
		PushName:     info.PushName,
		BusinessName: info.BusinessName,
	}
}
