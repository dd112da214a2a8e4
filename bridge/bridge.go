package bridge

import (
	"context"
	"fmt"

	"github.com/yllada/wa-desktop/common"
)

// Backend is the capability the bridge exposes to the UI process.
type Backend interface {
	Send(ctx context.Context, recipient, text string) error
	Contacts(ctx context.Context) ([]common.Contact, error)
}

// Register installs the send-message and get-contacts handlers.
func Register(s *Server, backend Backend, log common.Logger) {
	s.Handle(common.ChannelSendMessage, func(ctx context.Context, payload RawMessage) (any, error) {
		var args SendMessageArgs
		if err := unmarshal(payload, &args); err != nil {
			return nil, fmt.Errorf("decoding send request: %w", err)
		}
		if err := backend.Send(ctx, args.PhoneNumber, args.Message); err != nil {
			log.Warn("Send to %s failed: %v", args.PhoneNumber, err)
			return SendResult{Success: false, Error: err.Error()}, nil
		}
		return SendResult{Success: true}, nil
	})

	s.Handle(common.ChannelGetContacts, func(ctx context.Context, _ RawMessage) (any, error) {
		contacts, err := backend.Contacts(ctx)
		if err != nil {
			log.Warn("Fetching contacts failed: %v", err)
			return []common.Contact{}, nil
		}
		if contacts == nil {
			contacts = []common.Contact{}
		}
		return contacts, nil
	})
}
