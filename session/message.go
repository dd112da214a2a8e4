package session

import "github.com/yllada/wa-desktop/common"

// ExtractText returns the displayable text of a message: the plain
// conversation text, then the extended text, then the media placeholder.
func ExtractText(c common.MessageContent) string {
	if c.Conversation != "" {
		return c.Conversation
	}
	if c.ExtendedText != "" {
		return c.ExtendedText
	}
	return common.MediaPlaceholder
}

// ShouldForward reports whether a message of a batch reaches the UI.
// Only live deliveries from other accounts are forwarded.
func ShouldForward(batch common.UpsertType, msg common.InboundMessage) bool {
	return batch == common.UpsertNotify && !msg.FromMe
}
