// Package chat aggregates direct messages into conversation summaries.
package chat

import (
	"time"

	"sikap/api/internal/store"
)

// Conversation summarizes the latest exchange with one partner.
type Conversation struct {
	PartnerID   int64
	PartnerName string
	LastMessage string
	Timestamp   time.Time
	UnreadCount int
}

// BuildConversations folds messages, newest first, into one entry per
// partner. The first message seen for a partner supplies the preview and
// timestamp; every unread message addressed to self counts toward unread.
// Output keeps first-seen order.
func BuildConversations(messages []store.Message, selfID int64) []Conversation {
	index := make(map[int64]int)
	out := make([]Conversation, 0)
	for _, msg := range messages {
		partnerID, partnerName := msg.ReceiverID, msg.ReceiverName
		if msg.SenderID != selfID {
			partnerID, partnerName = msg.SenderID, msg.SenderName
		}

		i, seen := index[partnerID]
		if !seen {
			i = len(out)
			index[partnerID] = i
			out = append(out, Conversation{
				PartnerID:   partnerID,
				PartnerName: partnerName,
				LastMessage: msg.Content,
				Timestamp:   msg.CreatedAt,
			})
		}
		if msg.ReceiverID == selfID && !msg.IsRead {
			out[i].UnreadCount++
		}
	}
	return out
}

const previewLength = 50

// Preview shortens message content for notification bodies.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
