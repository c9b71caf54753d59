package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"sikap/api/internal/store"
)

func msg(id, from, to int64, content string, read bool, at time.Time) store.Message {
	names := map[int64]string{1: "Self", 2: "Bima", 3: "Citra"}
	return store.Message{
		ID: id, SenderID: from, SenderName: names[from], ReceiverID: to, ReceiverName: names[to],
		Content: content, IsRead: read, CreatedAt: at,
	}
}

func TestBuildConversations(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	messages := []store.Message{
		msg(5, 2, 1, "latest from Bima", false, t0.Add(5*time.Minute)),
		msg(4, 1, 3, "my reply to Citra", false, t0.Add(4*time.Minute)),
		msg(3, 2, 1, "older from Bima", false, t0.Add(3*time.Minute)),
		msg(2, 3, 1, "from Citra", true, t0.Add(2*time.Minute)),
		msg(1, 2, 1, "oldest from Bima", true, t0.Add(time.Minute)),
	}

	got := BuildConversations(messages, 1)

	assert.Equal(t, []Conversation{
		{PartnerID: 2, PartnerName: "Bima", LastMessage: "latest from Bima", Timestamp: t0.Add(5 * time.Minute), UnreadCount: 2},
		{PartnerID: 3, PartnerName: "Citra", LastMessage: "my reply to Citra", Timestamp: t0.Add(4 * time.Minute), UnreadCount: 0},
	}, got)
}

func TestBuildConversationsIgnoresUnreadSentBySelf(t *testing.T) {
	t0 := time.Now()
	got := BuildConversations([]store.Message{
		msg(2, 1, 2, "ping", false, t0),
		msg(1, 1, 2, "ping?", false, t0.Add(-time.Minute)),
	}, 1)
	assert.Len(t, got, 1)
	assert.Zero(t, got[0].UnreadCount)
}

func TestBuildConversationsEmpty(t *testing.T) {
	assert.Empty(t, BuildConversations(nil, 1))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	exact := strings.Repeat("a", 50)
	assert.Equal(t, exact, Preview(exact))
	long := strings.Repeat("é", 60)
	assert.Equal(t, strings.Repeat("é", 50)+"...", Preview(long))
}
