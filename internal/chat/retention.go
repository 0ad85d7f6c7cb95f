package chat

import (
	"time"

	"github.com/velvetpages/chatroom-api/internal/models"
)

// TrimToCapacity returns the newest capacity messages, dropping from the front.
// The input is returned unchanged when it already fits, so applying the trim
// twice yields the same result as applying it once.
func TrimToCapacity(messages []models.ChatMessage, capacity int) []models.ChatMessage {
	if capacity < 0 {
		capacity = 0
	}
	if len(messages) <= capacity {
		return messages
	}
	return messages[len(messages)-capacity:]
}

// IsConversationExpired reports whether a conversation idle since lastActiveAt
// has exceeded the inactivity timeout at the given instant.
func IsConversationExpired(lastActiveAt, now time.Time, timeout time.Duration) bool {
	return now.Sub(lastActiveAt) > timeout
}
