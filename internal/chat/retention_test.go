package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velvetpages/chatroom-api/internal/models"
)

func makeMessages(n int) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.ChatMessage{
			ID:     fmt.Sprintf("m-%d", i),
			Author: "Jake",
			Kind:   models.KindText,
			Body:   fmt.Sprintf("message %d", i),
		})
	}
	return out
}

func TestTrimToCapacityDropsOldestFirst(t *testing.T) {
	messages := makeMessages(10)

	trimmed := TrimToCapacity(messages, 4)
	require.Len(t, trimmed, 4)
	require.Equal(t, "m-6", trimmed[0].ID)
	require.Equal(t, "m-9", trimmed[3].ID)
}

func TestTrimToCapacityKeepsFittingInputUnchanged(t *testing.T) {
	messages := makeMessages(3)

	trimmed := TrimToCapacity(messages, 5)
	require.Equal(t, messages, trimmed)

	trimmed = TrimToCapacity(messages, 3)
	require.Equal(t, messages, trimmed)
}

func TestTrimToCapacityIsIdempotent(t *testing.T) {
	for _, capacity := range []int{0, 1, 5, 10, 50} {
		messages := makeMessages(17)
		once := TrimToCapacity(messages, capacity)
		twice := TrimToCapacity(once, capacity)
		require.Equal(t, once, twice, "capacity %d", capacity)
	}
}

func TestTrimToCapacityHandlesZeroAndNegativeCapacity(t *testing.T) {
	messages := makeMessages(2)
	require.Empty(t, TrimToCapacity(messages, 0))
	require.Empty(t, TrimToCapacity(messages, -1))
	require.Empty(t, TrimToCapacity(nil, 0))
}

func TestIsConversationExpired(t *testing.T) {
	lastActive := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	timeout := 6 * time.Hour

	require.False(t, IsConversationExpired(lastActive, lastActive.Add(timeout), timeout))
	require.True(t, IsConversationExpired(lastActive, lastActive.Add(timeout+time.Second), timeout))
	require.False(t, IsConversationExpired(lastActive, lastActive, timeout))
}
