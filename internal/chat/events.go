package chat

import (
	"time"

	"github.com/velvetpages/chatroom-api/internal/models"
)

// EventKind tags the domain events the engine emits.
type EventKind string

// Event kinds.
const (
	EventUserJoined      EventKind = "user_joined"
	EventUserReplaced    EventKind = "user_replaced"
	EventUserLeft        EventKind = "user_left"
	EventMessageAdded    EventKind = "message_added"
	EventChatLeft        EventKind = "chat_left"
	EventChatDeleted     EventKind = "chat_deleted"
	EventPresenceChanged EventKind = "presence_changed"
	EventTick            EventKind = "tick"
)

// Event is one entry in the engine's emitted stream. The presentation layer
// renders and plays notification sounds by filtering these; the engine itself
// never performs side effects.
type Event struct {
	Kind         EventKind               `json:"kind"`
	At           time.Time               `json:"at"`
	User         *models.ChatUser        `json:"user,omitempty"`
	Conversation *models.ConversationRef `json:"conversation,omitempty"`
	Message      *models.ChatMessage     `json:"message,omitempty"`
	Presence     *PresenceTransition     `json:"presence,omitempty"`
	Tick         *TickReport             `json:"tick,omitempty"`
}

// EventSink receives engine events synchronously, in emission order. Sinks
// must not block and must not call back into the engine.
type EventSink func(Event)

// TickReport aggregates the work done by one maintenance tick.
type TickReport struct {
	ConversationsTrimmed int                  `json:"conversations_trimmed"`
	PrivateChatsExpired  []string             `json:"private_chats_expired,omitempty"`
	PresenceTransitions  []PresenceTransition `json:"presence_transitions,omitempty"`
}
