package models

import "time"

// Gender is the profile gender chosen at login.
type Gender string

// Supported gender values.
const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
	GenderCouple Gender = "couple"
)

// PresenceStatus is a user's declared or inferred availability.
type PresenceStatus string

// Presence states, from most to least available.
const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusBusy    PresenceStatus = "busy"
	StatusOffline PresenceStatus = "offline"
)

// MessageKind distinguishes text payloads from image references.
type MessageKind string

// Message kinds.
const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

// SystemAuthor is the author recorded on synthetic messages such as leave notices.
const SystemAuthor = "System"

// ChatUser is an entry in the online-user set. The nickname acts as identity;
// re-login under the same nickname replaces the prior entry.
type ChatUser struct {
	ID            string         `json:"id"`
	Nickname      string         `json:"nickname"`
	Gender        Gender         `json:"gender"`
	AvatarURL     string         `json:"avatar_url"`
	Status        PresenceStatus `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
	JoinedAt      time.Time      `json:"joined_at"`
}

// ChatMessage is a single immutable message inside one conversation.
type ChatMessage struct {
	ID     string      `json:"id"`
	Author string      `json:"author"`
	Kind   MessageKind `json:"kind"`
	Body   string      `json:"body"`
	SentAt time.Time   `json:"sent_at"`
}

// IsSystem reports whether the message was generated by the engine rather than a user.
func (m ChatMessage) IsSystem() bool {
	return m.Author == SystemAuthor
}

// Room describes one of the fixed public channels.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberCount int    `json:"member_count"`
}

// DefaultRooms returns the fixed room set served by the chatroom.
func DefaultRooms() []Room {
	return []Room{
		{ID: "public", Name: "Public Chat", Description: "General chat room for everyone", MemberCount: 24},
		{ID: "boys", Name: "Boys Chat", Description: "Chat room for boys", MemberCount: 12},
		{ID: "girls", Name: "Girls Chat", Description: "Chat room for girls", MemberCount: 8},
		{ID: "couple", Name: "Couple Chat", Description: "Chat room for couples", MemberCount: 4},
	}
}

// ConversationRef identifies either a fixed room or a private conversation
// keyed by the counterpart's nickname. Exactly one field is set.
type ConversationRef struct {
	RoomID string `json:"room_id,omitempty"`
	Peer   string `json:"peer,omitempty"`
}

// RoomRef builds a reference to a fixed room.
func RoomRef(roomID string) ConversationRef {
	return ConversationRef{RoomID: roomID}
}

// PrivateRef builds a reference to the private conversation with peer.
func PrivateRef(peer string) ConversationRef {
	return ConversationRef{Peer: peer}
}

// IsPrivate reports whether the reference targets a private conversation.
func (r ConversationRef) IsPrivate() bool {
	return r.Peer != ""
}

// IsZero reports whether the reference targets nothing.
func (r ConversationRef) IsZero() bool {
	return r.RoomID == "" && r.Peer == ""
}

func (r ConversationRef) String() string {
	if r.IsPrivate() {
		return "private:" + r.Peer
	}
	return "room:" + r.RoomID
}

// AvatarURL derives the dicebear avatar for a gender.
func AvatarURL(gender Gender) string {
	switch gender {
	case GenderFemale:
		return "https://api.dicebear.com/6.x/avataaars/svg?seed=Lily&hair=long&hairColor=black&skinColor=light&backgroundColor=b6e3f4"
	case GenderMale:
		return "https://api.dicebear.com/6.x/avataaars/svg?seed=Felix&hair=short&hairColor=brown&skinColor=light&backgroundColor=d1d4f9"
	case GenderCouple:
		return "https://api.dicebear.com/6.x/avataaars/svg?seed=Couple&hair=short&hairColor=auburn&skinColor=light&backgroundColor=ffdfbf"
	default:
		return "https://api.dicebear.com/6.x/avataaars/svg?seed=Default&backgroundColor=b6e3f4"
	}
}

// ValidGender reports whether the value is one of the supported genders.
func ValidGender(g Gender) bool {
	switch g {
	case GenderFemale, GenderMale, GenderCouple:
		return true
	}
	return false
}

// ValidStatus reports whether the value is one of the supported presence states.
func ValidStatus(s PresenceStatus) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}
