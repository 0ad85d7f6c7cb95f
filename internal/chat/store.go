package chat

import (
	"sort"

	"github.com/velvetpages/chatroom-api/internal/models"
)

// MessageStore owns the message sequences for every room and private
// conversation. It is not safe for concurrent use; all mutation must be
// serialized through the engine.
type MessageStore struct {
	rooms        map[string][]models.ChatMessage
	private      map[string][]models.ChatMessage
	publicLimit  int
	privateLimit int
}

// NewMessageStore builds a store holding an empty sequence for each fixed room.
func NewMessageStore(roomIDs []string, publicLimit, privateLimit int) *MessageStore {
	rooms := make(map[string][]models.ChatMessage, len(roomIDs))
	for _, id := range roomIDs {
		rooms[id] = nil
	}
	return &MessageStore{
		rooms:        rooms,
		private:      make(map[string][]models.ChatMessage),
		publicLimit:  publicLimit,
		privateLimit: privateLimit,
	}
}

// AppendToRoom appends a message to a fixed room, evicting the oldest message
// when the room is at capacity.
func (s *MessageStore) AppendToRoom(roomID string, message models.ChatMessage) error {
	messages, ok := s.rooms[roomID]
	if !ok {
		return ErrUnknownRoom
	}
	s.rooms[roomID] = TrimToCapacity(append(messages, message), s.publicLimit)
	return nil
}

// AppendToPrivate appends a message to the private conversation with peer,
// creating the sequence on first use.
func (s *MessageStore) AppendToPrivate(peer string, message models.ChatMessage) {
	s.private[peer] = TrimToCapacity(append(s.private[peer], message), s.privateLimit)
}

// MessagesFor returns a copy of the message sequence for a conversation.
// Conversations with no messages yet yield an empty slice, never an error.
func (s *MessageStore) MessagesFor(ref models.ConversationRef) []models.ChatMessage {
	var messages []models.ChatMessage
	if ref.IsPrivate() {
		messages = s.private[ref.Peer]
	} else {
		messages = s.rooms[ref.RoomID]
	}
	out := make([]models.ChatMessage, len(messages))
	copy(out, messages)
	return out
}

// HasRoom reports whether roomID belongs to the fixed room set.
func (s *MessageStore) HasRoom(roomID string) bool {
	_, ok := s.rooms[roomID]
	return ok
}

// DropPrivate removes the private conversation's messages entirely.
func (s *MessageStore) DropPrivate(peer string) {
	delete(s.private, peer)
}

// PrivatePeers lists the peers with stored private messages, sorted for
// deterministic iteration.
func (s *MessageStore) PrivatePeers() []string {
	peers := make([]string, 0, len(s.private))
	for peer := range s.private {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers
}

// Sweep re-applies the capacity bound to every sequence and returns how many
// conversations needed trimming. Append-time trimming keeps the invariant in
// the normal path; the sweep restores it after any external mutation.
func (s *MessageStore) Sweep() int {
	trimmed := 0
	for id, messages := range s.rooms {
		if len(messages) > s.publicLimit {
			s.rooms[id] = TrimToCapacity(messages, s.publicLimit)
			trimmed++
		}
	}
	for peer, messages := range s.private {
		if len(messages) > s.privateLimit {
			s.private[peer] = TrimToCapacity(messages, s.privateLimit)
			trimmed++
		}
	}
	return trimmed
}
