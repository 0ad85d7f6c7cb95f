package chat

import (
	"sort"
	"time"

	"github.com/velvetpages/chatroom-api/internal/models"
)

// LeaveOutcome reports what a leave did to the conversation.
type LeaveOutcome string

// Leave outcomes.
const (
	LeaveRemaining LeaveOutcome = "remaining"
	LeaveDeleted   LeaveOutcome = "deleted"
)

// PrivateChatRegistry owns the set of live private conversations: their
// participant sets and last-activity timestamps. Deleting a conversation
// removes its messages from the store in the same call, so the three views
// never drift apart. Not safe for concurrent use.
type PrivateChatRegistry struct {
	store        *MessageStore
	participants map[string]map[string]struct{}
	lastActive   map[string]time.Time
	inactivity   time.Duration
}

// NewPrivateChatRegistry builds a registry backed by the given message store.
func NewPrivateChatRegistry(store *MessageStore, inactivity time.Duration) *PrivateChatRegistry {
	return &PrivateChatRegistry{
		store:        store,
		participants: make(map[string]map[string]struct{}),
		lastActive:   make(map[string]time.Time),
		inactivity:   inactivity,
	}
}

// Ensure idempotently creates the conversation with peer, records both
// nicknames as participants and refreshes the last-activity timestamp.
func (r *PrivateChatRegistry) Ensure(self, peer string, at time.Time) {
	set, ok := r.participants[peer]
	if !ok {
		set = make(map[string]struct{}, 2)
		r.participants[peer] = set
	}
	set[self] = struct{}{}
	set[peer] = struct{}{}
	r.lastActive[peer] = at
}

// RecordActivity refreshes the conversation's last-activity timestamp.
func (r *PrivateChatRegistry) RecordActivity(peer string, at time.Time) {
	if _, ok := r.participants[peer]; ok {
		r.lastActive[peer] = at
	}
}

// Exists reports whether a conversation with peer is registered.
func (r *PrivateChatRegistry) Exists(peer string) bool {
	_, ok := r.participants[peer]
	return ok
}

// Participants returns the sorted participant nicknames of a conversation.
func (r *PrivateChatRegistry) Participants(peer string) []string {
	set := r.participants[peer]
	out := make([]string, 0, len(set))
	for nickname := range set {
		out = append(out, nickname)
	}
	sort.Strings(out)
	return out
}

// LastActive returns the conversation's last-activity timestamp.
func (r *PrivateChatRegistry) LastActive(peer string) (time.Time, bool) {
	at, ok := r.lastActive[peer]
	return at, ok
}

// Peers lists registered conversations sorted by peer nickname.
func (r *PrivateChatRegistry) Peers() []string {
	peers := make([]string, 0, len(r.participants))
	for peer := range r.participants {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers
}

// Leave removes self from the conversation with peer. The provided system
// message is appended before removal so the remaining participant observes
// it. An empty participant set deletes the conversation and its messages.
// Leaving a conversation that does not exist is a no-op. The second return
// value reports whether the conversation existed.
func (r *PrivateChatRegistry) Leave(self, peer string, notice models.ChatMessage) (LeaveOutcome, bool) {
	set, ok := r.participants[peer]
	if !ok {
		return LeaveRemaining, false
	}

	r.store.AppendToPrivate(peer, notice)
	delete(set, self)

	if len(set) == 0 {
		r.drop(peer)
		return LeaveDeleted, true
	}
	return LeaveRemaining, true
}

// Sweep deletes every conversation idle beyond the inactivity timeout,
// messages included, and returns the deleted peer nicknames sorted.
func (r *PrivateChatRegistry) Sweep(now time.Time) []string {
	var deleted []string
	for peer, at := range r.lastActive {
		if IsConversationExpired(at, now, r.inactivity) {
			r.drop(peer)
			deleted = append(deleted, peer)
		}
	}
	sort.Strings(deleted)
	return deleted
}

func (r *PrivateChatRegistry) drop(peer string) {
	delete(r.participants, peer)
	delete(r.lastActive, peer)
	r.store.DropPrivate(peer)
}
