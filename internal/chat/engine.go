package chat

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/velvetpages/chatroom-api/internal/models"
)

// Default retention and presence thresholds, overridable through Config.
const (
	DefaultPublicLimit       = 500
	DefaultPrivateLimit      = 50
	DefaultPrivateInactivity = 6 * time.Hour
	DefaultAwayIdle          = 5 * time.Minute
	DefaultOfflineIdle       = 15 * time.Minute
)

// Config carries the tunables and injected dependencies for an engine.
// Zero values fall back to the defaults above, a real clock and uuid ids.
type Config struct {
	Rooms             []models.Room
	PublicLimit       int
	PrivateLimit      int
	PrivateInactivity time.Duration
	AwayIdle          time.Duration
	OfflineIdle       time.Duration
	Now               func() time.Time
	NewID             func() string
}

func (c Config) withDefaults() Config {
	if len(c.Rooms) == 0 {
		c.Rooms = models.DefaultRooms()
	}
	if c.PublicLimit <= 0 {
		c.PublicLimit = DefaultPublicLimit
	}
	if c.PrivateLimit <= 0 {
		c.PrivateLimit = DefaultPrivateLimit
	}
	if c.PrivateInactivity <= 0 {
		c.PrivateInactivity = DefaultPrivateInactivity
	}
	if c.AwayIdle <= 0 {
		c.AwayIdle = DefaultAwayIdle
	}
	if c.OfflineIdle <= 0 {
		c.OfflineIdle = DefaultOfflineIdle
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

// Engine coordinates the message store, private-chat registry and presence
// tracker behind a single command surface. Every command executes to
// completion before the next is accepted; the engine holds no locks and must
// be owned by exactly one goroutine or guarded by the caller.
type Engine struct {
	cfg      Config
	store    *MessageStore
	registry *PrivateChatRegistry
	presence *PresenceTracker
	users    map[string]*models.ChatUser
	active   map[string]models.ConversationRef
	sink     EventSink
}

// NewEngine builds an engine with explicit configuration and no ambient
// state, so isolated instances can coexist in tests and multi-tenant hosts.
func NewEngine(cfg Config, sink EventSink) *Engine {
	cfg = cfg.withDefaults()

	roomIDs := make([]string, 0, len(cfg.Rooms))
	for _, room := range cfg.Rooms {
		roomIDs = append(roomIDs, room.ID)
	}

	store := NewMessageStore(roomIDs, cfg.PublicLimit, cfg.PrivateLimit)
	return &Engine{
		cfg:      cfg,
		store:    store,
		registry: NewPrivateChatRegistry(store, cfg.PrivateInactivity),
		presence: NewPresenceTracker(cfg.AwayIdle, cfg.OfflineIdle),
		users:    make(map[string]*models.ChatUser),
		active:   make(map[string]models.ConversationRef),
		sink:     sink,
	}
}

func (e *Engine) emit(event Event) {
	if e.sink != nil {
		e.sink(event)
	}
}

func (e *Engine) defaultRoom() string {
	return e.cfg.Rooms[0].ID
}

// Login adds a user to the online set. An existing entry under the same
// nickname is replaced, emitting UserReplaced before UserJoined.
func (e *Engine) Login(nickname string, gender models.Gender, status models.PresenceStatus, statusMessage string) (models.ChatUser, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return models.ChatUser{}, ErrEmptyNickname
	}
	if status == "" {
		status = models.StatusOnline
	}

	now := e.cfg.Now()
	user := models.ChatUser{
		ID:            e.cfg.NewID(),
		Nickname:      nickname,
		Gender:        gender,
		AvatarURL:     models.AvatarURL(gender),
		Status:        status,
		StatusMessage: statusMessage,
		JoinedAt:      now,
	}

	if previous, ok := e.users[nickname]; ok {
		replaced := *previous
		e.emit(Event{Kind: EventUserReplaced, At: now, User: &replaced})
	}

	e.users[nickname] = &user
	e.presence.Track(nickname, status, now)
	e.active[nickname] = models.RoomRef(e.defaultRoom())

	joined := user
	e.emit(Event{Kind: EventUserJoined, At: now, User: &joined})
	return user, nil
}

// Logout removes a user from the online set. Unknown nicknames are a no-op.
func (e *Engine) Logout(nickname string) {
	user, ok := e.users[nickname]
	if !ok {
		return
	}
	left := *user
	delete(e.users, nickname)
	delete(e.active, nickname)
	e.presence.Forget(nickname)
	e.emit(Event{Kind: EventUserLeft, At: e.cfg.Now(), User: &left})
}

// User returns the online-set entry for a nickname.
func (e *Engine) User(nickname string) (models.ChatUser, bool) {
	user, ok := e.users[nickname]
	if !ok {
		return models.ChatUser{}, false
	}
	return *user, true
}

// OnlineUsers lists the online set sorted by nickname.
func (e *Engine) OnlineUsers() []models.ChatUser {
	out := make([]models.ChatUser, 0, len(e.users))
	for _, user := range e.users {
		out = append(out, *user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nickname < out[j].Nickname })
	return out
}

// Rooms returns the fixed room set.
func (e *Engine) Rooms() []models.Room {
	out := make([]models.Room, len(e.cfg.Rooms))
	copy(out, e.cfg.Rooms)
	return out
}

// HasRoom reports whether roomID names one of the fixed rooms.
func (e *Engine) HasRoom(roomID string) bool {
	return e.store.HasRoom(roomID)
}

// SelectRoom switches the viewer's active conversation to a fixed room.
func (e *Engine) SelectRoom(nickname, roomID string) error {
	if !e.store.HasRoom(roomID) {
		return ErrUnknownRoom
	}
	e.active[nickname] = models.RoomRef(roomID)
	return nil
}

// SelectPrivatePeer switches the viewer's active conversation to the private
// chat with peer, creating it on first selection and refreshing its
// last-activity timestamp.
func (e *Engine) SelectPrivatePeer(self, peer string) error {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return ErrEmptyConversationRef
	}
	e.registry.Ensure(self, peer, e.cfg.Now())
	e.active[self] = models.PrivateRef(peer)
	return nil
}

// ActiveConversation returns the viewer's currently selected conversation.
func (e *Engine) ActiveConversation(nickname string) (models.ConversationRef, bool) {
	ref, ok := e.active[nickname]
	return ref, ok
}

// SendText appends a text message to the target conversation. The body must
// not trim to empty; the rejection is explicit rather than a silent drop.
func (e *Engine) SendText(author, body string, target models.ConversationRef) (models.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	return e.send(author, models.KindText, body, target)
}

// SendImage appends an image message. The payload is an opaque reference the
// upload boundary already validated; no emptiness check applies.
func (e *Engine) SendImage(author, imageRef string, target models.ConversationRef) (models.ChatMessage, error) {
	return e.send(author, models.KindImage, imageRef, target)
}

func (e *Engine) send(author string, kind models.MessageKind, body string, target models.ConversationRef) (models.ChatMessage, error) {
	if target.IsZero() {
		return models.ChatMessage{}, ErrEmptyConversationRef
	}

	now := e.cfg.Now()
	message := models.ChatMessage{
		ID:     e.cfg.NewID(),
		Author: author,
		Kind:   kind,
		Body:   body,
		SentAt: now,
	}

	if target.IsPrivate() {
		e.registry.Ensure(author, target.Peer, now)
		e.store.AppendToPrivate(target.Peer, message)
		e.registry.RecordActivity(target.Peer, now)
	} else {
		if err := e.store.AppendToRoom(target.RoomID, message); err != nil {
			return models.ChatMessage{}, err
		}
	}

	conversation := target
	emitted := message
	e.emit(Event{Kind: EventMessageAdded, At: now, Conversation: &conversation, Message: &emitted})
	return message, nil
}

// Messages returns the stored sequence for a conversation.
func (e *Engine) Messages(ref models.ConversationRef) []models.ChatMessage {
	return e.store.MessagesFor(ref)
}

// PrivateChatParticipants returns the participant set of the private
// conversation with peer.
func (e *Engine) PrivateChatParticipants(peer string) []string {
	return e.registry.Participants(peer)
}

// HasPrivateChat reports whether a private conversation with peer exists.
func (e *Engine) HasPrivateChat(peer string) bool {
	return e.registry.Exists(peer)
}

// LeavePrivateChat removes self from the conversation with peer. A system
// notice lands in the conversation before the removal; when the last
// participant leaves, the conversation and its messages are deleted. The
// viewer falls back to the default room.
func (e *Engine) LeavePrivateChat(self, peer string) LeaveOutcome {
	now := e.cfg.Now()
	notice := models.ChatMessage{
		ID:     e.cfg.NewID(),
		Author: models.SystemAuthor,
		Kind:   models.KindText,
		Body:   fmt.Sprintf("%s left the chat", self),
		SentAt: now,
	}

	outcome, existed := e.registry.Leave(self, peer, notice)
	if !existed {
		return LeaveRemaining
	}

	if ref, ok := e.active[self]; ok && ref.Peer == peer {
		e.active[self] = models.RoomRef(e.defaultRoom())
	}

	conversation := models.PrivateRef(peer)
	e.emit(Event{Kind: EventChatLeft, At: now, Conversation: &conversation})
	if outcome == LeaveDeleted {
		e.emit(Event{Kind: EventChatDeleted, At: now, Conversation: &conversation})
	}
	return outcome
}

// ChangeStatus applies an explicitly chosen status and optional status
// message to an online user. Unknown nicknames are a no-op.
func (e *Engine) ChangeStatus(nickname string, status models.PresenceStatus, statusMessage *string) {
	user, ok := e.users[nickname]
	if !ok {
		return
	}

	previous := user.Status
	user.Status = status
	if statusMessage != nil {
		user.StatusMessage = *statusMessage
	}
	e.presence.SetStatus(nickname, status)

	transition := PresenceTransition{Nickname: nickname, From: previous, To: status}
	changed := *user
	e.emit(Event{Kind: EventPresenceChanged, At: e.cfg.Now(), User: &changed, Presence: &transition})
}

// RecordActivity notes a user interaction at the given instant, reviving
// away or offline users to online.
func (e *Engine) RecordActivity(nickname string, at time.Time) {
	transition, changed := e.presence.RecordActivity(nickname, at)
	if !changed {
		return
	}
	user, ok := e.users[nickname]
	if !ok {
		return
	}
	user.Status = transition.To
	updated := *user
	e.emit(Event{Kind: EventPresenceChanged, At: at, User: &updated, Presence: &transition})
}

// Tick runs one maintenance pass: capacity re-trim, private-chat expiry and
// presence timers. Hosts call it on a fixed cadence; the engine never
// schedules itself.
func (e *Engine) Tick(now time.Time) TickReport {
	report := TickReport{
		ConversationsTrimmed: e.store.Sweep(),
		PrivateChatsExpired: e.registry.Sweep(now),
		PresenceTransitions: e.presence.Tick(now),
	}

	for _, peer := range report.PrivateChatsExpired {
		conversation := models.PrivateRef(peer)
		e.emit(Event{Kind: EventChatDeleted, At: now, Conversation: &conversation})
	}
	for _, transition := range report.PresenceTransitions {
		if user, ok := e.users[transition.Nickname]; ok {
			user.Status = transition.To
			updated := *user
			t := transition
			e.emit(Event{Kind: EventPresenceChanged, At: now, User: &updated, Presence: &t})
		}
	}

	emitted := report
	e.emit(Event{Kind: EventTick, At: now, Tick: &emitted})
	return report
}
