package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/velvetpages/chatroom-api/internal/chat"
	"github.com/velvetpages/chatroom-api/internal/dto"
	"github.com/velvetpages/chatroom-api/internal/models"
	"github.com/velvetpages/chatroom-api/internal/observability"
)

const eventBufferSize = 32

// ErrAmbiguousTarget indicates a send named both a room and a private peer.
var ErrAmbiguousTarget = errors.New("message target must name a room or a peer, not both")

// ErrUserNotOnline indicates the named user is not in the online set.
var ErrUserNotOnline = errors.New("user is not online")

// ChatroomService drives the chat engine on behalf of the HTTP and websocket
// layers. All engine commands are serialized through one mutex; the engine
// itself is never touched from more than one goroutine at a time.
type ChatroomService interface {
	Login(ctx context.Context, payload dto.LoginRequest) (dto.UserResponse, error)
	Logout(ctx context.Context, payload dto.LogoutRequest) error
	ChangeStatus(ctx context.Context, payload dto.StatusUpdateRequest) (dto.UserResponse, error)
	RecordActivity(ctx context.Context, payload dto.ActivityRequest) error
	SendText(ctx context.Context, payload dto.SendTextRequest) (dto.MessageResponse, error)
	SendImage(ctx context.Context, payload dto.SendImageRequest) (dto.MessageResponse, error)
	History(ctx context.Context, query dto.HistoryQuery) ([]dto.MessageResponse, error)
	SelectConversation(ctx context.Context, payload dto.SelectConversationRequest) error
	LeavePrivateChat(ctx context.Context, payload dto.LeavePrivateChatRequest) (dto.LeaveResponse, error)
	Rooms() []dto.RoomResponse
	OnlineUsers() []dto.UserResponse
	LastMessage(ctx context.Context, ref models.ConversationRef) *dto.MessageResponse
	Subscribe() (<-chan chat.Event, func())
	Start(ctx context.Context)
}

type chatroomService struct {
	mu      sync.Mutex
	engine  *chat.Engine
	pending []chat.Event

	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
	broker    *eventBroker

	redis       *redis.Client
	redisStream string
	redisCache  string
	nats        *nats.Conn
	natsSubject string
	nodeID      string

	sweepInterval time.Duration
	cacheTTL      time.Duration
	now           func() time.Time
}

// remoteEvent wraps an engine event for cross-node transport. The source
// field lets a node ignore events it published itself.
type remoteEvent struct {
	Source string     `json:"source"`
	Event  chat.Event `json:"event"`
	SentAt time.Time  `json:"sent_at"`
}

// eventBroker fans engine events out to websocket subscribers.
type eventBroker struct {
	mu          sync.RWMutex
	subscribers map[chan chat.Event]struct{}
	log         zerolog.Logger
}

// NewChatroomService builds the service around a fresh engine. Redis and NATS
// are optional; when nil the cache and cross-node fan-out are skipped.
func NewChatroomService(engineCfg chat.Config, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger, sweepInterval, cacheTTL time.Duration) ChatroomService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	stream := ""
	cachePrefix := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":events"
		cachePrefix = channelBase + ":last"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	s := &chatroomService{
		validator: validate,
		logger:    logger.With().Str("component", "chatroom_service").Logger(),
		tracer:    otel.Tracer("github.com/velvetpages/chatroom-api/internal/service/chatroom"),
		sanitizer: sanitizer,
		broker: &eventBroker{
			subscribers: make(map[chan chat.Event]struct{}),
			log:         logger.With().Str("component", "event_broker").Logger(),
		},
		redis:         redisClient,
		redisStream:   stream,
		redisCache:    cachePrefix,
		nats:          natsConn,
		natsSubject:   subject,
		nodeID:        uuid.NewString(),
		sweepInterval: sweepInterval,
		cacheTTL:      cacheTTL,
		now:           time.Now,
	}

	s.engine = chat.NewEngine(engineCfg, func(event chat.Event) {
		s.pending = append(s.pending, event)
	})

	return s
}

// Start launches the sweep loop and, when configured, the cross-node
// consumers. It returns immediately; everything stops with the context.
func (s *chatroomService) Start(ctx context.Context) {
	go s.sweepLoop(ctx)
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// run executes one engine command under the mutex and dispatches the events
// it emitted after the lock is released, so no I/O happens inside a command.
func (s *chatroomService) run(ctx context.Context, command func(engine *chat.Engine) error) error {
	s.mu.Lock()
	err := command(s.engine)
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.dispatch(ctx, events)
	return err
}

func (s *chatroomService) Login(ctx context.Context, payload dto.LoginRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.UserResponse{}, err
	}

	statusMessage := strings.TrimSpace(s.sanitizer.Sanitize(payload.StatusMessage))

	spanCtx, span := s.tracer.Start(ctx, "chatroom.login", trace.WithAttributes(
		attribute.String("chat.nickname", payload.Nickname),
		attribute.String("chat.gender", payload.Gender),
	))
	defer span.End()

	var user models.ChatUser
	err := s.run(spanCtx, func(engine *chat.Engine) error {
		var loginErr error
		user, loginErr = engine.Login(payload.Nickname, models.Gender(payload.Gender), models.PresenceStatus(payload.Status), statusMessage)
		return loginErr
	})
	if err != nil {
		span.RecordError(err)
		return dto.UserResponse{}, err
	}

	s.logger.Info().Str("nickname", user.Nickname).Msg("user entered the chatroom")
	return dto.NewUserResponse(user), nil
}

func (s *chatroomService) Logout(ctx context.Context, payload dto.LogoutRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	err := s.run(ctx, func(engine *chat.Engine) error {
		engine.Logout(payload.Nickname)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("nickname", payload.Nickname).Msg("user left the chatroom")
	return nil
}

func (s *chatroomService) ChangeStatus(ctx context.Context, payload dto.StatusUpdateRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.UserResponse{}, err
	}

	var statusMessage *string
	if payload.StatusMessage != nil {
		clean := strings.TrimSpace(s.sanitizer.Sanitize(*payload.StatusMessage))
		statusMessage = &clean
	}

	var user models.ChatUser
	var known bool
	err := s.run(ctx, func(engine *chat.Engine) error {
		engine.ChangeStatus(payload.Nickname, models.PresenceStatus(payload.Status), statusMessage)
		user, known = engine.User(payload.Nickname)
		return nil
	})
	if err != nil {
		return dto.UserResponse{}, err
	}
	if !known {
		return dto.UserResponse{}, fmt.Errorf("%q: %w", payload.Nickname, ErrUserNotOnline)
	}

	return dto.NewUserResponse(user), nil
}

func (s *chatroomService) RecordActivity(ctx context.Context, payload dto.ActivityRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	return s.run(ctx, func(engine *chat.Engine) error {
		engine.RecordActivity(payload.Nickname, s.now())
		return nil
	})
}

func (s *chatroomService) SendText(ctx context.Context, payload dto.SendTextRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	target, err := resolveTarget(payload.RoomID, payload.Peer)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if clean == "" {
		return dto.MessageResponse{}, fmt.Errorf("message content empty after sanitization: %w", chat.ErrEmptyMessage)
	}

	spanCtx, span := s.tracer.Start(ctx, "chatroom.send_text", trace.WithAttributes(
		attribute.String("chat.author", payload.Nickname),
		attribute.String("chat.target", target.String()),
	))
	defer span.End()

	var message models.ChatMessage
	err = s.run(spanCtx, func(engine *chat.Engine) error {
		var sendErr error
		message, sendErr = engine.SendText(payload.Nickname, clean, target)
		return sendErr
	})
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	return dto.NewMessageResponse(message), nil
}

func (s *chatroomService) SendImage(ctx context.Context, payload dto.SendImageRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	target, err := resolveTarget(payload.RoomID, payload.Peer)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "chatroom.send_image", trace.WithAttributes(
		attribute.String("chat.author", payload.Nickname),
		attribute.String("chat.target", target.String()),
	))
	defer span.End()

	var message models.ChatMessage
	err = s.run(spanCtx, func(engine *chat.Engine) error {
		var sendErr error
		message, sendErr = engine.SendImage(payload.Nickname, payload.ImageData, target)
		return sendErr
	})
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	return dto.NewMessageResponse(message), nil
}

func (s *chatroomService) History(ctx context.Context, query dto.HistoryQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	ref := query.ConversationRef()
	if ref.IsZero() {
		return nil, chat.ErrEmptyConversationRef
	}

	var messages []models.ChatMessage
	err := s.run(ctx, func(engine *chat.Engine) error {
		if !ref.IsPrivate() && !engine.HasRoom(ref.RoomID) {
			return chat.ErrUnknownRoom
		}
		messages = engine.Messages(ref)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if query.Limit > 0 && len(messages) > query.Limit {
		messages = messages[len(messages)-query.Limit:]
	}

	return dto.NewMessageResponseSlice(messages), nil
}

func (s *chatroomService) SelectConversation(ctx context.Context, payload dto.SelectConversationRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	return s.run(ctx, func(engine *chat.Engine) error {
		if payload.Peer != "" {
			return engine.SelectPrivatePeer(payload.Nickname, payload.Peer)
		}
		if payload.RoomID != "" {
			return engine.SelectRoom(payload.Nickname, payload.RoomID)
		}
		return chat.ErrEmptyConversationRef
	})
}

func (s *chatroomService) LeavePrivateChat(ctx context.Context, payload dto.LeavePrivateChatRequest) (dto.LeaveResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.LeaveResponse{}, err
	}

	var outcome chat.LeaveOutcome
	err := s.run(ctx, func(engine *chat.Engine) error {
		outcome = engine.LeavePrivateChat(payload.Nickname, payload.Peer)
		return nil
	})
	if err != nil {
		return dto.LeaveResponse{}, err
	}

	s.logger.Info().
		Str("nickname", payload.Nickname).
		Str("peer", payload.Peer).
		Str("outcome", string(outcome)).
		Msg("user left private chat")

	return dto.NewLeaveResponse(payload.Peer, outcome), nil
}

func (s *chatroomService) Rooms() []dto.RoomResponse {
	s.mu.Lock()
	rooms := s.engine.Rooms()
	s.mu.Unlock()
	return dto.NewRoomResponseSlice(rooms)
}

func (s *chatroomService) OnlineUsers() []dto.UserResponse {
	s.mu.Lock()
	users := s.engine.OnlineUsers()
	s.mu.Unlock()
	return dto.NewUserResponseSlice(users)
}

// Subscribe registers a websocket subscriber on the event stream.
func (s *chatroomService) Subscribe() (<-chan chat.Event, func()) {
	channel := make(chan chat.Event, eventBufferSize)

	s.broker.subscribe(channel)
	observability.ChatWSClientsActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(channel)
		observability.ChatWSClientsActive().Dec()
	}

	return channel, cleanup
}

func (s *chatroomService) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			var report chat.TickReport
			_ = s.run(ctx, func(engine *chat.Engine) error {
				report = engine.Tick(now)
				return nil
			})
			if report.ConversationsTrimmed > 0 || len(report.PrivateChatsExpired) > 0 {
				s.logger.Info().
					Int("conversations_trimmed", report.ConversationsTrimmed).
					Strs("private_chats_expired", report.PrivateChatsExpired).
					Msg("maintenance sweep completed")
			}
		}
	}
}

func (s *chatroomService) dispatch(ctx context.Context, events []chat.Event) {
	for _, event := range events {
		s.record(event)
		s.broker.broadcast(event)

		if event.Kind == chat.EventMessageAdded && event.Conversation != nil && event.Message != nil {
			s.cacheLastMessage(ctx, *event.Conversation, *event.Message)
		}

		if err := s.publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish chat event")
		}
	}
}

// record translates one event into metrics.
func (s *chatroomService) record(event chat.Event) {
	switch event.Kind {
	case chat.EventMessageAdded:
		if event.Message != nil && event.Conversation != nil {
			scope := "room"
			if event.Conversation.IsPrivate() {
				scope = "private"
			}
			observability.ChatMessagesSent().WithLabelValues(string(event.Message.Kind), scope).Inc()
		}
	case chat.EventPresenceChanged:
		if event.Presence != nil {
			observability.ChatPresenceTransitions().WithLabelValues(string(event.Presence.To)).Inc()
		}
	case chat.EventTick:
		if event.Tick != nil {
			observability.ChatConversationsTrimmed().Add(float64(event.Tick.ConversationsTrimmed))
			observability.ChatPrivateChatsExpired().Add(float64(len(event.Tick.PrivateChatsExpired)))
		}
	}
}

func (s *chatroomService) cacheLastMessage(ctx context.Context, ref models.ConversationRef, message models.ChatMessage) {
	if s.redis == nil || s.redisCache == "" {
		return
	}

	payload, err := json.Marshal(dto.NewMessageResponse(message))
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal chat message for cache")
		return
	}

	key := fmt.Sprintf("%s:%s", s.redisCache, ref.String())
	if err := s.redis.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache chat message")
	}
}

// LastMessage returns the cached newest message of a conversation, if any.
func (s *chatroomService) LastMessage(ctx context.Context, ref models.ConversationRef) *dto.MessageResponse {
	if s.redis == nil || s.redisCache == "" {
		return nil
	}

	key := fmt.Sprintf("%s:%s", s.redisCache, ref.String())
	result, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}

	var message dto.MessageResponse
	if err := json.Unmarshal([]byte(result), &message); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unmarshal cached chat message")
		return nil
	}

	return &message
}

func (s *chatroomService) publish(ctx context.Context, event chat.Event) error {
	if (s.redis == nil || s.redisStream == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(remoteEvent{
		Source: s.nodeID,
		Event:  event,
		SentAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *chatroomService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("chat redis subscription closed")
			return
		}
		s.handleRemoteEvent([]byte(msg.Payload))
	}
}

func (s *chatroomService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "chatroom-events", func(msg *nats.Msg) {
		s.handleRemoteEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats events subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain chat nats subscription")
		}
	}()
}

// handleRemoteEvent rebroadcasts events published by other nodes to local
// subscribers. Events from this node are skipped; they already fanned out.
func (s *chatroomService) handleRemoteEvent(data []byte) {
	var event remoteEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid chat event payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.broker.broadcast(event.Event)
}

func resolveTarget(roomID, peer string) (models.ConversationRef, error) {
	roomID = strings.TrimSpace(roomID)
	peer = strings.TrimSpace(peer)

	switch {
	case roomID != "" && peer != "":
		return models.ConversationRef{}, ErrAmbiguousTarget
	case peer != "":
		return models.PrivateRef(peer), nil
	case roomID != "":
		return models.RoomRef(roomID), nil
	default:
		return models.ConversationRef{}, chat.ErrEmptyConversationRef
	}
}

func (b *eventBroker) subscribe(ch chan chat.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[ch] = struct{}{}
}

func (b *eventBroker) unsubscribe(ch chan chat.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

func (b *eventBroker) broadcast(event chat.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.log.Warn().Str("kind", string(event.Kind)).Msg("dropping chat event for slow subscriber")
		}
	}
}
