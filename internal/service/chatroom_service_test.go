package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/velvetpages/chatroom-api/internal/chat"
	"github.com/velvetpages/chatroom-api/internal/dto"
	"github.com/velvetpages/chatroom-api/internal/models"
)

func newTestService(t *testing.T, redisClient *redis.Client) *chatroomService {
	t.Helper()

	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewChatroomService(chat.Config{}, redisClient, "chatroom", nil, validate, zerolog.Nop(), time.Minute, time.Minute)

	impl, ok := svc.(*chatroomService)
	require.True(t, ok)
	return impl
}

func loginTestUser(t *testing.T, svc *chatroomService, nickname string) dto.UserResponse {
	t.Helper()

	user, err := svc.Login(context.Background(), dto.LoginRequest{
		Nickname: nickname,
		Gender:   "female",
	})
	require.NoError(t, err)
	return user
}

func TestChatroomServiceLoginAndSendText(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	user := loginTestUser(t, svc, "luna")
	require.Equal(t, "luna", user.Nickname)
	require.Equal(t, "online", user.Status)
	require.NotEmpty(t, user.AvatarURL)

	message, err := svc.SendText(ctx, dto.SendTextRequest{
		Nickname: "luna",
		RoomID:   "public",
		Content:  "hello everyone",
	})
	require.NoError(t, err)
	require.Equal(t, "luna", message.Author)
	require.Equal(t, "text", message.Kind)
	require.Equal(t, "hello everyone", message.Body)

	history, err := svc.History(ctx, dto.HistoryQuery{RoomID: "public"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, message.ID, history[0].ID)
}

func TestChatroomServiceSanitizesContent(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	loginTestUser(t, svc, "luna")

	message, err := svc.SendText(ctx, dto.SendTextRequest{
		Nickname: "luna",
		RoomID:   "public",
		Content:  `hi <script>alert("x")</script>there`,
	})
	require.NoError(t, err)
	require.NotContains(t, message.Body, "<script>")
	require.Contains(t, message.Body, "hi")

	_, err = svc.SendText(ctx, dto.SendTextRequest{
		Nickname: "luna",
		RoomID:   "public",
		Content:  `<script>alert("x")</script>`,
	})
	require.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestChatroomServiceRejectsAmbiguousTarget(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	loginTestUser(t, svc, "luna")

	_, err := svc.SendText(ctx, dto.SendTextRequest{
		Nickname: "luna",
		RoomID:   "public",
		Peer:     "nova",
		Content:  "hi",
	})
	require.ErrorIs(t, err, ErrAmbiguousTarget)

	_, err = svc.SendText(ctx, dto.SendTextRequest{
		Nickname: "luna",
		Content:  "hi",
	})
	require.ErrorIs(t, err, chat.ErrEmptyConversationRef)
}

func TestChatroomServiceHistoryUnknownRoom(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.History(context.Background(), dto.HistoryQuery{RoomID: "lobby"})
	require.ErrorIs(t, err, chat.ErrUnknownRoom)
}

func TestChatroomServiceValidatesPayloads(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Login(ctx, dto.LoginRequest{Nickname: "x", Gender: "female"})
	require.Error(t, err)

	_, err = svc.Login(ctx, dto.LoginRequest{Nickname: "luna", Gender: "robot"})
	require.Error(t, err)
}

func TestChatroomServiceSubscribeReceivesEvents(t *testing.T) {
	svc := newTestService(t, nil)

	events, cancel := svc.Subscribe()
	defer cancel()

	loginTestUser(t, svc, "luna")

	select {
	case event := <-events:
		require.Equal(t, chat.EventUserJoined, event.Kind)
		require.NotNil(t, event.User)
		require.Equal(t, "luna", event.User.Nickname)
	default:
		t.Fatal("expected a user_joined event on the subscriber channel")
	}
}

func TestChatroomServiceLeavePrivateChat(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	loginTestUser(t, svc, "luna")

	_, err := svc.SendText(ctx, dto.SendTextRequest{
		Nickname: "luna",
		Peer:     "nova",
		Content:  "psst",
	})
	require.NoError(t, err)

	// Sending created the conversation with both participants, so the first
	// leave only removes luna and drops the system notice into the history.
	result, err := svc.LeavePrivateChat(ctx, dto.LeavePrivateChatRequest{
		Nickname: "luna",
		Peer:     "nova",
	})
	require.NoError(t, err)
	require.Equal(t, "nova", result.Peer)
	require.Equal(t, string(chat.LeaveRemaining), result.Outcome)

	history, err := svc.History(ctx, dto.HistoryQuery{Peer: "nova"})
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "psst", history[0].Body)
	require.True(t, history[1].System)
	require.Equal(t, "luna left the chat", history[1].Body)

	result, err = svc.LeavePrivateChat(ctx, dto.LeavePrivateChatRequest{
		Nickname: "nova",
		Peer:     "nova",
	})
	require.NoError(t, err)
	require.Equal(t, string(chat.LeaveDeleted), result.Outcome)

	history, err = svc.History(ctx, dto.HistoryQuery{Peer: "nova"})
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestChatroomServiceCachesLastMessage(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	svc := newTestService(t, redisClient)
	ctx := context.Background()
	loginTestUser(t, svc, "luna")

	message, err := svc.SendText(ctx, dto.SendTextRequest{
		Nickname: "luna",
		RoomID:   "public",
		Content:  "remember me",
	})
	require.NoError(t, err)

	cached := svc.LastMessage(ctx, models.RoomRef("public"))
	require.NotNil(t, cached)
	require.Equal(t, message.ID, cached.ID)
	require.Equal(t, "remember me", cached.Body)

	require.Nil(t, svc.LastMessage(ctx, models.RoomRef("girls")))
}

func TestChatroomServiceSkipsOwnRemoteEvents(t *testing.T) {
	svc := newTestService(t, nil)

	events, cancel := svc.Subscribe()
	defer cancel()

	foreign := remoteEvent{
		Source: "another-node",
		Event: chat.Event{
			Kind: chat.EventUserJoined,
			User: &models.ChatUser{Nickname: "remote"},
		},
		SentAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(foreign)
	require.NoError(t, err)
	svc.handleRemoteEvent(payload)

	select {
	case event := <-events:
		require.Equal(t, "remote", event.User.Nickname)
	default:
		t.Fatal("expected remote event to be rebroadcast")
	}

	own := foreign
	own.Source = svc.nodeID
	payload, err = json.Marshal(own)
	require.NoError(t, err)
	svc.handleRemoteEvent(payload)

	select {
	case <-events:
		t.Fatal("events from this node must not be rebroadcast")
	default:
	}
}
