package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/velvetpages/chatroom-api/internal/chat"
	"github.com/velvetpages/chatroom-api/internal/dto"
	"github.com/velvetpages/chatroom-api/internal/handler"
	"github.com/velvetpages/chatroom-api/internal/models"
	"github.com/velvetpages/chatroom-api/internal/service"
)

type stubChatroomService struct {
	lastSendText  dto.SendTextRequest
	lastSendImage dto.SendImageRequest

	user    dto.UserResponse
	message dto.MessageResponse
	err     error
}

func (s *stubChatroomService) Login(_ context.Context, _ dto.LoginRequest) (dto.UserResponse, error) {
	return s.user, s.err
}

func (s *stubChatroomService) Logout(_ context.Context, _ dto.LogoutRequest) error {
	return s.err
}

func (s *stubChatroomService) ChangeStatus(_ context.Context, _ dto.StatusUpdateRequest) (dto.UserResponse, error) {
	return s.user, s.err
}

func (s *stubChatroomService) RecordActivity(_ context.Context, _ dto.ActivityRequest) error {
	return s.err
}

func (s *stubChatroomService) SendText(_ context.Context, payload dto.SendTextRequest) (dto.MessageResponse, error) {
	s.lastSendText = payload
	return s.message, s.err
}

func (s *stubChatroomService) SendImage(_ context.Context, payload dto.SendImageRequest) (dto.MessageResponse, error) {
	s.lastSendImage = payload
	return s.message, s.err
}

func (s *stubChatroomService) History(_ context.Context, _ dto.HistoryQuery) ([]dto.MessageResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []dto.MessageResponse{s.message}, nil
}

func (s *stubChatroomService) SelectConversation(_ context.Context, _ dto.SelectConversationRequest) error {
	return s.err
}

func (s *stubChatroomService) LeavePrivateChat(_ context.Context, payload dto.LeavePrivateChatRequest) (dto.LeaveResponse, error) {
	return dto.LeaveResponse{Peer: payload.Peer, Outcome: string(chat.LeaveDeleted)}, s.err
}

func (s *stubChatroomService) Rooms() []dto.RoomResponse {
	return dto.NewRoomResponseSlice(models.DefaultRooms())
}

func (s *stubChatroomService) OnlineUsers() []dto.UserResponse {
	return []dto.UserResponse{s.user}
}

func (s *stubChatroomService) LastMessage(_ context.Context, _ models.ConversationRef) *dto.MessageResponse {
	return nil
}

func (s *stubChatroomService) Subscribe() (<-chan chat.Event, func()) {
	ch := make(chan chat.Event)
	return ch, func() { close(ch) }
}

func (s *stubChatroomService) Start(_ context.Context) {}

func newChatroomApp(svc service.ChatroomService) *fiber.App {
	app := fiber.New()
	handler.NewChatroomHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/v1/chatroom"))
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target any) {
	t.Helper()

	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestChatroomHandler_LoginSuccess(t *testing.T) {
	svc := &stubChatroomService{user: dto.UserResponse{Nickname: "luna", Status: "online"}}
	app := newChatroomApp(svc)

	resp := postJSON(t, app, "/api/v1/chatroom/session/login", dto.LoginRequest{
		Nickname: "luna",
		Gender:   "female",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var response struct {
		Success bool             `json:"success"`
		Data    dto.UserResponse `json:"data"`
		Message string           `json:"message"`
	}
	decodeResponse(t, resp, &response)
	require.True(t, response.Success)
	require.Equal(t, "luna", response.Data.Nickname)
}

func TestChatroomHandler_SendTextErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		statusCode int
	}{
		{name: "unknown room", err: chat.ErrUnknownRoom, statusCode: fiber.StatusNotFound},
		{name: "empty message", err: chat.ErrEmptyMessage, statusCode: fiber.StatusBadRequest},
		{name: "ambiguous target", err: service.ErrAmbiguousTarget, statusCode: fiber.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubChatroomService{err: tc.err}
			app := newChatroomApp(svc)

			resp := postJSON(t, app, "/api/v1/chatroom/messages/text", dto.SendTextRequest{
				Nickname: "luna",
				RoomID:   "public",
				Content:  "hi",
			})
			require.Equal(t, tc.statusCode, resp.StatusCode)
		})
	}
}

func TestChatroomHandler_SendImageRejectsNonImagePayload(t *testing.T) {
	svc := &stubChatroomService{}
	app := newChatroomApp(svc)

	encoded := base64.StdEncoding.EncodeToString([]byte("definitely not an image"))
	resp := postJSON(t, app, "/api/v1/chatroom/messages/image", dto.SendImageRequest{
		Nickname:  "luna",
		RoomID:    "public",
		ImageData: "data:image/png;base64," + encoded,
	})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	require.Empty(t, svc.lastSendImage.Nickname)
}

func TestChatroomHandler_SendImageAcceptsPNG(t *testing.T) {
	svc := &stubChatroomService{message: dto.MessageResponse{ID: "m1", Kind: "image"}}
	app := newChatroomApp(svc)

	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 16)...)
	encoded := base64.StdEncoding.EncodeToString(png)
	resp := postJSON(t, app, "/api/v1/chatroom/messages/image", dto.SendImageRequest{
		Nickname:  "luna",
		RoomID:    "public",
		ImageData: "data:image/png;base64," + encoded,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "luna", svc.lastSendImage.Nickname)
}

func TestChatroomHandler_HistoryUnknownRoom(t *testing.T) {
	svc := &stubChatroomService{err: chat.ErrUnknownRoom}
	app := newChatroomApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chatroom/messages?room_id=lobby", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestChatroomHandler_RoomsListsFixedRooms(t *testing.T) {
	app := newChatroomApp(&stubChatroomService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chatroom/rooms", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Success bool               `json:"success"`
		Data    []dto.RoomResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.True(t, response.Success)
	require.Len(t, response.Data, 4)
	require.Equal(t, "public", response.Data[0].ID)
}

func TestChatroomHandler_WebsocketRequiresUpgrade(t *testing.T) {
	app := newChatroomApp(&stubChatroomService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chatroom/ws?nickname=luna", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
