package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/velvetpages/chatroom-api/internal/chat"
	"github.com/velvetpages/chatroom-api/internal/dto"
	"github.com/velvetpages/chatroom-api/internal/middleware"
	"github.com/velvetpages/chatroom-api/internal/models"
	"github.com/velvetpages/chatroom-api/internal/service"
	"github.com/velvetpages/chatroom-api/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// ChatroomHandler wires the chatroom endpoints including the websocket
// event stream.
type ChatroomHandler struct {
	service service.ChatroomService
	logger  zerolog.Logger
}

// NewChatroomHandler creates a chatroom handler instance.
func NewChatroomHandler(service service.ChatroomService, logger zerolog.Logger) *ChatroomHandler {
	return &ChatroomHandler{
		service: service,
		logger:  logger.With().Str("component", "chatroom_handler").Logger(),
	}
}

// Register binds chatroom routes under the provided router group.
func (h *ChatroomHandler) Register(router fiber.Router) {
	router.Post("/session/login", h.login)
	router.Post("/session/logout", h.logout)
	router.Patch("/session/status", h.changeStatus)
	router.Post("/session/activity", h.recordActivity)

	router.Get("/rooms", h.rooms)
	router.Get("/users", h.onlineUsers)

	router.Get("/messages", h.history)
	router.Post("/messages/text", h.sendText)
	router.Post("/messages/image", h.sendImage)

	router.Post("/conversations/select", h.selectConversation)
	router.Post("/conversations/leave", h.leavePrivateChat)

	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *ChatroomHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	user, err := h.service.Login(requestContext(c), payload)
	if err != nil {
		return h.sendChatError(c, err)
	}

	return utils.SendCreated(c, "logged in", user)
}

func (h *ChatroomHandler) logout(c *fiber.Ctx) error {
	var payload dto.LogoutRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	if err := h.service.Logout(requestContext(c), payload); err != nil {
		return h.sendChatError(c, err)
	}

	return utils.SendSuccess(c, "logged out", nil)
}

func (h *ChatroomHandler) changeStatus(c *fiber.Ctx) error {
	var payload dto.StatusUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	user, err := h.service.ChangeStatus(requestContext(c), payload)
	if err != nil {
		return h.sendChatError(c, err)
	}

	return utils.SendSuccess(c, "status updated", user)
}

func (h *ChatroomHandler) recordActivity(c *fiber.Ctx) error {
	var payload dto.ActivityRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	if err := h.service.RecordActivity(requestContext(c), payload); err != nil {
		return h.sendChatError(c, err)
	}

	return utils.SendSuccess(c, "activity recorded", nil)
}

func (h *ChatroomHandler) rooms(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "chat rooms", h.service.Rooms())
}

func (h *ChatroomHandler) onlineUsers(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "online users", h.service.OnlineUsers())
}

func (h *ChatroomHandler) history(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.HistoryQuery{
		RoomID: strings.TrimSpace(c.Query("room_id")),
		Peer:   strings.TrimSpace(c.Query("peer")),
		Limit:  limit,
	}

	messages, err := h.service.History(requestContext(c), query)
	if err != nil {
		return h.sendChatError(c, err)
	}

	return utils.SendSuccess(c, "conversation history", messages)
}

func (h *ChatroomHandler) sendText(c *fiber.Ctx) error {
	var payload dto.SendTextRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	message, err := h.service.SendText(requestContext(c), payload)
	if err != nil {
		return h.sendChatError(c, err)
	}

	return utils.SendCreated(c, "message sent", message)
}

func (h *ChatroomHandler) sendImage(c *fiber.Ctx) error {
	var payload dto.SendImageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	if !isImageDataURL(payload.ImageData) {
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "payload is not a valid image")
	}

	message, err := h.service.SendImage(requestContext(c), payload)
	if err != nil {
		return h.sendChatError(c, err)
	}

	return utils.SendCreated(c, "image sent", message)
}

func (h *ChatroomHandler) selectConversation(c *fiber.Ctx) error {
	var payload dto.SelectConversationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	if err := h.service.SelectConversation(requestContext(c), payload); err != nil {
		return h.sendChatError(c, err)
	}

	return utils.SendSuccess(c, "conversation selected", nil)
}

func (h *ChatroomHandler) leavePrivateChat(c *fiber.Ctx) error {
	var payload dto.LeavePrivateChatRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.service.LeavePrivateChat(requestContext(c), payload)
	if err != nil {
		return h.sendChatError(c, err)
	}

	return utils.SendSuccess(c, "private chat left", result)
}

func (h *ChatroomHandler) handleConnection(conn *websocket.Conn) {
	nickname := strings.TrimSpace(conn.Query("nickname"))
	if nickname == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusBadRequest, "nickname required"))
		_ = conn.Close()
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	h.logger.Info().Str("nickname", nickname).Msg("chat websocket connected")
	defer h.logger.Info().Str("nickname", nickname).Msg("chat websocket disconnected")

	events, cancel := h.service.Subscribe()
	defer cancel()

	// Replay the cached newest message of the requested conversation so a
	// reconnecting client is not staring at an empty pane.
	if ref := conversationFromQuery(conn); !ref.IsZero() {
		if last := h.service.LastMessage(baseCtx, ref); last != nil {
			replay := struct {
				Kind         string               `json:"kind"`
				Conversation string               `json:"conversation"`
				Message      *dto.MessageResponse `json:"message"`
			}{Kind: "message_replay", Conversation: ref.String(), Message: last}
			if payload, err := json.Marshal(replay); err == nil {
				_ = conn.WriteMessage(websocket.TextMessage, payload)
			}
		}
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			// Any inbound frame counts as user activity.
			_ = h.service.RecordActivity(baseCtx, dto.ActivityRequest{Nickname: nickname})
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer func() {
		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn().Err(err).Msg("failed to marshal chat event")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *ChatroomHandler) sendChatError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrUnknownRoom),
		errors.Is(err, service.ErrUserNotOnline):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrEmptyNickname),
		errors.Is(err, chat.ErrEmptyConversationRef),
		errors.Is(err, service.ErrAmbiguousTarget):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("chat request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func conversationFromQuery(conn *websocket.Conn) models.ConversationRef {
	if peer := strings.TrimSpace(conn.Query("peer")); peer != "" {
		return models.PrivateRef(peer)
	}
	if roomID := strings.TrimSpace(conn.Query("room_id")); roomID != "" {
		return models.RoomRef(roomID)
	}
	return models.ConversationRef{}
}

// isImageDataURL sniffs the decoded bytes of a base64 data URL and accepts
// only payloads whose detected content type is an image.
func isImageDataURL(raw string) bool {
	raw = strings.TrimSpace(raw)

	encoded := raw
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 {
			return false
		}
		if !strings.Contains(raw[:comma], ";base64") {
			return false
		}
		encoded = raw[comma+1:]
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}

	return strings.HasPrefix(mimetype.Detect(decoded).String(), "image/")
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}
