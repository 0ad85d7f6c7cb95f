package dto

import (
	"time"

	"github.com/velvetpages/chatroom-api/internal/chat"
	"github.com/velvetpages/chatroom-api/internal/models"
)

// LoginRequest is the payload to enter the chatroom.
type LoginRequest struct {
	Nickname      string `json:"nickname" validate:"required,min=2,max=32"`
	Gender        string `json:"gender" validate:"required,oneof=female male couple"`
	Status        string `json:"status" validate:"omitempty,oneof=online away busy offline"`
	StatusMessage string `json:"status_message" validate:"omitempty,max=120"`
}

// LogoutRequest leaves the chatroom entirely.
type LogoutRequest struct {
	Nickname string `json:"nickname" validate:"required,min=2,max=32"`
}

// StatusUpdateRequest changes a user's declared presence.
type StatusUpdateRequest struct {
	Nickname      string  `json:"nickname" validate:"required,min=2,max=32"`
	Status        string  `json:"status" validate:"required,oneof=online away busy offline"`
	StatusMessage *string `json:"status_message" validate:"omitempty,max=120"`
}

// ActivityRequest reports a user interaction for presence tracking.
type ActivityRequest struct {
	Nickname string `json:"nickname" validate:"required,min=2,max=32"`
}

// SendTextRequest posts a text message into a room or private conversation.
// Exactly one of RoomID and Peer must be set.
type SendTextRequest struct {
	Nickname string `json:"nickname" validate:"required,min=2,max=32"`
	RoomID   string `json:"room_id" validate:"omitempty,max=32"`
	Peer     string `json:"peer" validate:"omitempty,max=32"`
	Content  string `json:"content" validate:"required,min=1,max=4000"`
}

// SendImageRequest posts an image into a room or private conversation. The
// image travels as a data URL produced by the upload boundary.
type SendImageRequest struct {
	Nickname  string `json:"nickname" validate:"required,min=2,max=32"`
	RoomID    string `json:"room_id" validate:"omitempty,max=32"`
	Peer      string `json:"peer" validate:"omitempty,max=32"`
	ImageData string `json:"image_data" validate:"required"`
}

// SelectConversationRequest switches the viewer's active conversation.
type SelectConversationRequest struct {
	Nickname string `json:"nickname" validate:"required,min=2,max=32"`
	RoomID   string `json:"room_id" validate:"omitempty,max=32"`
	Peer     string `json:"peer" validate:"omitempty,max=32"`
}

// LeavePrivateChatRequest removes the caller from a private conversation.
type LeavePrivateChatRequest struct {
	Nickname string `json:"nickname" validate:"required,min=2,max=32"`
	Peer     string `json:"peer" validate:"required,min=2,max=32"`
}

// HistoryQuery selects the conversation whose messages to return.
type HistoryQuery struct {
	RoomID string `query:"room_id" validate:"omitempty,max=32"`
	Peer   string `query:"peer" validate:"omitempty,max=32"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=500"`
}

// ConversationRef resolves the query into a domain reference.
func (q HistoryQuery) ConversationRef() models.ConversationRef {
	if q.Peer != "" {
		return models.PrivateRef(q.Peer)
	}
	return models.RoomRef(q.RoomID)
}

// UserResponse is the serialized representation of an online user.
type UserResponse struct {
	ID            string    `json:"id"`
	Nickname      string    `json:"nickname"`
	Gender        string    `json:"gender"`
	AvatarURL     string    `json:"avatar_url"`
	Status        string    `json:"status"`
	StatusMessage string    `json:"status_message,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
}

// NewUserResponse converts a model into a DTO.
func NewUserResponse(user models.ChatUser) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Nickname:      user.Nickname,
		Gender:        string(user.Gender),
		AvatarURL:     user.AvatarURL,
		Status:        string(user.Status),
		StatusMessage: user.StatusMessage,
		JoinedAt:      user.JoinedAt,
	}
}

// NewUserResponseSlice converts a slice of models into DTOs.
func NewUserResponseSlice(users []models.ChatUser) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, user := range users {
		out = append(out, NewUserResponse(user))
	}
	return out
}

// MessageResponse is the serialized representation of a chat message.
type MessageResponse struct {
	ID     string    `json:"id"`
	Author string    `json:"author"`
	Kind   string    `json:"kind"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
	System bool      `json:"system,omitempty"`
}

// NewMessageResponse converts a model into a DTO.
func NewMessageResponse(message models.ChatMessage) MessageResponse {
	return MessageResponse{
		ID:     message.ID,
		Author: message.Author,
		Kind:   string(message.Kind),
		Body:   message.Body,
		SentAt: message.SentAt,
		System: message.IsSystem(),
	}
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.ChatMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// RoomResponse describes one of the fixed rooms.
type RoomResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberCount int    `json:"member_count"`
}

// NewRoomResponse converts a room model into a DTO.
func NewRoomResponse(room models.Room) RoomResponse {
	return RoomResponse{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		MemberCount: room.MemberCount,
	}
}

// NewRoomResponseSlice converts rooms into DTOs.
func NewRoomResponseSlice(rooms []models.Room) []RoomResponse {
	out := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, NewRoomResponse(room))
	}
	return out
}

// LeaveResponse reports the result of leaving a private conversation.
type LeaveResponse struct {
	Peer    string `json:"peer"`
	Outcome string `json:"outcome"`
}

// NewLeaveResponse converts a leave outcome into a DTO.
func NewLeaveResponse(peer string, outcome chat.LeaveOutcome) LeaveResponse {
	return LeaveResponse{Peer: peer, Outcome: string(outcome)}
}
