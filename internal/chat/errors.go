package chat

import "errors"

// ErrUnknownRoom indicates an operation referenced a room id outside the fixed set.
var ErrUnknownRoom = errors.New("unknown room")

// ErrEmptyMessage indicates a text message body trimmed to nothing.
var ErrEmptyMessage = errors.New("message body is empty")

// ErrEmptyConversationRef indicates a conversation target that cannot be resolved.
var ErrEmptyConversationRef = errors.New("conversation reference is empty")

// ErrEmptyNickname indicates a login attempt without a usable nickname.
var ErrEmptyNickname = errors.New("nickname is empty")
