package realtime

import "github.com/kisansarathi/sarathi-chat/internal/models"

// Topic names match the four per-identity subscriptions the client holds:
// its personal message queue, typing queue, status queue, and the global
// presence broadcast.
const (
	TopicMessage  = "message"
	TopicTyping   = "typing"
	TopicStatus   = "status"
	TopicPresence = "presence"
)

// Envelope is the wire frame pushed to clients. Payload shape depends on Topic.
type Envelope struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
}

// TypingSignal relays a keystroke notification between participants.
type TypingSignal struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// StatusUpdate advances one message, or every message of a conversation when
// MessageID is empty (bulk delivered/seen signals).
type StatusUpdate struct {
	MessageID      string               `json:"message_id,omitempty"`
	ConversationID string               `json:"conversation_id"`
	UserID         string               `json:"user_id"`
	Status         models.MessageStatus `json:"status"`
}
