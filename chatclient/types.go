// Package chatclient is the client-side core of Kisan Sarathi chat: a single
// shared transport per session feeding a per-conversation message store, a
// conversation directory, and a presence/typing tracker. UI layers subscribe
// to change notifications and render the snapshots these components expose.
package chatclient

import (
	"strings"
	"time"
)

// Status of a message as seen by the sender. Transitions only move forward.
type Status string

const (
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusSeen      Status = "SEEN"
)

var statusRank = map[Status]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusSeen:      3,
}

// Advances reports whether moving from cur to next is a forward transition.
func (next Status) Advances(cur Status) bool {
	return statusRank[next] > statusRank[cur]
}

type MessageKind string

const (
	KindText   MessageKind = "TEXT"
	KindImage  MessageKind = "IMAGE"
	KindFile   MessageKind = "FILE"
	KindSystem MessageKind = "SYSTEM"
)

// TempIDPrefix marks optimistic messages awaiting their server echo.
const TempIDPrefix = "temp-"

// Attachment metadata for IMAGE/FILE messages.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
}

// ChatMessage is the canonical message shape every component works with.
// Raw wire payloads are normalized into it exactly once, at the transport
// boundary.
type ChatMessage struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	ReceiverID     string      `json:"receiver_id,omitempty"`
	Kind           MessageKind `json:"type"`
	Text           string      `json:"message"`
	Status         Status      `json:"status"`
	IsRead         bool        `json:"is_read"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	ClientRef      string      `json:"client_ref,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Pending reports whether the message is still optimistic (no server id yet).
func (m ChatMessage) Pending() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// Conversation is a directory entry: the counterpart plus the denormalized
// preview used for sorting.
type Conversation struct {
	ID              string    `json:"id"`
	PartnerID       string    `json:"partner_id"`
	PartnerName     string    `json:"partner_name"`
	PartnerHandle   string    `json:"partner_handle"`
	Type            string    `json:"type"`
	ListingID       *uint     `json:"listing_id,omitempty"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
}

// ChatUser is a directory-search result for the start-new-conversation flow.
type ChatUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
	Role   string `json:"role"`
	Online bool   `json:"online"`
}

// TypingSignal is the typing-queue payload.
type TypingSignal struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// StatusUpdate is the status-queue payload. An empty MessageID means the
// update applies to every own message of the conversation (bulk signal).
type StatusUpdate struct {
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Status         Status `json:"status"`
}
