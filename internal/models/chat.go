package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ConversationType string

const (
	ConversationDirect  ConversationType = "DIRECT"
	ConversationOrder   ConversationType = "ORDER"
	ConversationSupport ConversationType = "SUPPORT"
)

// Conversation represents a chat thread between a farmer and a counterpart
// (buyer, vendor or expert). ORDER threads carry the crop listing they were
// opened from.
type Conversation struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`

	FarmerID  uuid.UUID `gorm:"type:uuid;index" json:"farmer_id"`
	PartnerID uuid.UUID `gorm:"type:uuid;index" json:"partner_id"`

	Type ConversationType `gorm:"type:varchar(20);default:'DIRECT'" json:"type"`

	// optional, only set for ORDER threads opened from a listing
	ListingID *uint `gorm:"index" json:"listing_id,omitempty"`

	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Farmer   *User     `gorm:"foreignKey:FarmerID" json:"farmer,omitempty"`
	Partner  *User     `gorm:"foreignKey:PartnerID" json:"partner,omitempty"`
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageImage  MessageType = "IMAGE"
	MessageFile   MessageType = "FILE"
	MessageSystem MessageType = "SYSTEM"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusSeen      MessageStatus = "SEEN"
)

var statusRank = map[MessageStatus]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusSeen:      3,
}

// Advances reports whether moving from cur to next is a forward transition.
// Status never regresses; a non-advancing update is a no-op, not an error.
func (next MessageStatus) Advances(cur MessageStatus) bool {
	return statusRank[next] > statusRank[cur]
}

// Message represents a message in a conversation.
type Message struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ConversationID uuid.UUID  `gorm:"type:uuid;index" json:"conversation_id"`
	SenderID       uuid.UUID  `gorm:"type:uuid;index" json:"sender_id"`
	ReceiverID     *uuid.UUID `gorm:"type:uuid;index" json:"receiver_id,omitempty"`

	Type MessageType `gorm:"type:varchar(20);default:'TEXT'" json:"type"`
	Text string      `json:"message"`

	Status MessageStatus `gorm:"type:varchar(20);default:'SENT';index" json:"status"`

	// legacy flag, kept in lockstep with Status == SEEN
	IsRead bool       `gorm:"default:false" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`

	// attachment metadata for IMAGE/FILE messages: url, name, size, mime
	Attachment datatypes.JSON `json:"attachment,omitempty"`

	// echoed back to the sender so the client can match its optimistic entry
	ClientRef string `gorm:"type:varchar(64);index" json:"client_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}
