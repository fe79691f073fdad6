package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kisansarathi/sarathi-chat/internal/models"
	"github.com/kisansarathi/sarathi-chat/internal/realtime"
)

type ChatHandler struct {
	DB        *gorm.DB
	Hub       *realtime.Hub
	RDB       *redis.Client
	PageSize  int
	UploadDir string
}

func NewChatHandler(db *gorm.DB, hub *realtime.Hub, rdb *redis.Client, pageSize int, uploadDir string) *ChatHandler {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &ChatHandler{DB: db, Hub: hub, RDB: rdb, PageSize: pageSize, UploadDir: uploadDir}
}

// CreateOrGetConversation creates a new conversation or returns the existing
// one between the caller and the given partner.
func (h *ChatHandler) CreateOrGetConversation(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var req struct {
		PartnerID string `json:"partner_id"`
		Type      string `json:"type"`
		ListingID *uint  `json:"listing_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.PartnerID == "" {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "partner_id is required",
		})
	}

	partnerUUID, err := uuid.Parse(req.PartnerID)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid partner ID",
		})
	}

	var partner models.User
	if err := h.DB.First(&partner, "id = ?", partnerUUID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": "Partner not found",
		})
	}

	convType := models.ConversationType(req.Type)
	switch convType {
	case models.ConversationDirect, models.ConversationOrder, models.ConversationSupport:
	case "":
		convType = models.ConversationDirect
	default:
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation type",
		})
	}

	var conv models.Conversation
	err = h.DB.
		Where("(farmer_id = ? AND partner_id = ?) OR (farmer_id = ? AND partner_id = ?)",
			userUUID, partnerUUID, partnerUUID, userUUID).
		Order("updated_at DESC").
		First(&conv).Error

	created := false
	if err == gorm.ErrRecordNotFound {
		conv = models.Conversation{
			FarmerID:      userUUID,
			PartnerID:     partnerUUID,
			Type:          convType,
			ListingID:     req.ListingID,
			LastMessageAt: time.Now(),
		}
		if err := h.DB.Create(&conv).Error; err != nil {
			log.Println("Error creating conversation:", err)
			return c.Status(500).JSON(fiber.Map{
				"success": false,
				"message": "Failed to create conversation",
			})
		}
		created = true
	} else if err != nil {
		log.Println("Error fetching conversation:", err)
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch conversation",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"created": created,
		"data":    conv,
	})
}

type UserMini struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
	Role   string `json:"role"`
}

type ConversationOut struct {
	ID          string    `json:"id"`
	PartnerID   string    `json:"partner_id"`
	Type        string    `json:"type"`
	ListingID   *uint     `json:"listing_id,omitempty"`
	LastMessage string    `json:"last_message"`
	UpdatedAt   time.Time `json:"last_message_time"`
	UnreadCount int64     `json:"unread_count"`

	Partner *UserMini `json:"partner,omitempty"`
}

// GetConversations returns the caller's conversations, newest activity first.
func (h *ChatHandler) GetConversations(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var convs []models.Conversation
	if err := h.DB.
		Preload("Farmer").
		Preload("Partner").
		Where("farmer_id = ? OR partner_id = ?", userUUID, userUUID).
		Order("last_message_at DESC").
		Find(&convs).Error; err != nil {

		log.Println("Error fetching conversations:", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to fetch conversations"})
	}

	out := make([]ConversationOut, 0, len(convs))
	var totalUnread int64

	for _, conv := range convs {
		var unreadCount int64
		h.DB.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id != ? AND status != ?", conv.ID, userUUID, models.StatusSeen).
			Count(&unreadCount)
		totalUnread += unreadCount

		// the counterpart from the caller's point of view
		other := conv.Partner
		otherID := conv.PartnerID
		if conv.PartnerID == userUUID {
			other = conv.Farmer
			otherID = conv.FarmerID
		}

		var partnerMini *UserMini
		if other != nil {
			partnerMini = &UserMini{
				ID:     other.ID.String(),
				Name:   other.Name,
				Mobile: other.Mobile,
				Role:   string(other.Role),
			}
		}

		out = append(out, ConversationOut{
			ID:          conv.ID.String(),
			PartnerID:   otherID.String(),
			Type:        string(conv.Type),
			ListingID:   conv.ListingID,
			LastMessage: conv.LastMessage,
			UpdatedAt:   conv.LastMessageAt,
			UnreadCount: unreadCount,
			Partner:     partnerMini,
		})
	}

	return c.JSON(fiber.Map{"success": true, "data": out, "total_unread": totalUnread})
}

// GetUnreadTotal returns the count of unread messages across all conversations.
func (h *ChatHandler) GetUnreadTotal(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var count int64
	err = h.DB.Model(&models.Message{}).
		Joins("JOIN conversations ON messages.conversation_id = conversations.id").
		Where("(conversations.farmer_id = ? OR conversations.partner_id = ?) AND messages.sender_id != ? AND messages.status != ?",
			userUUID, userUUID, userUUID, models.StatusSeen).
		Count(&count).Error

	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to count unread messages"})
	}

	return c.JSON(fiber.Map{"success": true, "data": count})
}

// MessageResponse is the wire shape of a message.
type MessageResponse struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	ReceiverID     string          `json:"receiver_id,omitempty"`
	Type           string          `json:"type"`
	Text           string          `json:"message"`
	Status         string          `json:"status"`
	IsRead         bool            `json:"is_read"`
	Attachment     json.RawMessage `json:"attachment,omitempty"`
	ClientRef      string          `json:"client_ref,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toMessageResponse(msg models.Message) MessageResponse {
	resp := MessageResponse{
		ID:             msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID.String(),
		Type:           string(msg.Type),
		Text:           msg.Text,
		Status:         string(msg.Status),
		IsRead:         msg.IsRead,
		ClientRef:      msg.ClientRef,
		CreatedAt:      msg.CreatedAt,
	}
	if msg.ReceiverID != nil {
		resp.ReceiverID = msg.ReceiverID.String()
	}
	if len(msg.Attachment) > 0 {
		resp.Attachment = json.RawMessage(msg.Attachment)
	}
	return resp
}

// GetMessages returns one page of a conversation's history, newest first.
// Fetching page 0 marks the counterpart's messages as seen.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation ID",
		})
	}

	conv, errResp := h.loadConversationFor(c, convUUID, userUUID)
	if conv == nil {
		return errResp
	}

	page, _ := strconv.Atoi(c.Query("page", "0"))
	if page < 0 {
		page = 0
	}
	size, _ := strconv.Atoi(c.Query("size", strconv.Itoa(h.PageSize)))
	if size <= 0 || size > 200 {
		size = h.PageSize
	}

	var messages []models.Message
	err = h.DB.
		Where("conversation_id = ?", convUUID).
		Order("created_at DESC").
		Offset(page * size).
		Limit(size).
		Find(&messages).Error

	if err != nil {
		log.Println("Error fetching messages:", err)
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch messages",
		})
	}

	// Opening the latest page implies the reader has seen what is in it.
	if page == 0 {
		h.markSeen(*conv, userUUID)
	}

	responses := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		responses = append(responses, toMessageResponse(msg))
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"data":     responses,
		"page":     page,
		"has_more": len(messages) == size,
	})
}

// MarkAsRead marks every counterpart message in the conversation as seen.
func (h *ChatHandler) MarkAsRead(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation ID",
		})
	}

	conv, errResp := h.loadConversationFor(c, convUUID, userUUID)
	if conv == nil {
		return errResp
	}

	h.markSeen(*conv, userUUID)
	return c.JSON(fiber.Map{"success": true})
}

// markSeen advances all counterpart messages to SEEN and tells the author.
// Failures are logged, not surfaced; the next open retries implicitly.
func (h *ChatHandler) markSeen(conv models.Conversation, readerID uuid.UUID) {
	now := time.Now()
	res := h.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id != ? AND status != ?",
			conv.ID, readerID, models.StatusSeen).
		Updates(map[string]interface{}{
			"status":  models.StatusSeen,
			"is_read": true,
			"read_at": now,
		})
	if res.Error != nil {
		log.Println("Error marking messages as seen:", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		return
	}

	author := conv.FarmerID
	if author == readerID {
		author = conv.PartnerID
	}
	h.Hub.Relay(author, realtime.TopicStatus, realtime.StatusUpdate{
		ConversationID: conv.ID.String(),
		UserID:         readerID.String(),
		Status:         models.StatusSeen,
	})
}

// SendMessage persists and fans out a message (REST fallback; the WebSocket
// frame path goes through the same delivery helper).
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation ID",
		})
	}

	var req struct {
		Text       string          `json:"message"`
		Type       string          `json:"type"`
		Attachment json.RawMessage `json:"attachment"`
		ClientRef  string          `json:"client_ref"`
	}
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "message text is required",
		})
	}

	conv, errResp := h.loadConversationFor(c, convUUID, userUUID)
	if conv == nil {
		return errResp
	}

	msg, err := h.deliver(*conv, userUUID, req.Text, req.Type, req.Attachment, req.ClientRef)
	if err != nil {
		log.Println("Error creating message:", err)
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to send message",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    toMessageResponse(msg),
	})
}

// deliver persists a message, bumps the conversation preview, fans the message
// out to both participants and advances it to DELIVERED when the recipient has
// a live connection anywhere.
func (h *ChatHandler) deliver(conv models.Conversation, senderID uuid.UUID, text, msgType string, attachment json.RawMessage, clientRef string) (models.Message, error) {
	mt := models.MessageType(msgType)
	switch mt {
	case models.MessageText, models.MessageImage, models.MessageFile, models.MessageSystem:
	default:
		mt = models.MessageText
	}

	recipient := conv.FarmerID
	if recipient == senderID {
		recipient = conv.PartnerID
	}

	msg := models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     &recipient,
		Type:           mt,
		Text:           text,
		Status:         models.StatusSent,
		Attachment:     datatypes.JSON(attachment),
		ClientRef:      clientRef,
	}
	if err := h.DB.Create(&msg).Error; err != nil {
		return models.Message{}, err
	}

	_ = h.DB.Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Updates(map[string]interface{}{
			"last_message":    previewText(msg),
			"last_message_at": msg.CreatedAt,
		}).Error

	if h.Hub.IsOnline(recipient) {
		if err := h.DB.Model(&models.Message{}).
			Where("id = ? AND status = ?", msg.ID, models.StatusSent).
			Update("status", models.StatusDelivered).Error; err == nil {
			msg.Status = models.StatusDelivered
		}
	}

	out := toMessageResponse(msg)
	h.Hub.SendToUser(senderID, realtime.TopicMessage, out)
	if !h.Hub.SendToUser(recipient, realtime.TopicMessage, out) {
		h.notifyOffline(recipient, msg)
	}

	if msg.Status == models.StatusDelivered {
		h.Hub.SendToUser(senderID, realtime.TopicStatus, realtime.StatusUpdate{
			MessageID:      msg.ID.String(),
			ConversationID: conv.ID.String(),
			UserID:         recipient.String(),
			Status:         models.StatusDelivered,
		})
	}

	return msg, nil
}

func previewText(msg models.Message) string {
	switch msg.Type {
	case models.MessageImage:
		return "[photo]"
	case models.MessageFile:
		return "[file]"
	default:
		return msg.Text
	}
}

// notifyOffline publishes a notification for recipients with no live
// connection on any instance; the bridge re-delivers to other instances first.
func (h *ChatHandler) notifyOffline(recipient uuid.UUID, msg models.Message) {
	h.Hub.Relay(recipient, realtime.TopicMessage, toMessageResponse(msg))

	notif := map[string]interface{}{
		"type":            "chat_message",
		"conversation_id": msg.ConversationID.String(),
		"sender_id":       msg.SenderID.String(),
		"text":            previewText(msg),
	}
	payload, _ := json.Marshal(notif)
	if err := h.RDB.Publish(context.Background(), "notifications:"+recipient.String(), payload).Err(); err != nil {
		log.Println("Error publishing notification:", err)
	}
}

// loadConversationFor fetches a conversation and checks membership. Returns
// (nil, response) when the caller should bail out with that response.
func (h *ChatHandler) loadConversationFor(c *fiber.Ctx, convID, userID uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := h.DB.First(&conv, "id = ?", convID).Error; err != nil {
		return nil, c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": "Conversation not found",
		})
	}
	if conv.FarmerID != userID && conv.PartnerID != userID {
		return nil, c.Status(403).JSON(fiber.Map{
			"success": false,
			"message": "Access denied",
		})
	}
	return &conv, nil
}

// GetPresence returns the current presence snapshot (handle -> online).
func (h *ChatHandler) GetPresence(c *fiber.Ctx) error {
	if _, err := getUserUUID(c); err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}
	return c.JSON(fiber.Map{"success": true, "data": h.Hub.PresenceSnapshot()})
}

// SearchUsers filters the chat directory for the start-new-conversation flow.
func (h *ChatHandler) SearchUsers(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	q := c.Query("q")
	role := c.Query("role")

	tx := h.DB.Model(&models.User{}).
		Where("id != ? AND is_active = true", userUUID)
	if q != "" {
		tx = tx.Where("name ILIKE ? OR mobile ILIKE ?", "%"+q+"%", "%"+q+"%")
	}
	if role != "" {
		tx = tx.Where("role = ?", role)
	}

	var users []models.User
	if err := tx.Limit(50).Find(&users).Error; err != nil {
		log.Println("Error searching users:", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to search users"})
	}

	presence := h.Hub.PresenceSnapshot()
	out := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		out = append(out, fiber.Map{
			"id":     u.ID.String(),
			"name":   u.Name,
			"mobile": u.Mobile,
			"role":   string(u.Role),
			"online": presence[u.Mobile],
		})
	}

	return c.JSON(fiber.Map{"success": true, "data": out})
}

// UploadFile stores a chat attachment and returns its metadata. Upload errors
// are surfaced directly; the client alerts the user rather than retrying.
func (h *ChatHandler) UploadFile(c *fiber.Ctx) error {
	if _, err := getUserUUID(c); err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "file is required",
		})
	}

	name := fmt.Sprintf("%s%s", uuid.New().String(), filepath.Ext(file.Filename))
	dest := filepath.Join(h.UploadDir, name)
	if err := c.SaveFile(file, dest); err != nil {
		log.Println("Error saving upload:", err)
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to store file",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"url":  "/uploads/" + name,
			"name": file.Filename,
			"size": file.Size,
			"mime": file.Header.Get("Content-Type"),
		},
	})
}
