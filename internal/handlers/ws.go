package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kisansarathi/sarathi-chat/internal/models"
	"github.com/kisansarathi/sarathi-chat/internal/realtime"
	"github.com/kisansarathi/sarathi-chat/internal/utils"
)

// WSUpgradeMiddleware rejects plain HTTP requests on the websocket route.
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// WSAuthMiddleware validates the bearer token before the upgrade. The token
// comes from the `token` query param since browsers cannot set headers on
// websocket handshakes.
func WSAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			return fiber.ErrUnauthorized
		}

		token, err := jwt.ParseWithClaims(tokenStr, &utils.Claims{}, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return fiber.ErrUnauthorized
		}

		claims, ok := token.Claims.(*utils.Claims)
		if !ok || claims.UserID == "" {
			return fiber.ErrUnauthorized
		}

		c.Locals("userId", claims.UserID)
		c.Locals("handle", claims.Handle)
		return c.Next()
	}
}

// inboundFrame is what clients publish over the socket.
type inboundFrame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Text           string          `json:"message"`
	MessageType    string          `json:"message_type"`
	Attachment     json.RawMessage `json:"attachment"`
	ClientRef      string          `json:"client_ref"`
	IsTyping       bool            `json:"is_typing"`
}

// WebSocketHandler serves one client connection: registers it with the hub,
// pumps outbound envelopes, pings on a fixed interval, and dispatches inbound
// send/typing/seen frames.
func (h *ChatHandler) WebSocketHandler(heartbeat time.Duration) func(*websocket.Conn) {
	if heartbeat <= 0 {
		heartbeat = 4 * time.Second
	}
	return func(c *websocket.Conn) {
		userIDStr, _ := c.Locals("userId").(string)
		userUUID, err := uuid.Parse(userIDStr)
		if err != nil {
			log.Println("WebSocket: invalid user id in claims:", userIDStr)
			c.Close()
			return
		}
		handle, _ := c.Locals("handle").(string)

		client := &realtime.Client{
			ID:     uuid.New().String(),
			UserID: userUUID,
			Handle: handle,
			Conn:   realtime.NewWebSocketConn(c),
			Send:   make(chan []byte, 256),
		}

		h.Hub.RegisterClient(client)
		defer func() {
			h.Hub.UnregisterClient(client)
			log.Printf("WebSocket: user %s disconnected", userUUID)
		}()

		// writer: hub envelopes plus protocol pings
		done := make(chan struct{})
		go func() {
			defer close(done)
			ticker := time.NewTicker(heartbeat)
			defer ticker.Stop()
			for {
				select {
				case msg, ok := <-client.Send:
					if !ok {
						return
					}
					if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
						log.Println("WebSocket write error:", err)
						return
					}
				case <-ticker.C:
					if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()

		c.SetReadDeadline(time.Now().Add(heartbeat * 5 / 2))
		c.SetPongHandler(func(string) error {
			return c.SetReadDeadline(time.Now().Add(heartbeat * 5 / 2))
		})

		for {
			var frame inboundFrame
			if err := c.ReadJSON(&frame); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("WebSocket read error for user %s: %v", userUUID, err)
				}
				break
			}
			c.SetReadDeadline(time.Now().Add(heartbeat * 5 / 2))
			h.handleFrame(userUUID, frame)
		}

		<-done
	}
}

// handleFrame dispatches one inbound frame. Frame errors are logged and the
// frame dropped; a bad frame must not take the connection down.
func (h *ChatHandler) handleFrame(senderID uuid.UUID, frame inboundFrame) {
	switch frame.Type {
	case "send_message":
		convUUID, err := uuid.Parse(frame.ConversationID)
		if err != nil || frame.Text == "" {
			log.Printf("WebSocket: dropping malformed send_message from %s", senderID)
			return
		}
		var conv models.Conversation
		if err := h.DB.First(&conv, "id = ?", convUUID).Error; err != nil {
			log.Println("WebSocket: send_message for unknown conversation:", convUUID)
			return
		}
		if conv.FarmerID != senderID && conv.PartnerID != senderID {
			log.Printf("WebSocket: user %s is not in conversation %s", senderID, convUUID)
			return
		}
		if _, err := h.deliver(conv, senderID, frame.Text, frame.MessageType, frame.Attachment, frame.ClientRef); err != nil {
			log.Println("WebSocket: error delivering message:", err)
		}

	case "typing":
		convUUID, err := uuid.Parse(frame.ConversationID)
		if err != nil {
			return
		}
		var conv models.Conversation
		if err := h.DB.First(&conv, "id = ?", convUUID).Error; err != nil {
			return
		}
		recipient := conv.FarmerID
		if recipient == senderID {
			recipient = conv.PartnerID
		}
		h.Hub.Relay(recipient, realtime.TopicTyping, realtime.TypingSignal{
			ConversationID: conv.ID.String(),
			UserID:         senderID.String(),
			IsTyping:       frame.IsTyping,
		})

	case "seen":
		convUUID, err := uuid.Parse(frame.ConversationID)
		if err != nil {
			return
		}
		var conv models.Conversation
		if err := h.DB.First(&conv, "id = ?", convUUID).Error; err != nil {
			return
		}
		if conv.FarmerID != senderID && conv.PartnerID != senderID {
			return
		}
		h.markSeen(conv, senderID)

	case "pong":
		// app-level keepalive from older clients, nothing to do

	default:
		log.Printf("WebSocket: unknown frame type %q from %s", frame.Type, senderID)
	}
}
