package chatclient

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NormalizeMessage maps a raw wire payload to the canonical ChatMessage.
// Backend DTOs have drifted across revisions (sender as nested object vs flat
// id, "text" vs "message", timestamps as RFC3339 or unix millis), so every
// variant is resolved here and nowhere else.
func NormalizeMessage(raw json.RawMessage) (ChatMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ChatMessage{}, fmt.Errorf("decode message payload: %w", err)
	}

	msg := ChatMessage{
		ID:             str(m, "id", "message_id", "messageId"),
		ConversationID: str(m, "conversation_id", "conversationId"),
		SenderID:       str(m, "sender_id", "senderId"),
		ReceiverID:     str(m, "receiver_id", "receiverId"),
		Text:           str(m, "message", "text", "body"),
		ClientRef:      str(m, "client_ref", "clientRef"),
	}

	if msg.SenderID == "" {
		msg.SenderID = nestedID(m, "sender")
	}
	if msg.ReceiverID == "" {
		msg.ReceiverID = nestedID(m, "receiver")
	}

	msg.Kind = MessageKind(str(m, "type", "message_type", "messageType"))
	if msg.Kind == "" {
		msg.Kind = KindText
	}

	msg.Status = Status(str(m, "status"))
	if msg.Status == "" {
		msg.Status = StatusSent
	}

	if rawRead, ok := m["is_read"]; ok {
		_ = json.Unmarshal(rawRead, &msg.IsRead)
	}
	if msg.Status == StatusSeen {
		msg.IsRead = true
	}

	if rawAtt, ok := m["attachment"]; ok && string(rawAtt) != "null" {
		var att Attachment
		if err := json.Unmarshal(rawAtt, &att); err == nil && (att.URL != "" || att.Name != "") {
			msg.Attachment = &att
		}
	}
	if msg.Attachment == nil {
		if url := str(m, "file_url", "fileUrl"); url != "" {
			msg.Attachment = &Attachment{
				URL:  url,
				Name: str(m, "file_name", "fileName"),
				Mime: str(m, "file_type", "fileType", "mime_type"),
			}
			if sz := str(m, "file_size", "fileSize"); sz != "" {
				msg.Attachment.Size, _ = strconv.ParseInt(sz, 10, 64)
			}
		}
	}

	msg.CreatedAt = timestamp(m, "created_at", "createdAt", "timestamp")
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	if msg.ID == "" {
		return ChatMessage{}, fmt.Errorf("message payload without id")
	}
	return msg, nil
}

// str returns the first non-empty string value among the given keys.
// Numeric ids are stringified rather than rejected.
func str(m map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

func nestedID(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil {
		return ""
	}
	return str(nested, "id")
}

func timestamp(m map[string]json.RawMessage, keys ...string) time.Time {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
				if t, err := time.Parse(layout, s); err == nil {
					return t
				}
			}
			continue
		}
		var n int64
		if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
			if n > 1e12 { // unix millis
				return time.UnixMilli(n)
			}
			return time.Unix(n, 0)
		}
	}
	return time.Time{}
}
