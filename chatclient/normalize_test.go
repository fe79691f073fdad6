package chatclient

import (
	"testing"
	"time"
)

func TestNormalizeFlatPayload(t *testing.T) {
	raw := []byte(`{
		"id": "srv-1",
		"conversation_id": "c1",
		"sender_id": "u1",
		"receiver_id": "u2",
		"type": "TEXT",
		"message": "namaste",
		"status": "DELIVERED",
		"client_ref": "ref-1",
		"created_at": "2026-08-01T10:00:00Z"
	}`)

	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "srv-1" || msg.ConversationID != "c1" || msg.SenderID != "u1" {
		t.Fatalf("ids wrong: %+v", msg)
	}
	if msg.Text != "namaste" || msg.Status != StatusDelivered || msg.ClientRef != "ref-1" {
		t.Fatalf("fields wrong: %+v", msg)
	}
	want := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if !msg.CreatedAt.Equal(want) {
		t.Fatalf("created_at = %v, want %v", msg.CreatedAt, want)
	}
}

func TestNormalizeCamelCaseAndNestedSender(t *testing.T) {
	raw := []byte(`{
		"messageId": "srv-2",
		"conversationId": "c1",
		"sender": {"id": "u1", "name": "Ram"},
		"text": "dhanyabad",
		"createdAt": "2026-08-01T10:00:00+05:45"
	}`)

	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "srv-2" || msg.SenderID != "u1" || msg.Text != "dhanyabad" {
		t.Fatalf("variant spelling not resolved: %+v", msg)
	}
	if msg.Kind != KindText || msg.Status != StatusSent {
		t.Fatalf("defaults not applied: kind=%s status=%s", msg.Kind, msg.Status)
	}
}

func TestNormalizeUnixMillisTimestamp(t *testing.T) {
	raw := []byte(`{"id": "srv-3", "conversation_id": "c1", "sender_id": "u1", "message": "x", "timestamp": 1754042400000}`)

	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.CreatedAt.Year() != 2025 {
		t.Fatalf("unix millis not parsed: %v", msg.CreatedAt)
	}
}

func TestNormalizeAttachmentObject(t *testing.T) {
	raw := []byte(`{
		"id": "srv-4", "conversation_id": "c1", "sender_id": "u1",
		"type": "FILE", "message": "soil-report.pdf",
		"attachment": {"url": "/uploads/a.pdf", "name": "soil-report.pdf", "size": 1234, "mime": "application/pdf"}
	}`)

	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Attachment == nil {
		t.Fatal("attachment dropped")
	}
	if msg.Attachment.URL != "/uploads/a.pdf" || msg.Attachment.Size != 1234 {
		t.Fatalf("attachment wrong: %+v", msg.Attachment)
	}
}

func TestNormalizeLegacyFlatFileFields(t *testing.T) {
	raw := []byte(`{
		"id": "srv-5", "conversation_id": "c1", "sender_id": "u1",
		"type": "IMAGE", "message": "photo",
		"file_url": "/uploads/b.jpg", "file_name": "b.jpg", "file_type": "image/jpeg"
	}`)

	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Attachment == nil || msg.Attachment.URL != "/uploads/b.jpg" || msg.Attachment.Mime != "image/jpeg" {
		t.Fatalf("legacy file fields not mapped: %+v", msg.Attachment)
	}
}

func TestNormalizeSeenImpliesIsRead(t *testing.T) {
	raw := []byte(`{"id": "srv-6", "conversation_id": "c1", "sender_id": "u1", "message": "x", "status": "SEEN"}`)

	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !msg.IsRead {
		t.Fatal("SEEN status should imply is_read")
	}
}

func TestNormalizeRejectsPayloadWithoutID(t *testing.T) {
	if _, err := NormalizeMessage([]byte(`{"conversation_id": "c1", "message": "x"}`)); err == nil {
		t.Fatal("payload without id must be rejected")
	}
	if _, err := NormalizeMessage([]byte(`not json`)); err == nil {
		t.Fatal("malformed payload must be rejected")
	}
}

func TestStatusAdvances(t *testing.T) {
	cases := []struct {
		cur, next Status
		want      bool
	}{
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusSeen, true},
		{StatusDelivered, StatusSeen, true},
		{StatusSeen, StatusDelivered, false},
		{StatusDelivered, StatusDelivered, false},
		{StatusSeen, StatusSent, false},
	}
	for _, c := range cases {
		if got := c.next.Advances(c.cur); got != c.want {
			t.Errorf("%s -> %s: advances = %v, want %v", c.cur, c.next, got, c.want)
		}
	}
}
