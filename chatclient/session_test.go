package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// restStub serves just enough of the chat API for a session to run headless.
func restStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, data interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": data})
	}

	mux.HandleFunc("/api/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, map[string]interface{}{"id": "c-new", "partner_id": "p9", "type": "DIRECT"})
			return
		}
		writeJSON(w, []map[string]interface{}{{
			"id":                "c1",
			"partner_id":        "p1",
			"type":              "DIRECT",
			"last_message":      "hello",
			"last_message_time": time.Now().Add(-time.Minute).Format(time.RFC3339),
			"unread_count":      1,
			"partner":           map[string]string{"name": "Sita", "mobile": "9841000001"},
		}})
	})
	mux.HandleFunc("/api/chat/conversations/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]interface{}{})
	})
	mux.HandleFunc("/api/chat/conversations/c1/read", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, nil)
	})
	mux.HandleFunc("/api/chat/presence", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]bool{"9841000001": true})
	})
	mux.HandleFunc("/api/chat/unread", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 1)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Unauthorized"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "not found"})
	})

	return httptest.NewServer(mux)
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	srv := restStub(t)
	t.Cleanup(srv.Close)

	s := NewSession(Config{
		BaseURL:   srv.URL,
		WSURL:     "ws://127.0.0.1:1/ws", // never dialed in these tests
		Token:     "tok",
		SelfID:    "me",
		Handle:    "9841000099",
		PageSize:  50,
		TypingTTL: 40 * time.Millisecond,
	})
	t.Cleanup(s.Close)

	// seed directory and presence without connecting the transport
	s.Directory.Refresh(context.Background())
	snap, err := s.rest.PresenceSnapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s.Tracker.ReplacePresence(snap)
	return s
}

func TestSessionRoutesMessageEvents(t *testing.T) {
	s := newTestSession(t)
	s.OpenConversation(context.Background(), "c1")

	payload, _ := json.Marshal(map[string]interface{}{
		"id": "srv-1", "conversation_id": "c1", "sender_id": "p1",
		"message": "fresh produce?", "status": "SENT",
		"created_at": time.Now().Format(time.RFC3339),
	})
	s.handleEvent(TopicMessage, payload)

	msgs := s.Store.Messages()
	if len(msgs) != 1 || msgs[0].ID != "srv-1" {
		t.Fatalf("message event not applied to store: %+v", msgs)
	}

	convs := s.Directory.Conversations()
	if convs[0].LastMessage != "fresh produce?" {
		t.Fatalf("message event not applied to directory: %q", convs[0].LastMessage)
	}
	// conversation is open, unread must not grow
	if convs[0].UnreadCount != 0 {
		t.Fatalf("unread grew for the open conversation: %d", convs[0].UnreadCount)
	}
}

func TestSessionRoutesStatusEvents(t *testing.T) {
	s := newTestSession(t)
	s.OpenConversation(context.Background(), "c1")

	msgPayload, _ := json.Marshal(map[string]interface{}{
		"id": "srv-1", "conversation_id": "c1", "sender_id": "me", "message": "mine",
	})
	s.handleEvent(TopicMessage, msgPayload)

	single, _ := json.Marshal(StatusUpdate{MessageID: "srv-1", ConversationID: "c1", Status: StatusDelivered})
	s.handleEvent(TopicStatus, single)
	if got := s.Store.Messages()[0].Status; got != StatusDelivered {
		t.Fatalf("single status update not routed: %s", got)
	}

	bulk, _ := json.Marshal(StatusUpdate{ConversationID: "c1", Status: StatusSeen})
	s.handleEvent(TopicStatus, bulk)
	if got := s.Store.Messages()[0].Status; got != StatusSeen {
		t.Fatalf("bulk status update not routed: %s", got)
	}
}

func TestSessionRoutesTypingAndPresence(t *testing.T) {
	s := newTestSession(t)

	typing, _ := json.Marshal(TypingSignal{ConversationID: "c1", UserID: "p1", IsTyping: true})
	s.handleEvent(TopicTyping, typing)
	if !s.Tracker.Typing("p1") {
		t.Fatal("typing event not routed")
	}

	presence, _ := json.Marshal(map[string]bool{"9841000002": true})
	s.handleEvent(TopicPresence, presence)
	if s.Tracker.Online("9841000001") || !s.Tracker.Online("9841000002") {
		t.Fatal("presence snapshot not replaced")
	}
}

func TestSessionOpenConversationClearsUnread(t *testing.T) {
	s := newTestSession(t)
	if s.Directory.TotalUnread() != 1 {
		t.Fatalf("seed unread = %d, want 1", s.Directory.TotalUnread())
	}

	s.OpenConversation(context.Background(), "c1")
	if s.Directory.TotalUnread() != 0 {
		t.Fatalf("unread after open = %d, want 0", s.Directory.TotalUnread())
	}
}

func TestSessionRESTFallbackFailureRemovesOptimistic(t *testing.T) {
	s := newTestSession(t)
	s.OpenConversation(context.Background(), "c1")

	// transport was never connected, and the stub has no send endpoint, so
	// the REST fallback fails
	if _, err := s.SendMessage(context.Background(), "lost", KindText, nil); err == nil {
		t.Fatal("expected send failure")
	}
	for _, msg := range s.Store.Messages() {
		if msg.Pending() {
			t.Fatal("failed send left its optimistic entry behind")
		}
	}
}

func TestSessionUnreadTotal(t *testing.T) {
	s := newTestSession(t)
	n, err := s.UnreadTotal(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("unread total = %d, want 1", n)
	}
}
