package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer upgrades one connection, pushes a canned envelope, then echoes
// every published frame back inside a "message" envelope.
func echoServer(t *testing.T, push envelope) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(push); err != nil {
			return
		}

		for {
			var frame map[string]interface{}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			data, _ := json.Marshal(frame)
			if err := conn.WriteJSON(envelope{Topic: TopicMessage, Data: data}); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTransportReceivesAndPublishes(t *testing.T) {
	push := envelope{Topic: TopicPresence, Data: json.RawMessage(`{"9841000001": true}`)}
	srv := echoServer(t, push)
	defer srv.Close()

	var mu sync.Mutex
	var echoed map[string]interface{}
	got := make(chan string, 8)

	tr := NewTransport(wsURL(srv), "tok", time.Second, time.Second, func(topic string, data json.RawMessage) {
		if topic == TopicMessage {
			mu.Lock()
			json.Unmarshal(data, &echoed)
			mu.Unlock()
		}
		got <- topic
	})
	tr.Connect(context.Background())
	defer tr.Close()

	select {
	case topic := <-got:
		if topic != TopicPresence {
			t.Fatalf("first event topic = %s, want presence", topic)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event received from server push")
	}

	// wait for the live connection before publishing
	deadline := time.Now().Add(3 * time.Second)
	for !tr.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	tr.Publish(DestSeen, map[string]interface{}{"conversation_id": "c1"})

	select {
	case topic := <-got:
		if topic != TopicMessage {
			t.Fatalf("echo topic = %s, want message", topic)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("published frame never echoed back")
	}

	mu.Lock()
	defer mu.Unlock()
	if echoed["type"] != DestSeen || echoed["conversation_id"] != "c1" {
		t.Fatalf("published frame lost its destination tag: %v", echoed)
	}
}

func TestPublishWhileDisconnectedIsNoop(t *testing.T) {
	tr := NewTransport("ws://127.0.0.1:1/ws", "tok", time.Second, time.Hour, nil)
	// never connected; must not panic or block
	tr.Publish(DestTyping, map[string]interface{}{"conversation_id": "c1"})
	if tr.Connected() {
		t.Fatal("transport claims a connection it never made")
	}
	tr.Close()
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := echoServer(t, envelope{Topic: TopicPresence, Data: json.RawMessage(`{}`)})
	defer srv.Close()

	tr := NewTransport(wsURL(srv), "tok", time.Second, time.Second, nil)
	tr.Connect(context.Background())

	tr.Close()
	tr.Close()
	tr.Close()
}
